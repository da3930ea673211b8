package gfab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineSegment(t *testing.T) {
	rec, err := ParseLine("S\ts1\tACGT\tLN:i:4\tRC:i:10", 1)
	require.NoError(t, err)
	seg, ok := rec.(*SegmentRecord)
	require.True(t, ok)
	assert.Equal(t, "s1", seg.Name)
	assert.Equal(t, "ACGT", seg.Sequence)
	assert.True(t, seg.HasSequence)
	assert.Equal(t, 4, seg.Length)
	rc, ok := seg.Tags.tagInt("RC")
	assert.True(t, ok)
	assert.EqualValues(t, 10, rc)
}

func TestParseLineSegmentNoSequence(t *testing.T) {
	rec, err := ParseLine("S\ts1\t*\tLN:i:100", 1)
	require.NoError(t, err)
	seg := rec.(*SegmentRecord)
	assert.False(t, seg.HasSequence)
	assert.Equal(t, 100, seg.Length)
}

func TestParseLineLink(t *testing.T) {
	rec, err := ParseLine("L\ts1\t+\ts2\t-\t0M", 1)
	require.NoError(t, err)
	link := rec.(*LinkRecord)
	assert.Equal(t, "s1", link.From.Name)
	assert.False(t, link.From.Reverse)
	assert.Equal(t, "s2", link.To.Name)
	assert.True(t, link.To.Reverse)
	assert.Equal(t, "0M", link.Overlap)
}

func TestParseLinePath(t *testing.T) {
	rec, err := ParseLine("P\tpath1\ts1+,s2-,s3+\t4M,5M", 1)
	require.NoError(t, err)
	p := rec.(*PathRecord)
	require.Len(t, p.Elements, 3)
	assert.Equal(t, "s2", p.Elements[1].Name)
	assert.True(t, p.Elements[1].Reverse)
	assert.Equal(t, []string{"4M", "5M"}, p.Overlaps)
}

func TestParseLineWalkBothDialects(t *testing.T) {
	commaRec, err := ParseLine("W\tsampleA\t0\tchr1\t100\t200\ts1+,s2-,s3+", 1)
	require.NoError(t, err)
	bareRec, err := ParseLine("W\tsampleA\t0\tchr1\t100\t200\ts1+s2-s3+", 2)
	require.NoError(t, err)

	wc := commaRec.(*WalkRecord)
	wb := bareRec.(*WalkRecord)
	assert.Equal(t, wc.Steps, wb.Steps)
	assert.Equal(t, "sampleA", wc.Sample)
	assert.EqualValues(t, 100, wc.RefseqBegin)
	assert.EqualValues(t, 200, wc.RefseqEnd)
}

func TestParseLineUnknownTypeTolerated(t *testing.T) {
	rec, err := ParseLine("X\tsomething\telse", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestParseLineBlankAndComment(t *testing.T) {
	rec, err := ParseLine("", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = ParseLine("# a comment", 2)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestParseLineMalformed(t *testing.T) {
	_, err := ParseLine("S\ts1", 1)
	require.Error(t, err)
	assert.Equal(t, KindMalformedRecord, KindOf(err))

	_, err = ParseLine("L\ts1\t*\ts2\t+\t0M", 1)
	require.Error(t, err)
	assert.Equal(t, KindMalformedRecord, KindOf(err))
}
