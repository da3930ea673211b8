package gfab

import (
	"bytes"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitGFA1RoundTripsRecords(t *testing.T) {
	f := loadTestGFA(t, testGFA1)
	defer f.Close()

	var buf bytes.Buffer
	require.NoError(t, EmitGFA1(f.DB, &buf, EmitOptions{}, false))
	out := buf.String()

	assert.Contains(t, out, "H\tVN:Z:1.0")
	assert.Contains(t, out, "S\ts1\tACGTACGT")
	assert.Contains(t, out, "S\ts3\t*\tLN:i:12")
	assert.Contains(t, out, "L\ts1\t+\ts2\t-\t4M")
	assert.Contains(t, out, "P\tpath1\ts1+,s2-\t4M")
	assert.Contains(t, out, "W\tsampleA\t0\tchr1\t0\t8\ts1+s2-")
}

func TestEmitGFA1NoSequencesOmitsBases(t *testing.T) {
	f := loadTestGFA(t, testGFA1)
	defer f.Close()

	var buf bytes.Buffer
	require.NoError(t, EmitGFA1(f.DB, &buf, EmitOptions{NoSequences: true}, false))
	out := buf.String()

	assert.Contains(t, out, "S\ts1\t*")
	assert.NotContains(t, out, "ACGTACGT")
}

func TestEmitGFA1RestrictsToSubSegments(t *testing.T) {
	f := loadTestGFA(t, testGFA1)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"s1"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{}))

	var buf bytes.Buffer
	require.NoError(t, EmitGFA1(f.DB, &buf, EmitOptions{}, true))
	out := buf.String()

	assert.Contains(t, out, "S\ts1\t")
	assert.NotContains(t, out, "S\ts2\t")
	assert.NotContains(t, out, "S\ts3\t")
}

func TestOrientLabelAndSegmentLabel(t *testing.T) {
	assert.Equal(t, "+", orientLabel(0))
	assert.Equal(t, "-", orientLabel(1))

	named := sql.NullString{String: "s1", Valid: true}
	assert.Equal(t, "s1", segmentLabel(5, named))
	assert.Equal(t, "5", segmentLabel(5, sql.NullString{}))
}
