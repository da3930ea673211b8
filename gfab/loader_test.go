package gfab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGFA1 = `H	VN:Z:1.0
S	s1	ACGTACGT
S	s2	TTTTGGGG
S	s3	*	LN:i:12
L	s1	+	s2	-	4M
P	path1	s1+,s2-	4M
W	sampleA	0	chr1	0	8	s1+s2-
`

func loadTestGFA(t *testing.T, contents string) *File {
	t.Helper()
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.gfa")
	require.NoError(t, os.WriteFile(inPath, []byte(contents), 0644))
	outPath := filepath.Join(dir, "out.gfab")
	require.NoError(t, Load(BackgroundContext(), inPath, outPath, LoadOptions{}))
	f, err := OpenFile(BackgroundContext(), outPath, true)
	require.NoError(t, err)
	return f
}

func TestLoadBasic(t *testing.T) {
	f := loadTestGFA(t, testGFA1)
	defer f.Close()

	var segCount int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM segment").Scan(&segCount))
	assert.Equal(t, 3, segCount)

	var linkCount int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM link").Scan(&linkCount))
	assert.Equal(t, 1, linkCount)

	var pathCount int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM path").Scan(&pathCount))
	assert.Equal(t, 1, pathCount)

	var walkCount int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM walk").Scan(&walkCount))
	assert.Equal(t, 1, walkCount)

	var tagsJSON string
	require.NoError(t, f.DB.QueryRow("SELECT tags_json FROM header").Scan(&tagsJSON))
	assert.Contains(t, tagsJSON, "gfabase:loader_version")
}

func TestLoadEmptyInputRejected(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "empty.gfa")
	require.NoError(t, os.WriteFile(inPath, []byte("H\tVN:Z:1.0\n"), 0644))
	outPath := filepath.Join(dir, "out.gfab")
	err := Load(BackgroundContext(), inPath, outPath, LoadOptions{})
	require.Error(t, err)
	assert.Equal(t, KindEmptyInput, KindOf(err))
}

func TestLoadDuplicateSegmentRejected(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "dup.gfa")
	require.NoError(t, os.WriteFile(inPath, []byte("S\ts1\tACGT\nS\ts1\tACGT\n"), 0644))
	outPath := filepath.Join(dir, "out.gfab")
	err := Load(BackgroundContext(), inPath, outPath, LoadOptions{})
	require.Error(t, err)
	assert.Equal(t, KindDuplicateSegment, KindOf(err))
}

func TestParseRR(t *testing.T) {
	chrom, begin, end, ok := parseRR("chr1:1,000-2,000")
	require.True(t, ok)
	assert.Equal(t, "chr1", chrom)
	assert.EqualValues(t, 1000, begin)
	assert.EqualValues(t, 2000, end)

	_, _, _, ok = parseRR("malformed")
	assert.False(t, ok)
}

func TestRGFAPlacementSynthesizesMapping(t *testing.T) {
	f := loadTestGFA(t, "S\ts1\tACGTACGT\tSN:Z:chr1\tSO:i:100\tLN:i:8\n")
	defer f.Close()

	var refseqName string
	var begin, end int64
	require.NoError(t, f.DB.QueryRow(
		"SELECT refseq_name, refseq_begin, refseq_end FROM mapping").Scan(&refseqName, &begin, &end))
	assert.Equal(t, "chr1", refseqName)
	assert.EqualValues(t, 100, begin)
	assert.EqualValues(t, 108, end)
}
