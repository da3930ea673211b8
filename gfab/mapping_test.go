package gfab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePAF(t *testing.T) {
	line := "read1\t100\t0\t50\t+\tchr1\t1000\t10\t60\t50\t50\t60\tcg:Z:50M"
	rec, err := parsePAF(line, 1)
	require.NoError(t, err)
	assert.Equal(t, "read1", rec.queryName)
	assert.Equal(t, "chr1", rec.targetName)
	assert.EqualValues(t, 10, rec.targetStart)
	assert.EqualValues(t, 60, rec.targetEnd)
	assert.Equal(t, 60, rec.mapq)
	assert.EqualValues(t, 50, rec.blockLen)
	assert.Equal(t, "50M", rec.cigar)
}

func TestParsePAFTooFewFields(t *testing.T) {
	_, err := parsePAF("read1\t100", 1)
	require.Error(t, err)
	assert.Equal(t, KindMalformedRecord, KindOf(err))
}

func TestMappingDigestStableAndSensitive(t *testing.T) {
	a := mappingDigest(1, "chr1", 10, 20, "10M")
	b := mappingDigest(1, "chr1", 10, 20, "10M")
	assert.Equal(t, a, b)

	c := mappingDigest(1, "chr1", 10, 21, "10M")
	assert.NotEqual(t, a, c)
}

// loadTargetGFAB loads contents into a fresh .gfab and returns its path,
// closing the loader's handle so the caller can reopen it read-write.
func loadTargetGFAB(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.gfa")
	require.NoError(t, os.WriteFile(inPath, []byte(contents), 0644))
	outPath := filepath.Join(dir, "out.gfab")
	require.NoError(t, Load(BackgroundContext(), inPath, outPath, LoadOptions{}))
	return outPath
}

func writePAF(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aln.paf")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestImportMappingsBasic(t *testing.T) {
	targetPath := loadTargetGFAB(t, testGFA1)
	pafPath := writePAF(t, "s1\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t60\tcg:Z:8M")

	stats, err := ImportMappings(BackgroundContext(), targetPath, pafPath, MappingOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Imported)
	assert.Zero(t, stats.Skipped)
	assert.Zero(t, stats.Unknown)

	f, err := OpenFile(BackgroundContext(), targetPath, true)
	require.NoError(t, err)
	defer f.Close()

	var count int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM mapping WHERE refseq_name = 'chr1'").Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM mapping_rtree").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestImportMappingsUnknownQueryName(t *testing.T) {
	targetPath := loadTargetGFAB(t, testGFA1)
	pafPath := writePAF(t, "nosuchsegment\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t60")

	stats, err := ImportMappings(BackgroundContext(), targetPath, pafPath, MappingOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Imported)
	assert.EqualValues(t, 1, stats.Unknown)
}

func TestImportMappingsQualityAndLengthThresholds(t *testing.T) {
	targetPath := loadTargetGFAB(t, testGFA1)
	pafPath := writePAF(t, "s1\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t10")

	stats, err := ImportMappings(BackgroundContext(), targetPath, pafPath, MappingOptions{Quality: 30})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Skipped)
	assert.Zero(t, stats.Imported)
}

func TestImportMappingsReplaceSkipsUnchanged(t *testing.T) {
	targetPath := loadTargetGFAB(t, testGFA1)
	pafLine := "s1\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t60\tcg:Z:8M"

	_, err := ImportMappings(BackgroundContext(), targetPath, writePAF(t, pafLine), MappingOptions{Replace: true})
	require.NoError(t, err)

	stats, err := ImportMappings(BackgroundContext(), targetPath, writePAF(t, pafLine), MappingOptions{Replace: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Unchanged)
	assert.Zero(t, stats.Imported)
}

func TestImportMappingsReplaceUpdatesChanged(t *testing.T) {
	targetPath := loadTargetGFAB(t, testGFA1)
	first := "s1\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t60\tcg:Z:8M"
	second := "s1\t8\t0\t8\t+\tchr1\t1000\t0\t8\t8\t8\t60\tcg:Z:4M4I"

	_, err := ImportMappings(BackgroundContext(), targetPath, writePAF(t, first), MappingOptions{Replace: true})
	require.NoError(t, err)

	stats, err := ImportMappings(BackgroundContext(), targetPath, writePAF(t, second), MappingOptions{Replace: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Imported)
	assert.Zero(t, stats.Unchanged)

	f, err := OpenFile(BackgroundContext(), targetPath, true)
	require.NoError(t, err)
	defer f.Close()
	var count int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM mapping").Scan(&count))
	assert.Equal(t, 1, count)
}
