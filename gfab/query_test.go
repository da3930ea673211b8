package gfab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queryTestGFA = `S	s1	ACGTACGT	SN:Z:chr1	SO:i:0	LN:i:8
S	s2	TTTTGGGG	SN:Z:chr1	SO:i:8	LN:i:8
S	s3	AAAACCCC
L	s1	+	s2	+	0M
P	path1	s1+,s2+	0M
`

func queryStartSegments(t *testing.T, f *File) []int64 {
	t.Helper()
	rows, err := f.DB.Query(`SELECT segment_id FROM temp.start_segments ORDER BY segment_id`)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestResolveSelectorsBareNameAndID(t *testing.T) {
	f := loadTestGFA(t, queryTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"s1", "2"}, Selector{}))
	ids := queryStartSegments(t, f)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestResolveSelectorsByPath(t *testing.T) {
	f := loadTestGFA(t, queryTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, nil, Selector{Paths: []string{"path1"}}))
	ids := queryStartSegments(t, f)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestResolveSelectorsByRange(t *testing.T) {
	f := loadTestGFA(t, queryTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, nil, Selector{Ranges: []string{"chr1:4-12"}}))
	ids := queryStartSegments(t, f)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestResolveSelectorsGuessRanges(t *testing.T) {
	f := loadTestGFA(t, queryTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"chr1:0-8"}, Selector{GuessRanges: true}))
	ids := queryStartSegments(t, f)
	assert.Equal(t, []int64{1}, ids)
}

func TestResolveSelectorsNotFoundSuggestsClosest(t *testing.T) {
	f := loadTestGFA(t, queryTestGFA)
	defer f.Close()

	err := ResolveSelectors(f.DB, []string{"s11"}, Selector{})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "s1")
}

func TestParseRangeToken(t *testing.T) {
	r, err := parseRangeToken("chr1:10-20")
	require.NoError(t, err)
	assert.Equal(t, RefRange{Chrom: "chr1", Begin: 10, End: 20}, r)

	_, err = parseRangeToken("chr1")
	require.Error(t, err)
	assert.Equal(t, KindUsage, KindOf(err))
}
