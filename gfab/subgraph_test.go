package gfab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idOfName(t *testing.T, f *File, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, f.DB.QueryRow("SELECT segment_id FROM segment WHERE name = ?", name).Scan(&id))
	return id
}

func TestExpandSubgraphDefaultIsIdentity(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"n3"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{}))

	set, err := readSegmentSet(f.DB, `SELECT segment_id FROM temp.sub_segments`)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{idOfName(t, f, "n3"): true}, set)
}

func TestExpandSubgraphConnectedPullsWholeComponent(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"n3"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{Connected: true}))

	set, err := readSegmentSet(f.DB, `SELECT segment_id FROM temp.sub_segments`)
	require.NoError(t, err)
	assert.Len(t, set, 6) // n1..n6, not the disjoint t1..t3 triangle
	assert.True(t, set[idOfName(t, f, "n1")])
	assert.True(t, set[idOfName(t, f, "n6")])
	assert.False(t, set[idOfName(t, f, "t1")])
}

func TestExpandSubgraphCutpointsBudgetMonotonic(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"n3"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{Cutpoints: 1}))
	small, err := readSegmentSet(f.DB, `SELECT segment_id FROM temp.sub_segments`)
	require.NoError(t, err)

	require.NoError(t, ResolveSelectors(f.DB, []string{"n3"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{Cutpoints: 3}))
	big, err := readSegmentSet(f.DB, `SELECT segment_id FROM temp.sub_segments`)
	require.NoError(t, err)

	assert.True(t, len(big) >= len(small))
	for id := range small {
		assert.True(t, big[id])
	}
}

func TestExpandSubgraphBiconnectedPullsTriangle(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	require.NoError(t, ResolveSelectors(f.DB, []string{"t1"}, Selector{}))
	require.NoError(t, ExpandSubgraph(f.DB, ExpansionPolicy{Biconnected: 1}))

	set, err := readSegmentSet(f.DB, `SELECT segment_id FROM temp.sub_segments`)
	require.NoError(t, err)
	assert.True(t, set[idOfName(t, f, "t1")])
	assert.True(t, set[idOfName(t, f, "t2")])
	assert.True(t, set[idOfName(t, f, "t3")])
}

func TestEmitSubgraphProjectsConnectedComponent(t *testing.T) {
	targetPath := loadTargetGFAB(t, connectivityTestGFA)

	ctx := BackgroundContext()
	in, err := OpenFile(ctx, targetPath, false)
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, ResolveSelectors(in.DB, []string{"n1"}, Selector{}))
	require.NoError(t, ExpandSubgraph(in.DB, ExpansionPolicy{Connected: true}))

	outPath := filepath.Join(t.TempDir(), "subgraph.gfab")
	require.NoError(t, EmitSubgraph(ctx, in, outPath, false, false, nil))

	out, err := OpenFile(ctx, outPath, true)
	require.NoError(t, err)
	defer out.Close()

	var segCount, linkCount int
	require.NoError(t, out.DB.QueryRow("SELECT count(*) FROM segment").Scan(&segCount))
	assert.Equal(t, 6, segCount)
	require.NoError(t, out.DB.QueryRow("SELECT count(*) FROM link").Scan(&linkCount))
	assert.Equal(t, 5, linkCount)

	var connCount int
	require.NoError(t, out.DB.QueryRow("SELECT count(*) FROM connectivity").Scan(&connCount))
	assert.Equal(t, 6, connCount)
}

func TestEmitSubgraphExcludesWalkWithSegmentOutsideSet(t *testing.T) {
	targetPath := loadTargetGFAB(t, connectivityTestGFA)

	ctx := BackgroundContext()
	in, err := OpenFile(ctx, targetPath, false)
	require.NoError(t, err)
	defer in.Close()

	// n1 alone, no expansion: the walk spans n1..n6, so it must not survive.
	require.NoError(t, ResolveSelectors(in.DB, []string{"n1"}, Selector{}))
	require.NoError(t, ExpandSubgraph(in.DB, ExpansionPolicy{}))

	outPath := filepath.Join(t.TempDir(), "subgraph-partial.gfab")
	require.NoError(t, EmitSubgraph(ctx, in, outPath, false, true, nil))

	out, err := OpenFile(ctx, outPath, true)
	require.NoError(t, err)
	defer out.Close()

	var walkCount int
	require.NoError(t, out.DB.QueryRow("SELECT count(*) FROM walk").Scan(&walkCount))
	assert.Zero(t, walkCount)
}
