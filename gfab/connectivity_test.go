package gfab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectivityTestGFA = `S	n1	*
S	n2	*
S	n3	*
S	n4	*
S	n5	*
S	n6	*
S	n7	*
S	t1	*
S	t2	*
S	t3	*
L	n1	+	n2	+	0M
L	n2	+	n3	+	0M
L	n3	+	n4	+	0M
L	n4	+	n5	+	0M
L	n5	+	n6	+	0M
L	t1	+	t2	+	0M
L	t2	+	t3	+	0M
L	t1	+	t3	+	0M
W	samplex	0	chrA	0	6	n1+n2+n3+n4+n5+n6+
`

func TestBuildConnectivityComponentsAndCutpoints(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	idOf := func(name string) int64 {
		var id int64
		require.NoError(t, f.DB.QueryRow("SELECT segment_id FROM segment WHERE name = ?", name).Scan(&id))
		return id
	}
	cutpointOf := func(name string) bool {
		var isCutpoint int
		require.NoError(t, f.DB.QueryRow(
			"SELECT is_cutpoint FROM connectivity WHERE segment_id = ?", idOf(name)).Scan(&isCutpoint))
		return isCutpoint == 1
	}
	componentOf := func(name string) int64 {
		var componentID int64
		require.NoError(t, f.DB.QueryRow(
			"SELECT component_id FROM connectivity WHERE segment_id = ?", idOf(name)).Scan(&componentID))
		return componentID
	}

	// n7 has no links: it must be entirely absent from connectivity.
	var count int
	require.NoError(t, f.DB.QueryRow(
		"SELECT count(*) FROM connectivity WHERE segment_id = ?", idOf("n7")).Scan(&count))
	assert.Zero(t, count)

	// The chain's interior nodes are cutpoints, its endpoints are not.
	assert.False(t, cutpointOf("n1"))
	assert.True(t, cutpointOf("n2"))
	assert.True(t, cutpointOf("n3"))
	assert.True(t, cutpointOf("n4"))
	assert.True(t, cutpointOf("n5"))
	assert.False(t, cutpointOf("n6"))

	// The triangle is a single biconnected cycle: nobody in it is a cutpoint.
	assert.False(t, cutpointOf("t1"))
	assert.False(t, cutpointOf("t2"))
	assert.False(t, cutpointOf("t3"))

	// Chain and triangle are disjoint connected components.
	assert.Equal(t, componentOf("n1"), componentOf("n6"))
	assert.Equal(t, componentOf("t1"), componentOf("t3"))
	assert.NotEqual(t, componentOf("n1"), componentOf("t1"))
}

func TestBuildConnectivityBiconnectedRows(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	idOf := func(name string) int64 {
		var id int64
		require.NoError(t, f.DB.QueryRow("SELECT segment_id FROM segment WHERE name = ?", name).Scan(&id))
		return id
	}

	// Every chain edge is a bridge: a trivial single-edge biconnected
	// component produces no rows.
	var chainRows int
	require.NoError(t, f.DB.QueryRow(
		"SELECT count(*) FROM biconnectivity WHERE segment_id = ?", idOf("n3")).Scan(&chainRows))
	assert.Zero(t, chainRows)

	// The triangle is one non-trivial biconnected component: all three
	// members get a row sharing the same (min,max) bounds.
	minID, maxID := idOf("t1"), idOf("t3")
	rows, err := f.DB.Query("SELECT segment_id, bicomponent_min, bicomponent_max FROM biconnectivity")
	require.NoError(t, err)
	defer rows.Close()

	seen := map[int64]bool{}
	for rows.Next() {
		var segID, lo, hi int64
		require.NoError(t, rows.Scan(&segID, &lo, &hi))
		assert.Equal(t, minID, lo)
		assert.Equal(t, maxID, hi)
		seen[segID] = true
	}
	require.NoError(t, rows.Err())
	assert.Len(t, seen, 3)
}

func TestBuildConnectivityWalkConnectivity(t *testing.T) {
	f := loadTestGFA(t, connectivityTestGFA)
	defer f.Close()

	var count int
	require.NoError(t, f.DB.QueryRow("SELECT count(*) FROM walk_connectivity").Scan(&count))
	// The walk stays within a single component the whole way through.
	assert.Equal(t, 1, count)
}
