package gfab

import (
	"context"
	"database/sql"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/gfabase/circular"
)

// llrbID wraps a segment id so it can be stored in a github.com/biogo/store
// llrb.Tree, the ordered adjacency structure used to build connectivity.
type llrbID int64

// Compare implements llrb.Comparable.
func (a llrbID) Compare(b llrb.Comparable) int {
	b2 := b.(llrbID)
	switch {
	case a < b2:
		return -1
	case a > b2:
		return 1
	default:
		return 0
	}
}

// csrAdjacency is a compressed sparse row adjacency built once from the
// link table. ids[pos] is the segment id at
// position pos; neighbors of position pos are
// neighbors[offsets[pos]:offsets[pos+1]], stored as positions (not raw
// segment ids) for fast array indexing during DFS.
type csrAdjacency struct {
	ids       []int64
	posOf     map[int64]int
	offsets   []int
	neighbors []int
}

// buildAdjacency streams the link table and accumulates an ordered
// neighbor set per segment using llrb.Tree (deduplicating multi-edges and
// dropping self-loops, per the Open Question decision recorded in
// DESIGN.md), then flattens it into a CSR array.
func buildAdjacency(db *sql.DB) (*csrAdjacency, error) {
	idRows, err := db.Query(`SELECT segment_id FROM segment ORDER BY segment_id`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing segments")
	}
	defer idRows.Close()

	var ids []int64
	posOf := make(map[int64]int)
	for idRows.Next() {
		var id int64
		if err := idRows.Scan(&id); err != nil {
			return nil, Wrap(KindIO, err, "scanning segment id")
		}
		posOf[id] = len(ids)
		ids = append(ids, id)
	}
	if err := idRows.Err(); err != nil {
		return nil, Wrap(KindIO, err, "listing segments")
	}

	trees := make([]llrb.Tree, len(ids))

	linkRows, err := db.Query(`SELECT from_segment, to_segment FROM link ORDER BY from_segment`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing links")
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var from, to int64
		if err := linkRows.Scan(&from, &to); err != nil {
			return nil, Wrap(KindIO, err, "scanning link")
		}
		if from == to {
			// Self-loops are excluded from the undirected adjacency
			// entirely: see DESIGN.md's Open Question decision.
			continue
		}
		fp, ok := posOf[from]
		if !ok {
			return nil, Errorf(KindInternal, "link references unknown segment %d", from)
		}
		tp, ok := posOf[to]
		if !ok {
			return nil, Errorf(KindInternal, "link references unknown segment %d", to)
		}
		trees[fp].Insert(llrbID(to))
		trees[tp].Insert(llrbID(from))
	}
	if err := linkRows.Err(); err != nil {
		return nil, Wrap(KindIO, err, "listing links")
	}

	offsets := make([]int, len(ids)+1)
	var neighbors []int
	cap := circular.NextExp2(len(ids) + 1)
	neighbors = make([]int, 0, cap)
	for i := range ids {
		offsets[i] = len(neighbors)
		trees[i].Do(func(c llrb.Comparable) (done bool) {
			neighbors = append(neighbors, posOf[int64(c.(llrbID))])
			return false
		})
	}
	offsets[len(ids)] = len(neighbors)

	return &csrAdjacency{ids: ids, posOf: posOf, offsets: offsets, neighbors: neighbors}, nil
}

func (a *csrAdjacency) neighborsOf(pos int) []int {
	return a.neighbors[a.offsets[pos]:a.offsets[pos+1]]
}

type dfsEdge struct{ u, v int }

// dfsFrame is one stack frame of the iterative, explicit-stack DFS, tracking
// enough phase state per node to emit both cutpoints and biconnected-
// component boundaries without recursion.
type dfsFrame struct {
	node     int
	edgeIdx  int
	children int // DFS-tree children discovered from this node so far.
}

// connectivityResult accumulates the rows BuildConnectivity will insert.
type connectivityResult struct {
	componentID map[int]int64 // position -> component id (smallest segment id in the component)
	isCutpoint  map[int]bool
	bicomponent map[int][2]int64 // position -> one (min,max) pair; a cutpoint may need several, handled via bicompRows
	bicompRows  []biconnRow
}

type biconnRow struct {
	pos            int
	min, max       int64
}

// runDFS performs one iterative DFS from every undiscovered position in
// ascending segment-id order, assigning component ids, cutpoint flags, and
// biconnected component boundaries. It never recurses, so it cannot
// overflow the call stack regardless of chain length.
func runDFS(adj *csrAdjacency) *connectivityResult {
	n := len(adj.ids)
	disc := make([]int, n)
	low := make([]int, n)
	visited := make([]bool, n)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1
	}
	result := &connectivityResult{
		componentID: make(map[int]int64),
		isCutpoint:  make(map[int]bool),
		bicomponent: make(map[int][2]int64),
	}
	counter := 0
	var edgeStack []dfsEdge

	for root := 0; root < n; root++ {
		if visited[root] || len(adj.neighborsOf(root)) == 0 {
			continue
		}
		visited[root] = true
		disc[root] = counter
		low[root] = counter
		counter++
		rootChildren := 0

		stack := []dfsFrame{{node: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := top.node
			result.componentID[node] = adj.ids[root]

			if top.edgeIdx < len(adj.neighborsOf(node)) {
				child := adj.neighborsOf(node)[top.edgeIdx]
				top.edgeIdx++
				if child == parent[node] {
					continue
				}
				if !visited[child] {
					visited[child] = true
					parent[child] = node
					disc[child] = counter
					low[child] = counter
					counter++
					edgeStack = append(edgeStack, dfsEdge{u: node, v: child})
					if node == root {
						rootChildren++
					}
					top.children++
					stack = append(stack, dfsFrame{node: child})
				} else if disc[child] < disc[node] {
					edgeStack = append(edgeStack, dfsEdge{u: node, v: child})
					if disc[child] < low[node] {
						low[node] = disc[child]
					}
				}
				continue
			}

			// All of node's edges processed; pop its frame.
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				if rootChildren >= 2 {
					result.isCutpoint[root] = true
				}
				continue
			}
			par := stack[len(stack)-1].node
			if low[node] < low[par] {
				low[par] = low[node]
			}
			if low[node] >= disc[par] {
				comp := popBiconnectedComponent(&edgeStack, par, node)
				result.record(adj, comp)
				if par != root {
					result.isCutpoint[par] = true
				}
			}
		}
	}
	return result
}

func popBiconnectedComponent(stack *[]dfsEdge, par, node int) []dfsEdge {
	var comp []dfsEdge
	for len(*stack) > 0 {
		e := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		comp = append(comp, e)
		if e.u == par && e.v == node {
			break
		}
	}
	return comp
}

// record stores a biconnected component's (segment_id, min, max) rows,
// skipping trivial single-edge components (bridges produce no rows).
func (r *connectivityResult) record(adj *csrAdjacency, comp []dfsEdge) {
	if len(comp) < 2 {
		return
	}
	seen := make(map[int]bool)
	var minID, maxID int64
	first := true
	for _, e := range comp {
		for _, pos := range [2]int{e.u, e.v} {
			if seen[pos] {
				continue
			}
			seen[pos] = true
			id := adj.ids[pos]
			if first {
				minID, maxID = id, id
				first = false
			} else {
				if id < minID {
					minID = id
				}
				if id > maxID {
					maxID = id
				}
			}
		}
	}
	for pos := range seen {
		r.bicompRows = append(r.bicompRows, biconnRow{pos: pos, min: minID, max: maxID})
	}
}

// BuildConnectivity computes the connected-component and
// cutpoint/biconnectivity tables for every segment reachable via an
// undirected link. Isolated segments (degree 0) are omitted.
func BuildConnectivity(ctx context.Context, db *sql.DB) error {
	adj, err := buildAdjacency(db)
	if err != nil {
		return err
	}
	result := runDFS(adj)

	tx, err := db.Begin()
	if err != nil {
		return Wrap(KindIO, err, "starting connectivity transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM connectivity`); err != nil {
		return Wrap(KindIO, err, "clearing connectivity")
	}
	if _, err := tx.Exec(`DELETE FROM biconnectivity`); err != nil {
		return Wrap(KindIO, err, "clearing biconnectivity")
	}
	if _, err := tx.Exec(`DELETE FROM walk_connectivity`); err != nil {
		return Wrap(KindIO, err, "clearing walk_connectivity")
	}

	insertConn, err := tx.Prepare(`INSERT INTO connectivity(segment_id, component_id, is_cutpoint) VALUES (?,?,?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing connectivity insert")
	}
	// Positions are visited in ascending order for determinism.
	positions := make([]int, 0, len(result.componentID))
	for pos := range result.componentID {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		cutpoint := 0
		if result.isCutpoint[pos] {
			cutpoint = 1
		}
		if _, err := insertConn.Exec(adj.ids[pos], result.componentID[pos], cutpoint); err != nil {
			return Wrap(KindIO, err, "inserting connectivity row")
		}
	}

	insertBi, err := tx.Prepare(`INSERT INTO biconnectivity(segment_id, bicomponent_min, bicomponent_max) VALUES (?,?,?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing biconnectivity insert")
	}
	sort.Slice(result.bicompRows, func(i, j int) bool {
		if result.bicompRows[i].min != result.bicompRows[j].min {
			return result.bicompRows[i].min < result.bicompRows[j].min
		}
		return result.bicompRows[i].pos < result.bicompRows[j].pos
	})
	for _, row := range result.bicompRows {
		if _, err := insertBi.Exec(adj.ids[row.pos], row.min, row.max); err != nil {
			return Wrap(KindIO, err, "inserting biconnectivity row")
		}
	}

	if err := buildWalkConnectivity(tx, result, adj); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Wrap(KindIO, err, "committing connectivity transaction")
	}
	return nil
}

// buildWalkConnectivity scans each walk's decoded step list and emits
// (walk_id, component_id) for each distinct component touched.
// Isolated segments contribute their own singleton
// component (component_id == segment_id), since they have no row in
// result.componentID.
func buildWalkConnectivity(tx *sql.Tx, result *connectivityResult, adj *csrAdjacency) error {
	rows, err := tx.Query(`SELECT walk_id, steps_json FROM walk`)
	if err != nil {
		return Wrap(KindIO, err, "listing walks")
	}
	defer rows.Close()

	type walkSteps struct {
		id    int64
		steps []byte
	}
	var walks []walkSteps
	for rows.Next() {
		var w walkSteps
		if err := rows.Scan(&w.id, &w.steps); err != nil {
			return Wrap(KindIO, err, "scanning walk")
		}
		walks = append(walks, w)
	}
	if err := rows.Err(); err != nil {
		return Wrap(KindIO, err, "listing walks")
	}

	insert, err := tx.Prepare(`INSERT INTO walk_connectivity(walk_id, component_id) VALUES (?,?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing walk_connectivity insert")
	}

	for _, w := range walks {
		steps, err := decodeWalk(w.steps)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool)
		for _, st := range steps {
			pos, ok := adj.posOf[st.SegmentID]
			var component int64
			if ok {
				if cid, ok := result.componentID[pos]; ok {
					component = cid
				} else {
					component = st.SegmentID
				}
			} else {
				component = st.SegmentID
			}
			if seen[component] {
				continue
			}
			seen[component] = true
			if _, err := insert.Exec(w.id, component); err != nil {
				return Wrap(KindIO, err, "inserting walk_connectivity row")
			}
		}
	}
	return nil
}
