package gfab

import (
	"context"
	"database/sql"
	"sort"

	"github.com/grailbio/gfabase/circular"
)

// ExpansionPolicy selects how ExpandSubgraph grows temp.start_segments into
// temp.sub_segments.
type ExpansionPolicy struct {
	Connected bool

	Cutpoints       int // N; 0 disables the policy.
	CutpointsMinLen int // L, the --cutpoints-nt minimum segment length.

	Biconnected int // K; 0 disables the policy.
}

// ExpandSubgraph reads temp.start_segments and writes temp.sub_segments
// according to policy. The default (all flags zero/false) copies
// start_segments verbatim.
func ExpandSubgraph(db *sql.DB, policy ExpansionPolicy) error {
	start, err := readSegmentSet(db, `SELECT segment_id FROM temp.start_segments`)
	if err != nil {
		return err
	}

	var result map[int64]bool
	switch {
	case policy.Connected:
		result, err = expandConnected(db, start)
	case policy.Cutpoints > 0:
		result, err = expandCutpoints(db, start, policy.Cutpoints, policy.CutpointsMinLen)
	case policy.Biconnected > 0:
		result, err = expandBiconnected(db, start, policy.Biconnected)
	default:
		result = start
	}
	if err != nil {
		return err
	}
	for id := range start {
		result[id] = true
	}
	return writeSubSegments(db, result)
}

func readSegmentSet(db *sql.DB, query string, args ...interface{}) (map[int64]bool, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, Wrap(KindIO, err, "reading segment set")
	}
	defer rows.Close()
	set := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, Wrap(KindIO, err, "scanning segment id")
		}
		set[id] = true
	}
	return set, rows.Err()
}

func writeSubSegments(db *sql.DB, set map[int64]bool) error {
	if _, err := db.Exec(`CREATE TEMP TABLE IF NOT EXISTS sub_segments(segment_id INTEGER PRIMARY KEY)`); err != nil {
		return Wrap(KindIO, err, "creating sub_segments temp table")
	}
	if _, err := db.Exec(`DELETE FROM temp.sub_segments`); err != nil {
		return Wrap(KindIO, err, "clearing sub_segments temp table")
	}
	insert, err := db.Prepare(`INSERT OR IGNORE INTO temp.sub_segments(segment_id) VALUES (?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing sub_segments insert")
	}
	defer insert.Close()
	ids := sortedKeys(set)
	for _, id := range ids {
		if _, err := insert.Exec(id); err != nil {
			return Wrap(KindIO, err, "inserting sub segment")
		}
	}
	return nil
}

func sortedKeys(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// expandConnected grows start to every segment sharing a connected
// component with any starting segment.
func expandConnected(db *sql.DB, start map[int64]bool) (map[int64]bool, error) {
	result := make(map[int64]bool)
	for id := range start {
		result[id] = true
	}
	components := make(map[int64]bool)
	for id := range start {
		var cid int64
		err := db.QueryRow(`SELECT component_id FROM connectivity WHERE segment_id = ?`, id).Scan(&cid)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, Wrap(KindIO, err, "looking up component for segment %d", id)
		}
		components[cid] = true
	}
	for cid := range components {
		rows, err := db.Query(`SELECT segment_id FROM connectivity WHERE component_id = ?`, cid)
		if err != nil {
			return nil, Wrap(KindIO, err, "listing component %d", cid)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, Wrap(KindIO, err, "scanning component member")
			}
			result[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return result, nil
}

type cutpointFrontierEntry struct {
	id     int64
	budget int
}

// expandCutpoints performs an ascending-id, level-by-level BFS, spending
// budget only when crossing a cutpoint whose sequence_length is at least
// minLen.
func expandCutpoints(db *sql.DB, start map[int64]bool, n, minLen int) (map[int64]bool, error) {
	cutpoints, lengths, err := loadCutpointInfo(db)
	if err != nil {
		return nil, err
	}
	adj, err := loadNeighborMap(db)
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	result := make(map[int64]bool)
	level := make([]cutpointFrontierEntry, 0, circular.NextExp2(len(start)+1))
	for id := range start {
		visited[id] = true
		result[id] = true
		level = append(level, cutpointFrontierEntry{id: id, budget: n - 1})
	}
	sort.Slice(level, func(i, j int) bool { return level[i].id < level[j].id })

	for len(level) > 0 {
		next := make([]cutpointFrontierEntry, 0, circular.NextExp2(len(level)+1))
		for _, entry := range level {
			for _, neighbor := range adj[entry.id] {
				if visited[neighbor] {
					continue
				}
				budget := entry.budget
				isCrossing := cutpoints[neighbor] && lengths[neighbor] >= int64(minLen)
				if isCrossing {
					budget--
				}
				visited[neighbor] = true
				result[neighbor] = true
				if !isCrossing || budget >= 0 {
					next = append(next, cutpointFrontierEntry{id: neighbor, budget: budget})
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i].id < next[j].id })
		level = next
	}
	return result, nil
}

func loadCutpointInfo(db *sql.DB) (cutpoints map[int64]bool, lengths map[int64]int64, err error) {
	cutpoints = make(map[int64]bool)
	rows, err := db.Query(`SELECT segment_id FROM connectivity WHERE is_cutpoint = 1`)
	if err != nil {
		return nil, nil, Wrap(KindIO, err, "listing cutpoints")
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, Wrap(KindIO, err, "scanning cutpoint")
		}
		cutpoints[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lengths = make(map[int64]int64)
	lenRows, err := db.Query(`SELECT segment_id, sequence_length FROM segment WHERE sequence_length IS NOT NULL`)
	if err != nil {
		return nil, nil, Wrap(KindIO, err, "listing segment lengths")
	}
	defer lenRows.Close()
	for lenRows.Next() {
		var id, length int64
		if err := lenRows.Scan(&id, &length); err != nil {
			return nil, nil, Wrap(KindIO, err, "scanning segment length")
		}
		lengths[id] = length
	}
	return cutpoints, lengths, lenRows.Err()
}

// loadNeighborMap builds an undirected adjacency map from the link table,
// excluding self-loops (consistent with the connectivity builder's
// adjacency construction).
func loadNeighborMap(db *sql.DB) (map[int64][]int64, error) {
	adj := make(map[int64][]int64)
	rows, err := db.Query(`SELECT from_segment, to_segment FROM link`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing links")
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, Wrap(KindIO, err, "scanning link")
		}
		if from == to {
			continue
		}
		adj[from] = append(adj[from], to)
		adj[to] = append(adj[to], from)
	}
	return adj, rows.Err()
}

type bicomponentKey struct{ min, max int64 }

// expandBiconnected grows start to the biconnected components it touches,
// then iteratively pulls in components sharing a cutpoint, up to k
// iterations.
func expandBiconnected(db *sql.DB, start map[int64]bool, k int) (map[int64]bool, error) {
	members, owners, err := loadBiconnectivity(db)
	if err != nil {
		return nil, err
	}
	cutpoints, _, err := loadCutpointInfo(db)
	if err != nil {
		return nil, err
	}

	current := make(map[bicomponentKey]bool)
	for id := range start {
		for _, key := range owners[id] {
			current[key] = true
		}
	}

	for iter := 1; iter < k; iter++ {
		frontierCutpoints := make(map[int64]bool)
		for key := range current {
			for _, id := range members[key] {
				if cutpoints[id] {
					frontierCutpoints[id] = true
				}
			}
		}
		added := false
		for id := range frontierCutpoints {
			for _, key := range owners[id] {
				if !current[key] {
					current[key] = true
					added = true
				}
			}
		}
		if !added {
			break
		}
	}

	result := make(map[int64]bool)
	for key := range current {
		for _, id := range members[key] {
			result[id] = true
		}
	}
	return result, nil
}

func loadBiconnectivity(db *sql.DB) (members map[bicomponentKey][]int64, owners map[int64][]bicomponentKey, err error) {
	members = make(map[bicomponentKey][]int64)
	owners = make(map[int64][]bicomponentKey)
	rows, err := db.Query(`SELECT segment_id, bicomponent_min, bicomponent_max FROM biconnectivity`)
	if err != nil {
		return nil, nil, Wrap(KindIO, err, "listing biconnectivity")
	}
	defer rows.Close()
	for rows.Next() {
		var id, min, max int64
		if err := rows.Scan(&id, &min, &max); err != nil {
			return nil, nil, Wrap(KindIO, err, "scanning biconnectivity row")
		}
		key := bicomponentKey{min: min, max: max}
		members[key] = append(members[key], id)
		owners[id] = append(owners[id], key)
	}
	return members, owners, rows.Err()
}

// EmitSubgraph projects temp.sub_segments (previously populated by
// ExpandSubgraph from ResolveSelectors' temp.start_segments) into a new
// .gfab at outputPath.
func EmitSubgraph(ctx context.Context, in *File, outputPath string, noSequences, noConnectivity bool, walkSamples []string) error {
	out, err := CreateFile(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := in.DB.Exec(`ATTACH DATABASE ? AS output`, out.localPath); err != nil {
		return Wrap(KindIO, err, "attaching output database")
	}
	defer in.DB.Exec(`DETACH DATABASE output`)

	if _, err := in.DB.Exec(`INSERT INTO output.segment(segment_id, name, sequence_length, tags_json)
		SELECT segment_id, name, sequence_length, tags_json FROM segment
		WHERE segment_id IN (SELECT segment_id FROM temp.sub_segments) ORDER BY segment_id`); err != nil {
		return Wrap(KindIO, err, "copying segments")
	}

	if !noSequences {
		if _, err := in.DB.Exec(`INSERT INTO output.segment_sequence(segment_id, twobit)
			SELECT segment_id, twobit FROM segment_sequence
			WHERE segment_id IN (SELECT segment_id FROM temp.sub_segments)`); err != nil {
			return Wrap(KindIO, err, "copying sequences")
		}
	}

	if _, err := in.DB.Exec(`INSERT INTO output.mapping(segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json)
		SELECT segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json FROM mapping
		WHERE segment_id IN (SELECT segment_id FROM temp.sub_segments) ORDER BY segment_id`); err != nil {
		return Wrap(KindIO, err, "copying mappings")
	}

	if _, err := in.DB.Exec(`INSERT INTO output.link(from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json)
		SELECT from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json FROM link
		WHERE from_segment IN (SELECT segment_id FROM temp.sub_segments)
		  AND to_segment IN (SELECT segment_id FROM temp.sub_segments)
		ORDER BY from_segment, to_segment`); err != nil {
		return Wrap(KindIO, err, "copying links")
	}

	if _, err := in.DB.Exec(`INSERT INTO output.containment(container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json)
		SELECT container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json FROM containment
		WHERE container_segment IN (SELECT segment_id FROM temp.sub_segments)
		  AND contained_segment IN (SELECT segment_id FROM temp.sub_segments)`); err != nil {
		return Wrap(KindIO, err, "copying containments")
	}

	if err := copyEligiblePaths(in.DB); err != nil {
		return err
	}
	if err := copyEligibleWalks(in.DB, walkSamples); err != nil {
		return err
	}

	if _, err := in.DB.Exec(`INSERT INTO output.header(tags_json) SELECT tags_json FROM header`); err != nil {
		return Wrap(KindIO, err, "copying header")
	}

	if err := createSecondaryIndexes(out.DB); err != nil {
		return err
	}
	if !noConnectivity {
		if err := BuildConnectivity(ctx, out.DB); err != nil {
			return err
		}
	}
	if err := rebuildMappingRtree(out.DB); err != nil {
		return err
	}
	if err := rebuildWalkRtree(out.DB); err != nil {
		return err
	}
	return nil
}

func copyEligiblePaths(db *sql.DB) error {
	rows, err := db.Query(`SELECT path_id FROM path p
		WHERE NOT EXISTS (
			SELECT 1 FROM path_element pe
			WHERE pe.path_id = p.path_id AND pe.segment_id NOT IN (SELECT segment_id FROM temp.sub_segments)
		)`)
	if err != nil {
		return Wrap(KindIO, err, "selecting eligible paths")
	}
	var pathIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Wrap(KindIO, err, "scanning path id")
		}
		pathIDs = append(pathIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range pathIDs {
		if _, err := db.Exec(`INSERT INTO output.path(path_id, name, tags_json)
			SELECT path_id, name, tags_json FROM path WHERE path_id = ?`, id); err != nil {
			return Wrap(KindIO, err, "copying path")
		}
		if _, err := db.Exec(`INSERT INTO output.path_element(path_id, ordinal, segment_id, reverse, cigar_vs_previous)
			SELECT path_id, ordinal, segment_id, reverse, cigar_vs_previous FROM path_element
			WHERE path_id = ? ORDER BY ordinal`, id); err != nil {
			return Wrap(KindIO, err, "copying path elements")
		}
	}
	return nil
}

func copyEligibleWalks(db *sql.DB, walkSamples []string) error {
	query := `SELECT walk_id, steps_json FROM walk w
		WHERE min_segment_id IN (SELECT segment_id FROM temp.sub_segments)
		  AND max_segment_id IN (SELECT segment_id FROM temp.sub_segments)`
	sampleFilter := make(map[string]bool)
	for _, s := range walkSamples {
		sampleFilter[s] = true
	}
	rows, err := db.Query(query)
	if err != nil {
		return Wrap(KindIO, err, "selecting candidate walks")
	}
	type candidate struct {
		id    int64
		steps []byte
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.steps); err != nil {
			rows.Close()
			return Wrap(KindIO, err, "scanning walk")
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	subSet, err := readSegmentSet(db, `SELECT segment_id FROM temp.sub_segments`)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		steps, err := decodeWalk(c.steps)
		if err != nil {
			return err
		}
		allIn := true
		for _, st := range steps {
			if !subSet[st.SegmentID] {
				allIn = false
				break
			}
		}
		if !allIn {
			continue
		}
		if len(sampleFilter) > 0 {
			var sample sql.NullString
			if err := db.QueryRow(`SELECT sample FROM walk WHERE walk_id = ?`, c.id).Scan(&sample); err != nil {
				return Wrap(KindIO, err, "looking up walk sample")
			}
			if !sampleFilter[sample.String] {
				continue
			}
		}
		if _, err := db.Exec(`INSERT INTO output.walk(walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end, min_segment_id, max_segment_id, steps_json, tags_json)
			SELECT walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end, min_segment_id, max_segment_id, steps_json, tags_json
			FROM walk WHERE walk_id = ?`, c.id); err != nil {
			return Wrap(KindIO, err, "copying walk")
		}
	}
	return nil
}
