package gfab

import (
	"database/sql"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// Selector is one command-line subgraph selector token or flag value.
type Selector struct {
	Token       string // bare segment id or name
	Paths       []string
	Ranges      []string // "CHR:BEG-END"
	GuessRanges bool
}

var rangeShape = regexp.MustCompile(`^[^:]+(:[0-9]+-[0-9]+)?$`)

// ResolveSelectors populates temp.start_segments in db with the union of
// segments named by tokens and sel. It creates (or empties) that temp table
// itself via createSelectorTempTable.
func ResolveSelectors(db *sql.DB, tokens []string, sel Selector) error {
	if err := createSelectorTempTable(db); err != nil {
		return err
	}
	insert, err := db.Prepare(`INSERT OR IGNORE INTO temp.start_segments(segment_id) VALUES (?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing start_segments insert")
	}
	defer insert.Close()

	for _, tok := range tokens {
		if sel.GuessRanges && rangeShape.MatchString(tok) && strings.Contains(tok, ":") {
			if err := resolveRangeToken(db, insert, tok); err != nil {
				return err
			}
			continue
		}
		if id, err := strconv.ParseInt(tok, 10, 64); err == nil {
			if _, err := insert.Exec(id); err != nil {
				return Wrap(KindIO, err, "inserting start segment")
			}
			continue
		}
		id, ok, err := lookupSegmentByName(db, tok)
		if err != nil {
			return err
		}
		if !ok {
			return notFoundError(db, tok)
		}
		if _, err := insert.Exec(id); err != nil {
			return Wrap(KindIO, err, "inserting start segment")
		}
	}

	for _, name := range sel.Paths {
		if err := resolvePathToken(db, insert, name); err != nil {
			return err
		}
	}

	ranges, err := parseRangeTokens(sel.Ranges)
	if err != nil {
		return err
	}
	merged := mergeRanges(ranges)
	for _, r := range merged {
		if err := resolveRange(db, insert, r); err != nil {
			return err
		}
	}
	return nil
}

func createSelectorTempTable(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TEMP TABLE IF NOT EXISTS start_segments(segment_id INTEGER PRIMARY KEY)`); err != nil {
		return Wrap(KindIO, err, "creating start_segments temp table")
	}
	if _, err := db.Exec(`DELETE FROM temp.start_segments`); err != nil {
		return Wrap(KindIO, err, "clearing start_segments temp table")
	}
	return nil
}

func lookupSegmentByName(db *sql.DB, name string) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT segment_id FROM segment WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Wrap(KindIO, err, "looking up segment %q", name)
	}
	return id, true, nil
}

func resolvePathToken(db *sql.DB, insert *sql.Stmt, name string) error {
	var pathID int64
	err := db.QueryRow(`SELECT path_id FROM path WHERE name = ?`, name).Scan(&pathID)
	if err == sql.ErrNoRows {
		return notFoundError(db, name)
	}
	if err != nil {
		return Wrap(KindIO, err, "looking up path %q", name)
	}
	rows, err := db.Query(`SELECT segment_id FROM path_element WHERE path_id = ?`, pathID)
	if err != nil {
		return Wrap(KindIO, err, "listing path elements for %q", name)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Wrap(KindIO, err, "scanning path element")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Wrap(KindIO, err, "listing path elements for %q", name)
	}
	for _, id := range ids {
		if _, err := insert.Exec(id); err != nil {
			return Wrap(KindIO, err, "inserting start segment")
		}
	}
	return nil
}

func resolveRangeToken(db *sql.DB, insert *sql.Stmt, tok string) error {
	r, err := parseRangeToken(tok)
	if err != nil {
		return err
	}
	return resolveRange(db, insert, r)
}

func parseRangeTokens(tokens []string) ([]RefRange, error) {
	var out []RefRange
	for _, tok := range tokens {
		r, err := parseRangeToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRangeToken(tok string) (RefRange, error) {
	colon := strings.IndexByte(tok, ':')
	if colon < 0 {
		return RefRange{}, Errorf(KindUsage, "range %q must be CHR:BEGIN-END", tok)
	}
	chrom := tok[:colon]
	span := tok[colon+1:]
	dash := strings.IndexByte(span, '-')
	if dash < 0 {
		return RefRange{}, Errorf(KindUsage, "range %q must be CHR:BEGIN-END", tok)
	}
	begin, err := strconv.ParseInt(span[:dash], 10, 64)
	if err != nil {
		return RefRange{}, Errorf(KindUsage, "range %q has a non-numeric begin", tok)
	}
	end, err := strconv.ParseInt(span[dash+1:], 10, 64)
	if err != nil {
		return RefRange{}, Errorf(KindUsage, "range %q has a non-numeric end", tok)
	}
	return RefRange{Chrom: chrom, Begin: begin, End: end}, nil
}

// resolveRange queries the mapping_rtree for segments whose mapping
// overlaps r. Both r and the stored mappings are half-open, so a mapping
// that only touches r at an endpoint does not match.
func resolveRange(db *sql.DB, insert *sql.Stmt, r RefRange) error {
	rows, err := db.Query(`SELECT segment_id FROM mapping_rtree
		WHERE refseq_min <= ? AND refseq_max >= ? AND refseq_name = ?
		AND "begin" < ? AND "end" > ?`,
		r.End, r.Begin, r.Chrom, r.End, r.Begin)
	if err != nil {
		return Wrap(KindIO, err, "querying mapping_rtree for %s:%d-%d", r.Chrom, r.Begin, r.End)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Wrap(KindIO, err, "scanning mapping_rtree row")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Wrap(KindIO, err, "querying mapping_rtree for %s:%d-%d", r.Chrom, r.Begin, r.End)
	}
	for _, id := range ids {
		if _, err := insert.Exec(id); err != nil {
			return Wrap(KindIO, err, "inserting start segment")
		}
	}
	return nil
}

// notFoundError builds a NOT_FOUND error enriched with a "did you mean"
// suggestion. The suggestion is the closest known segment or path name by
// Levenshtein distance, shown only inside max(2, len(token)/3) edits,
// ties broken lexically.
func notFoundError(db *sql.DB, token string) error {
	names, err := allNames(db)
	if err != nil {
		return err
	}
	threshold := len(token) / 3
	if threshold < 2 {
		threshold = 2
	}
	best := ""
	bestDist := -1
	for _, name := range names {
		d := matchr.Levenshtein(token, name)
		if d > threshold {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && name < best) {
			best = name
			bestDist = d
		}
	}
	if best == "" {
		return Errorf(KindNotFound, "no segment or path named %q", token)
	}
	return Errorf(KindNotFound, "no segment or path named %q (did you mean %q?)", token, best)
}

func allNames(db *sql.DB) ([]string, error) {
	var names []string
	segRows, err := db.Query(`SELECT name FROM segment WHERE name IS NOT NULL`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing segment names")
	}
	defer segRows.Close()
	for segRows.Next() {
		var n string
		if err := segRows.Scan(&n); err != nil {
			return nil, Wrap(KindIO, err, "scanning segment name")
		}
		names = append(names, n)
	}
	if err := segRows.Err(); err != nil {
		return nil, Wrap(KindIO, err, "listing segment names")
	}

	pathRows, err := db.Query(`SELECT name FROM path WHERE name IS NOT NULL`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing path names")
	}
	defer pathRows.Close()
	for pathRows.Next() {
		var n string
		if err := pathRows.Scan(&n); err != nil {
			return nil, Wrap(KindIO, err, "scanning path name")
		}
		names = append(names, n)
	}
	if err := pathRows.Err(); err != nil {
		return nil, Wrap(KindIO, err, "listing path names")
	}
	sort.Strings(names)
	return names, nil
}
