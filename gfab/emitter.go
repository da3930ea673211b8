package gfab

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"v.io/x/lib/vlog"
)

// EmitOptions controls EmitGFA1.
type EmitOptions struct {
	NoSequences bool
}

// EmitGFA1 streams db's header/segment/link/containment/path/walk rows (or,
// when restrictToSubSegments is set, just the rows whose segments all lie in
// temp.sub_segments) as GFA1 text to w, in the canonical H/S/L/C/P/W order.
func EmitGFA1(db *sql.DB, w io.Writer, opts EmitOptions, restrictToSubSegments bool) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	selector := ""
	if restrictToSubSegments {
		selector = " WHERE segment_id IN (SELECT segment_id FROM temp.sub_segments)"
	}

	if err := emitHeader(db, bw); err != nil {
		return err
	}
	if err := emitSegments(db, bw, opts.NoSequences, selector); err != nil {
		return err
	}
	if err := emitLinks(db, bw, restrictToSubSegments); err != nil {
		return err
	}
	if err := emitContainments(db, bw, restrictToSubSegments); err != nil {
		return err
	}
	if err := emitPaths(db, bw, restrictToSubSegments); err != nil {
		return err
	}
	if err := emitWalks(db, bw, restrictToSubSegments); err != nil {
		return err
	}
	return bw.Flush()
}

func emitHeader(db *sql.DB, w *bufio.Writer) error {
	var tagsJSON sql.NullString
	err := db.QueryRow(`SELECT tags_json FROM header LIMIT 1`).Scan(&tagsJSON)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return Wrap(KindIO, err, "reading header")
	}
	line, err := renderLine("H", nil, tagsJSON)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, line)
	return err
}

func emitSegments(db *sql.DB, w *bufio.Writer, noSequences bool, selector string) error {
	rows, err := db.Query(`SELECT segment_id, name, sequence_length, tags_json, twobit
		FROM segment LEFT JOIN segment_sequence USING (segment_id)` + selector + ` ORDER BY segment_id`)
	if err != nil {
		return Wrap(KindIO, err, "listing segments")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name sql.NullString
		var length sql.NullInt64
		var tagsJSON sql.NullString
		var twobit []byte
		if err := rows.Scan(&id, &name, &length, &tagsJSON, &twobit); err != nil {
			return Wrap(KindIO, err, "scanning segment")
		}
		sequence := "*"
		if !noSequences && twobit != nil {
			sequence = string(twobitDecode(twobit))
		}
		segName := name.String
		if !name.Valid {
			segName = fmt.Sprintf("%d", id)
		}
		fields := []string{segName, sequence}
		var extra []string
		if length.Valid {
			extra = append(extra, fmt.Sprintf("LN:i:%d", length.Int64))
		}
		line, err := renderLine("S", append(fields, extra...), tagsJSON)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return Wrap(KindIO, err, "writing segment line")
		}
	}
	return rows.Err()
}

func emitLinks(db *sql.DB, w *bufio.Writer, restrict bool) error {
	selector := ""
	if restrict {
		selector = ` WHERE from_segment IN (SELECT segment_id FROM temp.sub_segments)
			AND to_segment IN (SELECT segment_id FROM temp.sub_segments)`
	}
	rows, err := db.Query(`SELECT l.from_segment, l.from_reverse, l.to_segment, l.to_reverse, l.cigar, l.tags_json,
		fs.name, ts.name
		FROM link l
		JOIN segment fs ON fs.segment_id = l.from_segment
		JOIN segment ts ON ts.segment_id = l.to_segment` + selector + `
		ORDER BY l.from_segment, l.to_segment`)
	if err != nil {
		return Wrap(KindIO, err, "listing links")
	}
	defer rows.Close()
	for rows.Next() {
		var from, to int64
		var fromRev, toRev int
		var cigar, tagsJSON sql.NullString
		var fromName, toName sql.NullString
		if err := rows.Scan(&from, &fromRev, &to, &toRev, &cigar, &tagsJSON, &fromName, &toName); err != nil {
			return Wrap(KindIO, err, "scanning link")
		}
		overlap := "*"
		if cigar.Valid {
			overlap = cigar.String
		}
		fields := []string{
			segmentLabel(from, fromName), orientLabel(fromRev),
			segmentLabel(to, toName), orientLabel(toRev),
			overlap,
		}
		line, err := renderLine("L", fields, tagsJSON)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return Wrap(KindIO, err, "writing link line")
		}
	}
	return rows.Err()
}

func emitContainments(db *sql.DB, w *bufio.Writer, restrict bool) error {
	selector := ""
	if restrict {
		selector = ` WHERE container_segment IN (SELECT segment_id FROM temp.sub_segments)
			AND contained_segment IN (SELECT segment_id FROM temp.sub_segments)`
	}
	rows, err := db.Query(`SELECT c.container_segment, c.container_reverse, c.contained_segment, c.contained_reverse,
		c.position, c.cigar, c.tags_json, cs.name, ks.name
		FROM containment c
		JOIN segment cs ON cs.segment_id = c.container_segment
		JOIN segment ks ON ks.segment_id = c.contained_segment` + selector)
	if err != nil {
		return Wrap(KindIO, err, "listing containments")
	}
	defer rows.Close()
	for rows.Next() {
		var container, contained int64
		var containerRev, containedRev, position int
		var cigar, tagsJSON sql.NullString
		var containerName, containedName sql.NullString
		if err := rows.Scan(&container, &containerRev, &contained, &containedRev, &position, &cigar, &tagsJSON, &containerName, &containedName); err != nil {
			return Wrap(KindIO, err, "scanning containment")
		}
		overlap := "*"
		if cigar.Valid {
			overlap = cigar.String
		}
		fields := []string{
			segmentLabel(container, containerName), orientLabel(containerRev),
			segmentLabel(contained, containedName), orientLabel(containedRev),
			fmt.Sprintf("%d", position), overlap,
		}
		line, err := renderLine("C", fields, tagsJSON)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return Wrap(KindIO, err, "writing containment line")
		}
	}
	return rows.Err()
}

func emitPaths(db *sql.DB, w *bufio.Writer, restrict bool) error {
	selector := ""
	if restrict {
		selector = ` WHERE NOT EXISTS (SELECT 1 FROM path_element pe WHERE pe.path_id = path.path_id
			AND pe.segment_id NOT IN (SELECT segment_id FROM temp.sub_segments))`
	}
	rows, err := db.Query(`SELECT path_id, name, tags_json FROM path` + selector + ` ORDER BY path_id`)
	if err != nil {
		return Wrap(KindIO, err, "listing paths")
	}
	defer rows.Close()
	type pathRow struct {
		id       int64
		name     sql.NullString
		tagsJSON sql.NullString
	}
	var paths []pathRow
	for rows.Next() {
		var p pathRow
		if err := rows.Scan(&p.id, &p.name, &p.tagsJSON); err != nil {
			return Wrap(KindIO, err, "scanning path")
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, p := range paths {
		elemRows, err := db.Query(`SELECT pe.reverse, pe.cigar_vs_previous, s.name, s.segment_id
			FROM path_element pe JOIN segment s ON s.segment_id = pe.segment_id
			WHERE pe.path_id = ? ORDER BY pe.ordinal`, p.id)
		if err != nil {
			return Wrap(KindIO, err, "listing path elements for path %d", p.id)
		}
		var names []string
		var overlaps []string
		for elemRows.Next() {
			var reverse int
			var cigar, name sql.NullString
			var segID int64
			if err := elemRows.Scan(&reverse, &cigar, &name, &segID); err != nil {
				elemRows.Close()
				return Wrap(KindIO, err, "scanning path element")
			}
			label := segmentLabel(segID, name)
			orient := "+"
			if reverse != 0 {
				orient = "-"
			}
			names = append(names, label+orient)
			if len(names) > 1 {
				if cigar.Valid {
					overlaps = append(overlaps, cigar.String)
				} else {
					overlaps = append(overlaps, "*")
				}
			}
		}
		if err := elemRows.Err(); err != nil {
			elemRows.Close()
			return err
		}
		elemRows.Close()

		pathName := p.name.String
		if !p.name.Valid {
			pathName = fmt.Sprintf("%d", p.id)
		}
		overlapField := strings.Join(overlaps, ",")
		if overlapField == "" {
			overlapField = "*"
		}
		fields := []string{pathName, strings.Join(names, ","), overlapField}
		line, err := renderLine("P", fields, p.tagsJSON)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return Wrap(KindIO, err, "writing path line")
		}
	}
	return nil
}

func emitWalks(db *sql.DB, w *bufio.Writer, restrict bool) error {
	names, err := segmentNamesByID(db)
	if err != nil {
		return err
	}
	var subSet map[int64]bool
	if restrict {
		if subSet, err = readSegmentSet(db, `SELECT segment_id FROM temp.sub_segments`); err != nil {
			return err
		}
	}
	rows, err := db.Query(`SELECT walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end, steps_json, tags_json
		FROM walk ORDER BY walk_id`)
	if err != nil {
		return Wrap(KindIO, err, "listing walks")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var sample, refseqName sql.NullString
		var hapIdx, refseqBegin, refseqEnd sql.NullInt64
		var stepsJSON []byte
		var tagsJSON sql.NullString
		if err := rows.Scan(&id, &sample, &hapIdx, &refseqName, &refseqBegin, &refseqEnd, &stepsJSON, &tagsJSON); err != nil {
			return Wrap(KindIO, err, "scanning walk")
		}
		steps, err := decodeWalk(stepsJSON)
		if err != nil {
			return err
		}
		outside := false
		for _, st := range steps {
			if restrict && !subSet[st.SegmentID] {
				outside = true
				break
			}
		}
		if outside {
			continue
		}
		var sb strings.Builder
		for _, st := range steps {
			if name, ok := names[st.SegmentID]; ok {
				sb.WriteString(name)
			} else {
				fmt.Fprintf(&sb, "%d", st.SegmentID)
			}
			if st.Reverse {
				sb.WriteByte('-')
			} else {
				sb.WriteByte('+')
			}
		}
		fields := []string{
			sample.String, fmt.Sprintf("%d", hapIdx.Int64), refseqName.String,
			fmt.Sprintf("%d", refseqBegin.Int64), fmt.Sprintf("%d", refseqEnd.Int64),
			sb.String(),
		}
		line, err := renderLine("W", fields, tagsJSON)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return Wrap(KindIO, err, "writing walk line")
		}
	}
	return rows.Err()
}

// segmentNamesByID loads every named segment's id -> name mapping once, for
// emitWalks to label steps the same way emitLinks/emitPaths label their
// endpoints via segmentLabel.
func segmentNamesByID(db *sql.DB) (map[int64]string, error) {
	rows, err := db.Query(`SELECT segment_id, name FROM segment WHERE name IS NOT NULL`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing segment names")
	}
	defer rows.Close()
	names := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, Wrap(KindIO, err, "scanning segment name")
		}
		names[id] = name
	}
	return names, rows.Err()
}

func segmentLabel(id int64, name sql.NullString) string {
	if name.Valid {
		return name.String
	}
	return fmt.Sprintf("%d", id)
}

func orientLabel(reverse int) string {
	if reverse != 0 {
		return "-"
	}
	return "+"
}

// renderLine assembles one GFA1 line, mirroring the per-record
// "entryType + tab-joined fields" PrintGFAline shape, with any stored tags
// appended as SAM-style TAG:TYPE:VALUE fields.
func renderLine(recordType string, fields []string, tagsJSON sql.NullString) (string, error) {
	parts := append([]string{recordType}, fields...)
	line := strings.Join(parts, "\t")
	if !tagsJSON.Valid || tagsJSON.String == "" {
		return line, nil
	}
	tags, err := decodeHeaderTags([]byte(tagsJSON.String))
	if err != nil {
		return "", err
	}
	for _, t := range tags {
		line += "\t" + t
	}
	return line, nil
}

// decodeHeaderTags reformats a stored tags_json column's raw bytes back
// into TAG:TYPE:VALUE fields, in a stable (sorted) key order.
func decodeHeaderTags(raw []byte) ([]string, error) {
	tags, err := parseStoredTags(raw)
	if err != nil {
		return nil, Wrap(KindMalformedRecord, err, "decoding stored tags")
	}
	return tags, nil
}

// OpenPager pipes w through $PAGER (falling back to less) when stdout is a
// terminal and no output file was requested. It
// returns the writer to use and a cleanup func the caller must invoke
// (which waits for the pager to exit).
func OpenPager(out *os.File) (io.Writer, func(), error) {
	if !isTerminal(out) {
		return out, func() {}, nil
	}
	pagerCmd := os.Getenv("PAGER")
	if pagerCmd == "" {
		pagerCmd = "less"
	}
	path, err := exec.LookPath(pagerCmd)
	if err != nil {
		return out, func() {}, nil
	}
	cmd := exec.Command(path)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return out, func() {}, nil
	}
	if err := cmd.Start(); err != nil {
		return out, func() {}, nil
	}
	return stdin, func() {
		stdin.Close()
		if err := cmd.Wait(); err != nil {
			vlog.Infof("pager exited: %v", err)
		}
	}, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
