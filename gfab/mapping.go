package gfab

import (
	"bufio"
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/minio/highwayhash"
)

// highwayKey is a fixed all-zero 32-byte key. mapping digests only need to
// be stable within a single .gfab, not cross-process secure, so a constant
// key is sufficient; highwayhash requires exactly 32 bytes.
var highwayKey = make([]byte, 32)

// MappingOptions controls ImportMappings.
type MappingOptions struct {
	Quality int
	Length  int
	Replace bool
}

// MappingStats reports the outcome of an import for the CLI to print.
type MappingStats struct {
	Imported int64
	Skipped  int64
	Unknown  int64
	Unchanged int64
}

// pafRecord is one parsed line of a PAF alignment file.
type pafRecord struct {
	queryName   string
	targetName  string
	targetStart int64
	targetEnd   int64
	mapq        int
	blockLen    int64
	cigar       string
}

// parsePAF parses one PAF line per the minimap2 PAF column layout: the
// first 12 columns are positional, followed by SAM-style TAG:TYPE:VALUE
// fields. Only the fields gfabase cares about are extracted.
func parsePAF(line string, lineNo int) (*pafRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 12 {
		return nil, Errorf(KindMalformedRecord, "PAF line %d: expected at least 12 fields, got %d", lineNo, len(fields))
	}
	r := &pafRecord{queryName: fields[0], targetName: fields[5]}
	var err error
	if r.targetStart, err = strconv.ParseInt(fields[7], 10, 64); err != nil {
		return nil, Errorf(KindMalformedRecord, "PAF line %d: bad target start %q", lineNo, fields[7])
	}
	if r.targetEnd, err = strconv.ParseInt(fields[8], 10, 64); err != nil {
		return nil, Errorf(KindMalformedRecord, "PAF line %d: bad target end %q", lineNo, fields[8])
	}
	mapq, err := strconv.Atoi(fields[11])
	if err != nil {
		return nil, Errorf(KindMalformedRecord, "PAF line %d: bad mapq %q", lineNo, fields[11])
	}
	r.mapq = mapq
	blockLen, err := strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return nil, Errorf(KindMalformedRecord, "PAF line %d: bad block length %q", lineNo, fields[10])
	}
	r.blockLen = blockLen
	for _, f := range fields[12:] {
		if strings.HasPrefix(f, "cg:Z:") {
			r.cigar = f[len("cg:Z:"):]
		}
	}
	return r, nil
}

// mappingDigest hashes the fields that determine whether a mapping row is
// unchanged across a --replace import.
func mappingDigest(segmentID int64, targetName string, begin, end int64, cigar string) uint64 {
	h, err := highwayhash.New64(highwayKey)
	if err != nil {
		panic(err) // highwayKey is always exactly 32 bytes.
	}
	h.Write([]byte(strconv.FormatInt(segmentID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(targetName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(begin, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(end, 10)))
	h.Write([]byte{0})
	h.Write([]byte(cigar))
	return h.Sum64()
}

// ImportMappings streams a PAF file into target's mapping table.
func ImportMappings(ctx context.Context, targetPath, pafPath string, opts MappingOptions) (*MappingStats, error) {
	out, err := OpenFile(ctx, targetPath, false)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	in, err := openTextInput(ctx, pafPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	stats := &MappingStats{}
	tx, err := out.DB.Begin()
	if err != nil {
		return nil, Wrap(KindIO, err, "starting mapping import transaction")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	segments, err := newNameIndex(tx, "import_segment_names")
	if err != nil {
		return nil, err
	}
	defer segments.Close()
	rows, err := tx.Query(`SELECT segment_id, name FROM segment WHERE name IS NOT NULL`)
	if err != nil {
		return nil, Wrap(KindIO, err, "listing segment names")
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, Wrap(KindIO, err, "scanning segment name")
		}
		if err := segments.Put(name, id); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, Wrap(KindIO, err, "listing segment names")
	}

	var existingDigest *sql.Stmt
	var deleteExisting *sql.Stmt
	if opts.Replace {
		existingDigest, err = tx.Prepare(`SELECT refseq_begin, refseq_end, cigar FROM mapping
			WHERE segment_id = ? AND refseq_name = ? AND refseq_begin = ? AND refseq_end = ?`)
		if err != nil {
			return nil, Wrap(KindIO, err, "preparing replace lookup")
		}
		defer existingDigest.Close()
		deleteExisting, err = tx.Prepare(`DELETE FROM mapping
			WHERE segment_id = ? AND refseq_name = ? AND refseq_begin = ? AND refseq_end = ?`)
		if err != nil {
			return nil, Wrap(KindIO, err, "preparing replace delete")
		}
		defer deleteExisting.Close()
	}

	insert, err := tx.Prepare(`INSERT INTO mapping(segment_id, refseq_name, refseq_begin, refseq_end, cigar) VALUES (?,?,?,?,?)`)
	if err != nil {
		return nil, Wrap(KindIO, err, "preparing mapping insert")
	}
	defer insert.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<28)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := parsePAF(line, lineNo)
		if err != nil {
			return nil, err
		}
		if rec.mapq < opts.Quality || rec.blockLen < int64(opts.Length) {
			stats.Skipped++
			continue
		}
		segmentID, ok, err := segments.Get(rec.queryName)
		if err != nil {
			return nil, err
		}
		if !ok {
			stats.Unknown++
			continue
		}

		if opts.Replace {
			var oldBegin, oldEnd int64
			var oldCigar sql.NullString
			err := existingDigest.QueryRow(segmentID, rec.targetName, rec.targetStart, rec.targetEnd).
				Scan(&oldBegin, &oldEnd, &oldCigar)
			if err == nil {
				oldDigest := mappingDigest(segmentID, rec.targetName, oldBegin, oldEnd, oldCigar.String)
				newDigest := mappingDigest(segmentID, rec.targetName, rec.targetStart, rec.targetEnd, rec.cigar)
				if oldDigest == newDigest {
					stats.Unchanged++
					continue
				}
			} else if err != sql.ErrNoRows {
				return nil, Wrap(KindIO, err, "checking existing mapping")
			}
			if _, err := deleteExisting.Exec(segmentID, rec.targetName, rec.targetStart, rec.targetEnd); err != nil {
				return nil, Wrap(KindIO, err, "deleting superseded mapping")
			}
		}

		if _, err := insert.Exec(segmentID, rec.targetName, rec.targetStart, rec.targetEnd, nullableString(rec.cigar)); err != nil {
			return nil, Wrap(KindIO, err, "inserting mapping")
		}
		stats.Imported++
	}
	if err := scanner.Err(); err != nil {
		return nil, Wrap(KindIO, err, "reading PAF input")
	}

	if err := segments.Close(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, Wrap(KindIO, err, "committing mapping import")
	}
	committed = true

	if err := rebuildMappingRtree(out.DB); err != nil {
		return nil, err
	}
	return stats, nil
}

// rebuildMappingRtree repopulates the mapping_rtree genomic-range index
// from the mapping table.
func rebuildMappingRtree(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return Wrap(KindIO, err, "starting mapping_rtree rebuild")
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM mapping_rtree`); err != nil {
		return Wrap(KindIO, err, "clearing mapping_rtree")
	}
	rows, err := tx.Query(`SELECT rowid, segment_id, refseq_name, refseq_begin, refseq_end FROM mapping`)
	if err != nil {
		return Wrap(KindIO, err, "listing mappings")
	}
	defer rows.Close()

	insert, err := tx.Prepare(`INSERT INTO mapping_rtree(id, refseq_min, refseq_max, refseq_name, begin, end, segment_id)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing mapping_rtree insert")
	}
	defer insert.Close()

	for rows.Next() {
		var id, segmentID, begin, end int64
		var name string
		if err := rows.Scan(&id, &segmentID, &name, &begin, &end); err != nil {
			return Wrap(KindIO, err, "scanning mapping")
		}
		if _, err := insert.Exec(id, begin, end, name, begin, end, segmentID); err != nil {
			return Wrap(KindIO, err, "inserting mapping_rtree row")
		}
	}
	if err := rows.Err(); err != nil {
		return Wrap(KindIO, err, "listing mappings")
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIO, err, "committing mapping_rtree rebuild")
	}
	return nil
}

// rebuildWalkRtree repopulates the walk_rtree genomic-range index from each
// walk's own (refseq_name, refseq_begin, refseq_end) span, mirroring
// rebuildMappingRtree for the walk table.
func rebuildWalkRtree(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return Wrap(KindIO, err, "starting walk_rtree rebuild")
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM walk_rtree`); err != nil {
		return Wrap(KindIO, err, "clearing walk_rtree")
	}
	rows, err := tx.Query(`SELECT walk_id, refseq_name, refseq_begin, refseq_end FROM walk
		WHERE refseq_name IS NOT NULL AND refseq_begin IS NOT NULL AND refseq_end IS NOT NULL`)
	if err != nil {
		return Wrap(KindIO, err, "listing walks")
	}
	defer rows.Close()

	insert, err := tx.Prepare(`INSERT INTO walk_rtree(id, refseq_min, refseq_max, refseq_name, begin, end, walk_id)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return Wrap(KindIO, err, "preparing walk_rtree insert")
	}
	defer insert.Close()

	for rows.Next() {
		var walkID, begin, end int64
		var name string
		if err := rows.Scan(&walkID, &name, &begin, &end); err != nil {
			return Wrap(KindIO, err, "scanning walk")
		}
		if _, err := insert.Exec(walkID, begin, end, name, begin, end, walkID); err != nil {
			return Wrap(KindIO, err, "inserting walk_rtree row")
		}
	}
	if err := rows.Err(); err != nil {
		return Wrap(KindIO, err, "listing walks")
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIO, err, "committing walk_rtree rebuild")
	}
	return nil
}
