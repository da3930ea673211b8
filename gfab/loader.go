package gfab

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

// LoaderVersion is recorded in every .gfab's header tags so a file can be
// traced back to the binary that produced it.
const LoaderVersion = "0.1.0"

// LoadOptions configures Load.
type LoadOptions struct {
	CompressLevel  int     // tags_json snappy compression aggressiveness; 0 disables it.
	MemoryGBytes   float64 // working-set budget, mapped to PRAGMA cache_size.
	NoConnectivity bool    // skip the derived connectivity pass.
}

// openTextInput opens path (local, "-" for stdin, or http(s)) for
// streaming line-oriented reading, transparently gunzipping when the
// stream starts with the gzip magic number, in the bufio.Scanner
// streaming idiom paired with klauspost/compress/gzip.
func openTextInput(ctx context.Context, path string) (io.ReadCloser, error) {
	if path == "-" {
		return maybeGunzip(ioutilNopCloser{os.Stdin})
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, Wrap(KindIO, err, "opening %s", path)
	}
	rc, err := maybeGunzip(&fileReadCloser{Reader: f.Reader(ctx), f: f, ctx: ctx})
	if err != nil {
		f.Close(ctx)
		return nil, err
	}
	return rc, nil
}

type ioutilNopCloser struct{ io.Reader }

func (ioutilNopCloser) Close() error { return nil }

type fileReadCloser struct {
	io.Reader
	f   file.File
	ctx context.Context
}

func (c *fileReadCloser) Close() error { return c.f.Close(c.ctx) }

// maybeGunzip peeks at the first two bytes of in and wraps it in a gzip
// reader if they match the gzip magic number, closing the inner reader
// when the gzip reader is closed.
func maybeGunzip(in io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(in)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return &readCloserPair{Reader: br, closer: in}, nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, Wrap(KindIO, err, "opening gzip stream")
	}
	return &readCloserPair{Reader: gz, closer: in, gz: gz}, nil
}

type readCloserPair struct {
	io.Reader
	closer io.Closer
	gz     *gzip.Reader
}

func (p *readCloserPair) Close() error {
	if p.gz != nil {
		p.gz.Close()
	}
	return p.closer.Close()
}

// loadState carries the mutable bookkeeping threaded through one Load call.
type loadState struct {
	tx         *sql.Tx
	segNames   *nameIndex
	pathNames  *nameIndex
	nextSegID  int64
	nextPathID int64
	nextWalkID int64
	segCount   int64
	filled     map[int64]bool
	compress   int

	insertHeader    *sql.Stmt
	insertSegment   *sql.Stmt
	insertSequence  *sql.Stmt
	insertLink      *sql.Stmt
	insertContain   *sql.Stmt
	insertPath      *sql.Stmt
	insertPathElem  *sql.Stmt
	insertWalk      *sql.Stmt
	insertMapping   *sql.Stmt
	updateSegFields *sql.Stmt
}

func newLoadState(tx *sql.Tx, compress int) (*loadState, error) {
	segNames, err := newNameIndex(tx, "load_segment_names")
	if err != nil {
		return nil, err
	}
	pathNames, err := newNameIndex(tx, "load_path_names")
	if err != nil {
		return nil, err
	}
	s := &loadState{
		tx: tx, segNames: segNames, pathNames: pathNames,
		nextSegID: 1, nextPathID: 1, nextWalkID: 1,
		filled: make(map[int64]bool), compress: compress,
	}
	stmts := []struct {
		dst  **sql.Stmt
		stmt string
	}{
		{&s.insertHeader, `INSERT INTO header(tags_json) VALUES (?)`},
		{&s.insertSegment, `INSERT INTO segment(segment_id, name, sequence_length, tags_json) VALUES (?,?,?,?)`},
		{&s.insertSequence, `INSERT INTO segment_sequence(segment_id, twobit) VALUES (?,?)`},
		{&s.insertLink, `INSERT INTO link(from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json) VALUES (?,?,?,?,?,?)`},
		{&s.insertContain, `INSERT INTO containment(container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json) VALUES (?,?,?,?,?,?,?)`},
		{&s.insertPath, `INSERT INTO path(path_id, name, tags_json) VALUES (?,?,?)`},
		{&s.insertPathElem, `INSERT INTO path_element(path_id, ordinal, segment_id, reverse, cigar_vs_previous) VALUES (?,?,?,?,?)`},
		{&s.insertWalk, `INSERT INTO walk(walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end, min_segment_id, max_segment_id, steps_json, tags_json) VALUES (?,?,?,?,?,?,?,?,?,?)`},
		{&s.insertMapping, `INSERT INTO mapping(segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json) VALUES (?,?,?,?,?,?)`},
		{&s.updateSegFields, `UPDATE segment SET sequence_length=?, tags_json=? WHERE segment_id=?`},
	}
	for _, st := range stmts {
		prepared, err := tx.Prepare(st.stmt)
		if err != nil {
			return nil, Wrap(KindIO, err, "preparing %s", st.stmt)
		}
		*st.dst = prepared
	}
	return s, nil
}

// closeIndexes drops the transient name indexes. It must run before the
// transaction commits or rolls back.
func (s *loadState) closeIndexes() error {
	if err := s.segNames.Close(); err != nil {
		return err
	}
	return s.pathNames.Close()
}

// resolveSegment returns the dense id for name, creating a placeholder
// segment row if this is the first reference to it.
func (s *loadState) resolveSegment(name string) (int64, error) {
	if id, ok, err := s.segNames.Get(name); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}
	id := s.nextSegID
	s.nextSegID++
	if err := s.segNames.Put(name, id); err != nil {
		return 0, err
	}
	if _, err := s.insertSegment.Exec(id, name, nil, nil); err != nil {
		return 0, Wrap(KindIO, err, "inserting placeholder segment %q", name)
	}
	return id, nil
}

func (s *loadState) resolvePath(name string) (int64, error) {
	id := s.nextPathID
	if name == "" {
		s.nextPathID++
		return id, nil
	}
	if _, ok, err := s.pathNames.Get(name); err != nil {
		return 0, err
	} else if ok {
		return 0, Errorf(KindDuplicateSegment, "duplicate path name %q", name)
	}
	s.nextPathID++
	if err := s.pathNames.Put(name, id); err != nil {
		return 0, err
	}
	return id, nil
}

func encodeTagsJSON(tags Tags, compress int) ([]byte, error) {
	if tags == nil {
		return nil, nil
	}
	blob, err := json.Marshal(tags)
	if err != nil {
		return nil, Wrap(KindInternal, err, "marshaling tags")
	}
	return maybeCompressTags(blob, compress), nil
}

// apply inserts one parsed GFA1 record's rows.
func (s *loadState) apply(rec interface{}, headerTags *Tags) error {
	switch r := rec.(type) {
	case *HeaderRecord:
		*headerTags = r.Tags
		return nil
	case *SegmentRecord:
		return s.applySegment(r)
	case *LinkRecord:
		return s.applyLink(r)
	case *ContainmentRecord:
		return s.applyContainment(r)
	case *PathRecord:
		return s.applyPath(r)
	case *WalkRecord:
		return s.applyWalk(r)
	}
	return nil
}

func (s *loadState) applyLink(r *LinkRecord) error {
	from, err := s.resolveSegment(r.From.Name)
	if err != nil {
		return err
	}
	to, err := s.resolveSegment(r.To.Name)
	if err != nil {
		return err
	}
	tagsBlob, err := encodeTagsJSON(r.Tags, s.compress)
	if err != nil {
		return err
	}
	if _, err := s.insertLink.Exec(from, r.From.Reverse, to, r.To.Reverse, nullableString(r.Overlap), tagsBlob); err != nil {
		return Wrap(KindIO, err, "inserting link")
	}
	return nil
}

func (s *loadState) applyContainment(r *ContainmentRecord) error {
	container, err := s.resolveSegment(r.Container.Name)
	if err != nil {
		return err
	}
	contained, err := s.resolveSegment(r.Contained.Name)
	if err != nil {
		return err
	}
	tagsBlob, err := encodeTagsJSON(r.Tags, s.compress)
	if err != nil {
		return err
	}
	if _, err := s.insertContain.Exec(container, r.Container.Reverse, contained, r.Contained.Reverse, r.Position, nullableString(r.Overlap), tagsBlob); err != nil {
		return Wrap(KindIO, err, "inserting containment")
	}
	return nil
}

func (s *loadState) applySegment(r *SegmentRecord) error {
	id, existed, err := s.segNames.Get(r.Name)
	if err != nil {
		return err
	}
	var length interface{}
	if r.HasLength {
		length = r.Length
	}
	tagsBlob, err := encodeTagsJSON(r.Tags, s.compress)
	if err != nil {
		return err
	}
	if existed {
		if s.filled[id] {
			return Errorf(KindDuplicateSegment, "duplicate segment name %q", r.Name)
		}
		if _, err := s.updateSegFields.Exec(length, tagsBlob, id); err != nil {
			return Wrap(KindIO, err, "filling in placeholder segment %q", r.Name)
		}
	} else {
		id = s.nextSegID
		s.nextSegID++
		if err := s.segNames.Put(r.Name, id); err != nil {
			return err
		}
		if _, err := s.insertSegment.Exec(id, r.Name, length, tagsBlob); err != nil {
			return Wrap(KindIO, err, "inserting segment %q", r.Name)
		}
	}
	s.filled[id] = true
	s.segCount++

	if r.HasSequence {
		blob := twobitEncode([]byte(r.Sequence))
		if _, err := s.insertSequence.Exec(id, blob); err != nil {
			return Wrap(KindIO, err, "inserting sequence for %q", r.Name)
		}
	}

	// rGFA placement: SN:Z + SO:i (+ LN:i) synthesizes a mapping row.
	if sn := r.Tags.tagString("SN"); sn != "" {
		if so, ok := r.Tags.tagInt("SO"); ok && r.HasLength {
			if _, err := s.insertMapping.Exec(id, sn, so, so+int64(r.Length), nil, nil); err != nil {
				return Wrap(KindIO, err, "inserting rGFA mapping for %q", r.Name)
			}
		}
	}
	// rr:Z:chrom:begin-end extension tag.
	if rr := r.Tags.tagString("rr"); rr != "" {
		if chrom, begin, end, ok := parseRR(rr); ok {
			if _, err := s.insertMapping.Exec(id, chrom, begin, end, nil, nil); err != nil {
				return Wrap(KindIO, err, "inserting rr mapping for %q", r.Name)
			}
		}
	}
	return nil
}

func (s *loadState) applyPath(r *PathRecord) error {
	id, err := s.resolvePath(r.Name)
	if err != nil {
		return err
	}
	var name interface{}
	if r.Name != "" {
		name = r.Name
	}
	tagsBlob, err := encodeTagsJSON(r.Tags, s.compress)
	if err != nil {
		return err
	}
	if _, err := s.insertPath.Exec(id, name, tagsBlob); err != nil {
		return Wrap(KindIO, err, "inserting path %q", r.Name)
	}
	for i, el := range r.Elements {
		segID, err := s.resolveSegment(el.Name)
		if err != nil {
			return err
		}
		var cigar interface{}
		if i > 0 && i-1 < len(r.Overlaps) {
			cigar = r.Overlaps[i-1]
		}
		if _, err := s.insertPathElem.Exec(id, i, segID, el.Reverse, cigar); err != nil {
			return Wrap(KindIO, err, "inserting path element %d of %q", i, r.Name)
		}
	}
	return nil
}

func (s *loadState) applyWalk(r *WalkRecord) error {
	id := s.nextWalkID
	s.nextWalkID++

	steps := make([]WalkStep, len(r.Steps))
	for i, st := range r.Steps {
		segID, err := s.resolveSegment(st.Name)
		if err != nil {
			return err
		}
		steps[i] = WalkStep{SegmentID: segID, Reverse: st.Reverse}
	}
	stepsJSON, minID, maxID, err := encodeWalk(steps)
	if err != nil {
		return err
	}
	tagsBlob, err := encodeTagsJSON(r.Tags, s.compress)
	if err != nil {
		return err
	}
	if _, err := s.insertWalk.Exec(id, r.Sample, r.HapIndex, r.RefseqName, r.RefseqBegin, r.RefseqEnd, minID, maxID, stepsJSON, tagsBlob); err != nil {
		return Wrap(KindIO, err, "inserting walk for sample %q", r.Sample)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" || s == "*" {
		return nil
	}
	return s
}

// parseRR parses the extension tag rr:Z:chrom:begin-end (commas in the
// numbers are tolerated and stripped).
func parseRR(v string) (chrom string, begin, end int64, ok bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return "", 0, 0, false
	}
	rangeParts := strings.SplitN(parts[1], "-", 2)
	if len(rangeParts) != 2 {
		return "", 0, 0, false
	}
	b, err1 := strconv.ParseInt(strings.ReplaceAll(rangeParts[0], ",", ""), 10, 64)
	e, err2 := strconv.ParseInt(strings.ReplaceAll(rangeParts[1], ",", ""), 10, 64)
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return parts[0], b, e, true
}

// Load streams a GFA1 (or gzip-compressed GFA1) file from inputPath into a
// freshly created .gfab at outputPath.
func Load(ctx context.Context, inputPath, outputPath string, opts LoadOptions) (err error) {
	in, err := openTextInput(ctx, inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	head := make([]byte, 64*1024)
	n, _ := io.ReadFull(in, head)
	head = head[:n]
	digest := farm.Fingerprint64(head)
	reader := io.MultiReader(bytes.NewReader(head), in)

	out, err := CreateFile(outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if opts.MemoryGBytes > 0 {
		cacheKiB := int64(opts.MemoryGBytes * 1024 * 1024)
		if _, execErr := out.DB.Exec(fmt.Sprintf("PRAGMA cache_size = -%d", cacheKiB)); execErr != nil {
			return Wrap(KindIO, execErr, "setting cache_size")
		}
	}

	tx, err := out.DB.Begin()
	if err != nil {
		return Wrap(KindIO, err, "starting load transaction")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	state, err := newLoadState(tx, opts.CompressLevel)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<28)

	var headerTags Tags
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		rec, perr := ParseLine(scanner.Text(), lineNo)
		if perr != nil {
			return perr
		}
		if rec == nil {
			continue
		}
		if err := state.apply(rec, &headerTags); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return Wrap(KindIO, err, "reading %s", inputPath)
	}

	if state.segCount == 0 {
		return Errorf(KindEmptyInput, "%s: no segments found", inputPath)
	}

	if headerTags == nil {
		headerTags = Tags{}
	}
	headerTags["gfabase:loader_version"] = LoaderVersion
	headerTags["gfabase:input_digest"] = strconv.FormatUint(digest, 16)
	headerBlob, err := encodeTagsJSON(headerTags, opts.CompressLevel)
	if err != nil {
		return err
	}
	if _, err := state.insertHeader.Exec(headerBlob); err != nil {
		return Wrap(KindIO, err, "inserting header")
	}

	if err := state.closeIndexes(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Wrap(KindIO, err, "committing load transaction")
	}
	committed = true

	if err := createSecondaryIndexes(out.DB); err != nil {
		return err
	}
	if !opts.NoConnectivity {
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
	vlog.Infof("%s: loaded %d segments", outputPath, state.segCount)
	return nil
}
