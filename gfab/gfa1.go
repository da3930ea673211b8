package gfab

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"v.io/x/lib/vlog"
)

// Tags is a GFA1 tag dictionary (XX:T:VALUE fields) decoded to Go values:
// 'i' becomes int64, 'f' becomes float64, 'A'/'Z'/'H'/'B' become string,
// 'J' is unmarshaled as arbitrary JSON. It serializes directly to a
// .gfab tags_json column.
type Tags map[string]interface{}

func parseTags(fields []string, lineNo int) (Tags, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	tags := make(Tags, len(fields))
	for _, f := range fields {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) != 3 {
			return nil, Errorf(KindMalformedRecord, "line %d: malformed tag %q", lineNo, f)
		}
		name, typ, raw := parts[0], parts[1], parts[2]
		switch typ {
		case "i":
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, Wrap(KindMalformedRecord, err, "line %d: tag %s: invalid integer %q", lineNo, name, raw)
			}
			tags[name] = v
		case "f":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, Wrap(KindMalformedRecord, err, "line %d: tag %s: invalid float %q", lineNo, name, raw)
			}
			tags[name] = v
		case "A", "Z", "H", "B":
			tags[name] = raw
		case "J":
			var v interface{}
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, Wrap(KindMalformedRecord, err, "line %d: tag %s: invalid JSON %q", lineNo, name, raw)
			}
			tags[name] = v
		default:
			return nil, Errorf(KindMalformedRecord, "line %d: tag %s: unrecognized type %q", lineNo, name, typ)
		}
	}
	return tags, nil
}

// tagString returns the string value of a Z-typed tag, or "" if absent.
func (t Tags) tagString(name string) string {
	if t == nil {
		return ""
	}
	if v, ok := t[name].(string); ok {
		return v
	}
	return ""
}

// tagInt returns the int64 value of an i-typed tag and whether it's present.
func (t Tags) tagInt(name string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t[name].(int64)
	return v, ok
}

// parseStoredTags renders a tags_json column value back into sorted
// TAG:TYPE:VALUE fields. raw is the column's raw bytes, still carrying the
// maybeCompressTags marker byte, so it's decompressed before unmarshaling.
// The original one-letter type ('A' vs 'Z' vs 'H' vs 'B') isn't preserved
// through the Go-value round-trip parseTags performs: numbers with an
// integral value are re-emitted as 'i' (even if they came from an 'f' tag),
// other numbers as 'f', and anything else is re-emitted as 'Z' (or 'J' for values
// that aren't plain scalars), which is always a valid GFA1 reading of the
// same data.
func parseStoredTags(raw []byte) ([]string, error) {
	decoded, err := decompressTags(raw)
	if err != nil {
		return nil, err
	}
	var tags Tags
	if err := json.Unmarshal(decoded, &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		switch v := tags[name].(type) {
		case float64:
			if v == float64(int64(v)) {
				out = append(out, fmt.Sprintf("%s:i:%d", name, int64(v)))
			} else {
				out = append(out, fmt.Sprintf("%s:f:%v", name, v))
			}
		case string:
			out = append(out, fmt.Sprintf("%s:Z:%s", name, v))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprintf("%s:J:%s", name, encoded))
		}
	}
	return out, nil
}

// HeaderRecord is a parsed GFA1 'H' line.
type HeaderRecord struct {
	Tags Tags
}

// SegmentRecord is a parsed GFA1 'S' line.
type SegmentRecord struct {
	Name        string
	Sequence    string // "" and HasSequence==false if the field was "*"
	HasSequence bool
	Length      int
	HasLength   bool
	Tags        Tags
}

// orientedName is a segment or path-element reference with orientation.
type orientedName struct {
	Name    string
	Reverse bool
}

// LinkRecord is a parsed GFA1 'L' line.
type LinkRecord struct {
	From    orientedName
	To      orientedName
	Overlap string // "*" if unspecified
	Tags    Tags
}

// ContainmentRecord is a parsed GFA1 'C' line.
type ContainmentRecord struct {
	Container orientedName
	Contained orientedName
	Position  int
	Overlap   string
	Tags      Tags
}

// PathRecord is a parsed GFA1 'P' line.
type PathRecord struct {
	Name     string
	Elements []orientedName
	Overlaps []string // per-junction CIGAR, len == len(Elements)-1, entries may be "*"
	Tags     Tags
}

// WalkRecord is a parsed GFA1.1 'W' line.
type WalkRecord struct {
	Sample      string
	HapIndex    int64
	RefseqName  string
	RefseqBegin int64
	RefseqEnd   int64
	Steps       []orientedName
	Tags        Tags
}

func parseOrientedName(name, orient string, lineNo int) (orientedName, error) {
	switch orient {
	case "+":
		return orientedName{Name: name, Reverse: false}, nil
	case "-":
		return orientedName{Name: name, Reverse: true}, nil
	default:
		return orientedName{}, Errorf(KindMalformedRecord, "line %d: orientation must be + or -, got %q", lineNo, orient)
	}
}

// parseWalkSteps splits a GFA1.1 walk step field into oriented segment
// names. Two dialects are accepted: comma-separated ("s1+,s2-,s3+") and
// bare concatenated ("s1+s2-s3+"), auto-detected by the presence of a
// comma.
func parseWalkSteps(field string, lineNo int) ([]orientedName, error) {
	if field == "" {
		return nil, nil
	}
	if strings.Contains(field, ",") {
		parts := strings.Split(field, ",")
		steps := make([]orientedName, 0, len(parts))
		for _, p := range parts {
			if p == "" {
				continue
			}
			on, err := splitTrailingOrient(p, lineNo)
			if err != nil {
				return nil, err
			}
			steps = append(steps, on)
		}
		return steps, nil
	}

	var steps []orientedName
	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == '+' || field[i] == '-' {
			on, err := parseOrientedName(field[start:i], string(field[i]), lineNo)
			if err != nil {
				return nil, err
			}
			steps = append(steps, on)
			start = i + 1
		}
	}
	if start != len(field) {
		return nil, Errorf(KindMalformedRecord, "line %d: walk step list %q doesn't end with an orientation", lineNo, field)
	}
	return steps, nil
}

func splitTrailingOrient(s string, lineNo int) (orientedName, error) {
	if s == "" {
		return orientedName{}, Errorf(KindMalformedRecord, "line %d: empty walk step", lineNo)
	}
	last := s[len(s)-1:]
	return parseOrientedName(s[:len(s)-1], last, lineNo)
}

// ParseLine parses one GFA1 (or GFA1.1 'W') text line. It returns nil, nil
// for blank lines, comment lines ('#'), and record types it doesn't
// recognize -- unknown record types are tolerated, not fatal.
func ParseLine(line string, lineNo int) (interface{}, error) {
	if line == "" || line[0] == '#' {
		return nil, nil
	}
	fields := strings.Split(line, "\t")
	switch fields[0] {
	case "H":
		tags, err := parseTags(fields[1:], lineNo)
		if err != nil {
			return nil, err
		}
		return &HeaderRecord{Tags: tags}, nil

	case "S":
		if len(fields) < 3 {
			return nil, Errorf(KindMalformedRecord, "line %d: S record needs at least 3 fields, got %d", lineNo, len(fields))
		}
		rec := &SegmentRecord{Name: fields[1]}
		if fields[2] != "*" {
			rec.Sequence = fields[2]
			rec.HasSequence = true
		}
		tags, err := parseTags(fields[3:], lineNo)
		if err != nil {
			return nil, err
		}
		rec.Tags = tags
		if ln, ok := tags.tagInt("LN"); ok {
			rec.Length = int(ln)
			rec.HasLength = true
		} else if rec.HasSequence {
			rec.Length = len(rec.Sequence)
			rec.HasLength = true
		}
		return rec, nil

	case "L":
		if len(fields) < 6 {
			return nil, Errorf(KindMalformedRecord, "line %d: L record needs at least 6 fields, got %d", lineNo, len(fields))
		}
		from, err := parseOrientedName(fields[1], fields[2], lineNo)
		if err != nil {
			return nil, err
		}
		to, err := parseOrientedName(fields[3], fields[4], lineNo)
		if err != nil {
			return nil, err
		}
		tags, err := parseTags(fields[6:], lineNo)
		if err != nil {
			return nil, err
		}
		return &LinkRecord{From: from, To: to, Overlap: fields[5], Tags: tags}, nil

	case "C":
		if len(fields) < 7 {
			return nil, Errorf(KindMalformedRecord, "line %d: C record needs at least 7 fields, got %d", lineNo, len(fields))
		}
		container, err := parseOrientedName(fields[1], fields[2], lineNo)
		if err != nil {
			return nil, err
		}
		contained, err := parseOrientedName(fields[3], fields[4], lineNo)
		if err != nil {
			return nil, err
		}
		pos, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, Wrap(KindMalformedRecord, err, "line %d: invalid containment position %q", lineNo, fields[5])
		}
		tags, err := parseTags(fields[7:], lineNo)
		if err != nil {
			return nil, err
		}
		return &ContainmentRecord{Container: container, Contained: contained, Position: pos, Overlap: fields[6], Tags: tags}, nil

	case "P":
		if len(fields) < 3 {
			return nil, Errorf(KindMalformedRecord, "line %d: P record needs at least 3 fields, got %d", lineNo, len(fields))
		}
		segFields := strings.Split(fields[2], ",")
		elements := make([]orientedName, len(segFields))
		for i, sf := range segFields {
			on, err := splitTrailingOrient(sf, lineNo)
			if err != nil {
				return nil, err
			}
			elements[i] = on
		}
		var overlaps []string
		if len(fields) > 3 && fields[3] != "*" {
			overlaps = strings.Split(fields[3], ",")
		}
		tags, err := parseTags(fields[4:], lineNo)
		if err != nil {
			return nil, err
		}
		return &PathRecord{Name: fields[1], Elements: elements, Overlaps: overlaps, Tags: tags}, nil

	case "W":
		if len(fields) < 7 {
			return nil, Errorf(KindMalformedRecord, "line %d: W record needs at least 7 fields, got %d", lineNo, len(fields))
		}
		hapIdx, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, Wrap(KindMalformedRecord, err, "line %d: invalid walk haplotype index %q", lineNo, fields[2])
		}
		begin, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, Wrap(KindMalformedRecord, err, "line %d: invalid walk range begin %q", lineNo, fields[4])
		}
		end, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, Wrap(KindMalformedRecord, err, "line %d: invalid walk range end %q", lineNo, fields[5])
		}
		steps, err := parseWalkSteps(fields[6], lineNo)
		if err != nil {
			return nil, err
		}
		tags, err := parseTags(fields[7:], lineNo)
		if err != nil {
			return nil, err
		}
		return &WalkRecord{
			Sample: fields[1], HapIndex: hapIdx, RefseqName: fields[3],
			RefseqBegin: begin, RefseqEnd: end, Steps: steps, Tags: tags,
		}, nil

	default:
		vlog.VI(1).Infof("line %d: skipping unrecognized record type %q", lineNo, fields[0])
		return nil, nil
	}
}
