package gfab

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// WalkStep is one (segment, orientation) pair in a walk's traversal.
type WalkStep struct {
	SegmentID int64
	Reverse   bool
}

// walkStepJSON is the wire shape of one encoded step. Field order matches
// declaration order on marshal; omitempty drops whichever of S/Plus/Minus
// doesn't apply to this step, and R is dropped whenever the orientation is
// unchanged from the previous step.
type walkStepJSON struct {
	S     *int64 `json:"s,omitempty"`
	Plus  *int64 `json:"+,omitempty"`
	Minus *int64 `json:"-,omitempty"`
	R     *int   `json:"r,omitempty"`
}

func orientInt(reverse bool) int {
	if reverse {
		return 1
	}
	return 0
}

// encodeWalk renders steps as a delta-compressed JSON array: an absolute
// anchor for the first step, then "+"/"-" deltas for subsequent steps
// whenever the segment ID moved monotonically from its predecessor,
// falling back to an absolute "s" otherwise.
func encodeWalk(steps []WalkStep) ([]byte, int64, int64, error) {
	if len(steps) == 0 {
		return []byte("[]"), 0, 0, nil
	}
	minID, maxID := steps[0].SegmentID, steps[0].SegmentID
	encoded := make([]walkStepJSON, len(steps))

	first := steps[0].SegmentID
	firstR := orientInt(steps[0].Reverse)
	encoded[0] = walkStepJSON{S: &first, R: &firstR}

	prevSeg := steps[0].SegmentID
	prevOrient := steps[0].Reverse
	for i := 1; i < len(steps); i++ {
		s := steps[i]
		if s.SegmentID < minID {
			minID = s.SegmentID
		}
		if s.SegmentID > maxID {
			maxID = s.SegmentID
		}

		var js walkStepJSON
		switch d := s.SegmentID - prevSeg; {
		case d > 0:
			delta := d
			js.Plus = &delta
		case d < 0:
			delta := -d
			js.Minus = &delta
		default:
			seg := s.SegmentID
			js.S = &seg
		}
		if s.Reverse != prevOrient {
			r := orientInt(s.Reverse)
			js.R = &r
		}
		encoded[i] = js
		prevSeg = s.SegmentID
		prevOrient = s.Reverse
	}

	blob, err := json.Marshal(encoded)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "encodeWalk: marshal")
	}
	return blob, minID, maxID, nil
}

// decodeWalk reverses encodeWalk. Decoding then re-encoding a walk yields a
// byte-identical array, since every field the decoder derives (delta
// direction, omitted orientation) is exactly the rule encodeWalk applied.
func decodeWalk(blob []byte) ([]WalkStep, error) {
	var encoded []walkStepJSON
	if err := json.Unmarshal(blob, &encoded); err != nil {
		return nil, Wrap(KindMalformedRecord, err, "decodeWalk: invalid walk step array")
	}
	if len(encoded) == 0 {
		return nil, nil
	}
	steps := make([]WalkStep, len(encoded))

	first := encoded[0]
	if first.S == nil {
		return nil, Errorf(KindMalformedRecord, "decodeWalk: first step must be an absolute anchor")
	}
	if first.R == nil {
		return nil, Errorf(KindMalformedRecord, "decodeWalk: first step must specify orientation")
	}
	steps[0] = WalkStep{SegmentID: *first.S, Reverse: *first.R != 0}

	prevSeg := steps[0].SegmentID
	prevOrient := steps[0].Reverse
	for i := 1; i < len(encoded); i++ {
		js := encoded[i]
		var seg int64
		switch {
		case js.S != nil:
			seg = *js.S
		case js.Plus != nil:
			seg = prevSeg + *js.Plus
		case js.Minus != nil:
			seg = prevSeg - *js.Minus
		default:
			return nil, Errorf(KindMalformedRecord, "decodeWalk: step %d has no segment delta", i)
		}
		reverse := prevOrient
		if js.R != nil {
			reverse = *js.R != 0
		}
		steps[i] = WalkStep{SegmentID: seg, Reverse: reverse}
		prevSeg = seg
		prevOrient = reverse
	}
	return steps, nil
}
