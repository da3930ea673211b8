package gfab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkCodecRoundTrip(t *testing.T) {
	cases := [][]WalkStep{
		{{SegmentID: 5, Reverse: false}},
		{{SegmentID: 5}, {SegmentID: 6}, {SegmentID: 7}},
		{{SegmentID: 100}, {SegmentID: 90}, {SegmentID: 200, Reverse: true}},
		{{SegmentID: 1, Reverse: true}, {SegmentID: 1, Reverse: true}, {SegmentID: 1, Reverse: false}},
	}
	for _, steps := range cases {
		blob, minID, maxID, err := encodeWalk(steps)
		require.NoError(t, err)

		wantMin, wantMax := steps[0].SegmentID, steps[0].SegmentID
		for _, s := range steps {
			if s.SegmentID < wantMin {
				wantMin = s.SegmentID
			}
			if s.SegmentID > wantMax {
				wantMax = s.SegmentID
			}
		}
		assert.Equal(t, wantMin, minID)
		assert.Equal(t, wantMax, maxID)

		decoded, err := decodeWalk(blob)
		require.NoError(t, err)
		assert.Equal(t, steps, decoded)

		reEncoded, _, _, err := encodeWalk(decoded)
		require.NoError(t, err)
		assert.Equal(t, blob, reEncoded)
	}
}

func TestWalkCodecEmpty(t *testing.T) {
	blob, minID, maxID, err := encodeWalk(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(blob))
	assert.Equal(t, int64(0), minID)
	assert.Equal(t, int64(0), maxID)

	decoded, err := decodeWalk(blob)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestWalkCodecRejectsMissingAnchor(t *testing.T) {
	_, err := decodeWalk([]byte(`[{"+":1,"r":0}]`))
	require.Error(t, err)
	assert.Equal(t, KindMalformedRecord, KindOf(err))
}
