package gfab

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindExitCodes(t *testing.T) {
	assert.Equal(t, 2, KindUsage.ExitCode())
	assert.Equal(t, 3, KindEmptyInput.ExitCode())
	assert.Equal(t, 4, KindMalformedRecord.ExitCode())
	assert.Equal(t, 4, KindDuplicateSegment.ExitCode())
	assert.Equal(t, 1, KindNotFound.ExitCode())
	assert.Equal(t, 1, KindIncompatibleFile.ExitCode())
	assert.Equal(t, 5, KindIO.ExitCode())
	assert.Equal(t, 6, KindInternal.ExitCode())
}

func TestKindOfAndExitCode(t *testing.T) {
	err := Errorf(KindNotFound, "segment %q not found", "s1")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, 1, ExitCode(err))

	assert.Equal(t, KindInternal, KindOf(io.EOF))
	assert.Equal(t, 0, ExitCode(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(KindIO, io.EOF, "reading %s", "x.gfa")
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "IO")
	assert.Contains(t, err.Error(), "x.gfa")
}
