package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeSelector(t *testing.T) {
	assert.False(t, looksLikeSelector("-"))
	assert.False(t, looksLikeSelector("out.gfab"))
	assert.False(t, looksLikeSelector("subdir/out.gfab"))
	assert.False(t, looksLikeSelector("./relative/path"))

	assert.True(t, looksLikeSelector("s1"))
	assert.True(t, looksLikeSelector("chr1:100-200"))
	assert.True(t, looksLikeSelector("12345"))
}
