package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveOutputPath(t *testing.T) {
	assert.Equal(t, "graph.gfab", deriveOutputPath("graph.gfa"))
	assert.Equal(t, "graph.gfab", deriveOutputPath("graph.gfa.gz"))
	assert.Equal(t, "graph.gfab", deriveOutputPath("graph.gfa11"))
	assert.Equal(t, "graph.gfab", deriveOutputPath("graph.gfa11.gz"))
	assert.Equal(t, "", deriveOutputPath("-"))
	assert.Equal(t, "", deriveOutputPath("graph.txt"))
}
