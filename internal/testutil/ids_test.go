package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("")

	assert.Equal(t, "act-0001", g.Generate())
	assert.Equal(t, "act-0002", g.Generate())

	g.Reset()
	assert.Equal(t, "act-0001", g.Generate())

	assert.Equal(t, "run-0001", NewSequenceIDs("run").Generate())
}
