package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable activation ids: "<prefix>-0001",
// "<prefix>-0002", ...
//
// The same scenario with the same SequenceIDs produces byte-identical
// traces, which is what golden files need.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "act".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "act"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
