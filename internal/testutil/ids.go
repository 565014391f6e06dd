package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable sandbox IDs: "<prefix>-0001",
// "<prefix>-0002", and so on. Unlike approval.FixedGenerator it never runs
// out, which suits scenarios of arbitrary length.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix uses "sb".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "sb"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID. Implements approval.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
