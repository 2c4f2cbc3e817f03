package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator produces deterministic sequential IDs for tests:
// "id-000001", "id-000002", ... Satisfies the engine's Generator
// interface structurally.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu sync.Mutex
	n  int
}

// NewFixedGenerator creates a generator starting at id-000001.
func NewFixedGenerator() *FixedGenerator {
	return &FixedGenerator{}
}

// NewID returns the next sequential ID.
func (g *FixedGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%06d", g.n), nil
}

// Reset restarts the sequence. After Reset, the next ID is id-000001.
func (g *FixedGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
