package testutil

import "sync"

// DeterministicTime is a thread-safe fixed time source for tests.
//
// Unlike the engine's system time source, DeterministicTime only moves
// when a test advances it. This enables the same scenario to run
// multiple times with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicTime struct {
	mu  sync.Mutex
	sec int64
}

// NewDeterministicTime creates a time source pinned at sec unix seconds.
func NewDeterministicTime(sec int64) *DeterministicTime {
	return &DeterministicTime{sec: sec}
}

// Now returns the pinned time.
func (t *DeterministicTime) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sec
}

// Advance moves the pinned time forward by d seconds.
func (t *DeterministicTime) Advance(d int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sec += d
}

// Set pins the time to sec.
func (t *DeterministicTime) Set(sec int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sec = sec
}
