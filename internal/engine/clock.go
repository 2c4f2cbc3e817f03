package engine

import "time"

// TimeSource supplies wall-clock timestamps for audit entries and
// update stamps. Ordering never depends on these timestamps; the
// per-return sequence number in the store is the ordering authority.
// A TimeSource exists so tests can pin time.
type TimeSource interface {
	// Now returns the current time as unix seconds.
	Now() int64
}

// systemTime is the production TimeSource.
type systemTime struct{}

func (systemTime) Now() int64 {
	return time.Now().Unix()
}
