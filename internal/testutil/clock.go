// Package testutil provides deterministic substitutes for the engine's
// time and token sources, plus a synthesizer for grid pages. Tests and
// harness scenarios use these so repeated runs produce byte-identical
// traces and golden files.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the base instant deterministic tests start from.
var Epoch = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// WallClock hands out wall timestamps from a fixed start, advancing by a
// fixed step per call. Journal rows stamped through it are reproducible,
// which keeps golden traces stable across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type WallClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int
}

// NewWallClock creates a wall clock that returns start on the first call
// to Now and advances by step on each call after that.
func NewWallClock(start time.Time, step time.Duration) *WallClock {
	return &WallClock{start: start, step: step}
}

// Now returns the next timestamp in the sequence. The method value is
// what gets handed to the engine as its time source.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return ts
}

// Reset rewinds the clock to its start instant.
//
// Used for test reuse. After Reset, the next call to Now returns start.
func (c *WallClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
