// Package frame defers DOM mutations the way a browser defers paint
// work: callbacks queue in FIFO order and run together at the next
// flush, after the work that scheduled them has completed.
//
// The engine flushes whenever its request queue goes idle and on
// Settle. A callback scheduled during a flush runs in the next flush,
// not the current one.
package frame

import (
	"log/slog"
	"sync"
)

// Callback is one deferred mutation. A non-nil error is logged and
// dropped; a failed mutation never stops the flush or the engine.
type Callback func() error

type deferred struct {
	label string
	fn    Callback
}

// Scheduler queues deferred mutations. Safe for concurrent use,
// though the engine only touches it from its run loop.
type Scheduler struct {
	mu      sync.Mutex
	pending []deferred
	logger  *slog.Logger
}

// NewScheduler returns an empty scheduler. A nil logger means
// slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Defer queues fn behind everything already pending. The label names
// the mutation in logs.
func (s *Scheduler) Defer(label string, fn Callback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, deferred{label: label, fn: fn})
	s.mu.Unlock()
}

// Flush runs everything pending at the moment of the call, in FIFO
// order, and returns how many callbacks ran. Callbacks deferred while
// flushing wait for the next flush.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, d := range batch {
		if err := d.fn(); err != nil {
			s.logger.Warn("deferred mutation failed", "mutation", d.label, "error", err)
		}
	}
	return len(batch)
}

// Pending returns the number of queued callbacks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
