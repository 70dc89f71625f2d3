package engine

import (
	"context"
	"sync"
)

// ConfirmRequest describes a capacity conflict: starring Card in
// Segment requires evicting Evict, the oldest star there.
type ConfirmRequest struct {
	Segment string
	Card    string
	Evict   string
}

// Confirmer decides whether a capacity conflict may evict the oldest
// star. The prompt runs inside the engine loop, so a slow answer blocks
// subsequent toggles, mirroring a modal dialog. The CLI supplies a
// terminal prompt; tests script the answers.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// AutoConfirmer answers every request the same way. The engine default
// is AutoConfirmer{Approve: true}: headless callers get the full
// eviction semantics without wiring a prompt.
type AutoConfirmer struct {
	Approve bool
}

func (c AutoConfirmer) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return c.Approve, nil
}

// ScriptedConfirmer replays a fixed sequence of decisions in order.
// Confirm panics once the script is exhausted; exhaustion means the
// test hit more capacity conflicts than it declared.
type ScriptedConfirmer struct {
	mu        sync.Mutex
	decisions []bool
	idx       int
}

// NewScriptedConfirmer creates a confirmer answering with decisions in
// the given order.
func NewScriptedConfirmer(decisions ...bool) *ScriptedConfirmer {
	return &ScriptedConfirmer{decisions: decisions}
}

func (c *ScriptedConfirmer) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idx >= len(c.decisions) {
		panic("ScriptedConfirmer: all decisions exhausted")
	}
	d := c.decisions[c.idx]
	c.idx++
	return d, nil
}
