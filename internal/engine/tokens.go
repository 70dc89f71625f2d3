package engine

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces the per-toggle request tokens used to
// correlate log lines and journal rows. Implemented by UUIDv7Generator
// (production) and FixedGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens.
//
// The embedded timestamp makes tokens sort roughly by creation time,
// which keeps journal dumps readable. Stateless and safe for
// concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string.
// Panics if generation fails, which does not happen in practice.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens in order. Tests use it to
// make traces and golden files deterministic.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator yielding tokens in the given
// order. Generate panics once all tokens are consumed; exhaustion means
// the test issued more toggles than it declared.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
