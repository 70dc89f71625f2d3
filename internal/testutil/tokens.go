package testutil

import (
	"fmt"
	"sync"
)

// SequenceTokens generates request tokens from a fixed prefix and a
// counter: "prefix-000001", "prefix-000002", and so on.
//
// Every request needs a distinct token because the journal dedupes on it,
// so a constant token would collapse a whole scenario into one row. A
// prefixed counter keeps tokens unique while staying byte-identical across
// runs for golden comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokens struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceTokens creates a token generator with the given prefix.
//
// The prefix is typically set in the scenario YAML:
//
//	token_prefix: "capacity-evicts-oldest"
//
// If prefix is empty, "test-token" is used.
func NewSequenceTokens(prefix string) *SequenceTokens {
	if prefix == "" {
		prefix = "test-token"
	}
	return &SequenceTokens{prefix: prefix}
}

// Generate returns the next token in the sequence.
//
// Satisfies the engine's token generator interface.
func (g *SequenceTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%06d", g.prefix, g.next)
}

// Reset rewinds the counter. After Reset, the next call to Generate
// returns "prefix-000001" again.
func (g *SequenceTokens) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}
