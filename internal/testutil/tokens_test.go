package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceTokens_GeneratesInOrder(t *testing.T) {
	gen := NewSequenceTokens("scenario")

	assert.Equal(t, "scenario-000001", gen.Generate())
	assert.Equal(t, "scenario-000002", gen.Generate())
	assert.Equal(t, "scenario-000003", gen.Generate())
}

func TestSequenceTokens_DefaultPrefix(t *testing.T) {
	gen := NewSequenceTokens("")
	assert.Equal(t, "test-token-000001", gen.Generate())
}

func TestSequenceTokens_Reset(t *testing.T) {
	gen := NewSequenceTokens("run")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, "run-000001", gen.Generate())
}

func TestSequenceTokens_ThreadSafe(t *testing.T) {
	gen := NewSequenceTokens("race")
	const goroutines = 20
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	results := make([][]string, goroutines)
	for i := 0; i < goroutines; i++ {
		results[i] = make([]string, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = gen.Generate()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range results {
		for _, tok := range results[i] {
			require.False(t, seen[tok], "duplicate token %s", tok)
			seen[tok] = true
		}
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
