package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COMEONSOM/stargrid/internal/state"
)

type brokenKV struct{ err error }

func (b brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, b.err }
func (b brokenKV) Set(context.Context, string, string) error         { return b.err }
func (b brokenKV) Delete(context.Context, string) error              { return b.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayLoadAbsentReturnsFallback(t *testing.T) {
	g := NewGateway(NewMemStore(), quietLogger())

	fallback := state.EmptySnapshot()
	got := g.Load(context.Background(), "stargrid_stars::alice", fallback)
	assert.Equal(t, fallback, got)
}

func TestGatewayLoadValidSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.Set(ctx, "stargrid_stars::alice",
		`{"version":1,"segments":{"grid":["card_2","card_1"]}}`))

	g := NewGateway(store, quietLogger())
	got := g.Load(ctx, "stargrid_stars::alice", state.EmptySnapshot())
	assert.Equal(t, []string{"card_2", "card_1"}, got.Segments["grid"])
}

func TestGatewayLoadDegradesToFallback(t *testing.T) {
	ctx := context.Background()
	fallback := state.EmptySnapshot()
	fallback.Segments["kept"] = []string{"card_9"}

	cases := []struct {
		name string
		raw  string
	}{
		{"malformed", "{{{"},
		{"foreign version", `{"version":42,"segments":{}}`},
		{"wrong shape", `["card_1"]`},
		{"empty value", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemStore()
			require.NoError(t, store.Set(ctx, "slot", tc.raw))

			g := NewGateway(store, quietLogger())
			got := g.Load(ctx, "slot", fallback)
			assert.Equal(t, fallback, got)
		})
	}
}

func TestGatewayLoadStoreErrorReturnsFallback(t *testing.T) {
	g := NewGateway(brokenKV{err: errors.New("disk on fire")}, quietLogger())

	got := g.Load(context.Background(), "slot", state.EmptySnapshot())
	assert.Equal(t, state.EmptySnapshot(), got)
}

func TestGatewaySaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	g := NewGateway(store, quietLogger())

	snap := state.EmptySnapshot()
	snap.Segments["grid"] = []string{"card_3", "card_1"}
	g.Save(ctx, "stargrid_stars::bob", snap)

	got := g.Load(ctx, "stargrid_stars::bob", state.EmptySnapshot())
	assert.Equal(t, snap, got)
}

func TestGatewaySaveSwallowsStoreError(t *testing.T) {
	g := NewGateway(brokenKV{err: errors.New("read-only fs")}, quietLogger())

	// Must not panic and must not propagate anything.
	g.Save(context.Background(), "slot", state.EmptySnapshot())
}
