package storage

import (
	"context"
	"log/slog"

	"github.com/COMEONSOM/stargrid/internal/state"
)

// Gateway reads and writes star snapshots with the engine's failure
// contract: loads degrade to the fallback, saves degrade to a log
// line. A user with a corrupt slot gets a working page with no stars,
// never an error.
type Gateway struct {
	store  KV
	logger *slog.Logger
}

// NewGateway wraps store. A nil logger means slog.Default().
func NewGateway(store KV, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, logger: logger}
}

// Load returns the snapshot stored under key, or the fallback when the
// slot is absent, unreadable, malformed or from a foreign schema
// version. Never returns an error.
func (g *Gateway) Load(ctx context.Context, key string, fallback state.Snapshot) state.Snapshot {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Warn("star state unreadable, using fallback", "key", key, "error", err)
		return fallback.Clone()
	}
	if !ok {
		return fallback.Clone()
	}
	snap, err := state.Decode(raw)
	if err != nil {
		g.logger.Warn("star state ignored, using fallback", "key", key, "error", err)
		return fallback.Clone()
	}
	return snap
}

// Save persists the snapshot under key. Failures are logged and
// dropped; the in-memory registry stays authoritative for the session.
func (g *Gateway) Save(ctx context.Context, key string, snap state.Snapshot) {
	raw, err := snap.Encode()
	if err != nil {
		g.logger.Error("star state not saved", "key", key, "error", err)
		return
	}
	if err := g.store.Set(ctx, key, raw); err != nil {
		g.logger.Error("star state not saved", "key", key, "error", err)
	}
}
