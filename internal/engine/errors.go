package engine

import "errors"

// ErrStopped is returned by Toggle, State, and Settle once the loop has
// shut down and the queue no longer accepts requests.
var ErrStopped = errors.New("engine stopped")

// ErrReload is returned by Run after a cross-tab identity conflict
// forced a reload. The instance is spent; callers that want to continue
// build a fresh engine, which re-resolves identity from the stores.
var ErrReload = errors.New("identity changed, reload required")
