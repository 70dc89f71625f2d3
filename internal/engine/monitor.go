package engine

import (
	"strings"
	"time"

	"github.com/COMEONSOM/stargrid/internal/storage"
)

// observeChange reacts to one slot change event in the loop goroutine.
// Only the two identity keys matter; every other slot on the directory,
// star snapshots included, is ignored.
//
// A changed value equal to the active identity is inert. That covers
// both another tab agreeing with us and this engine's own cache write
// echoed back by the watcher.
func (e *Engine) observeChange(ev storage.ChangeEvent) {
	rules := e.prof.Identity
	if ev.Key != rules.MainSiteKey && ev.Key != rules.CacheKey {
		return
	}

	next := strings.TrimSpace(ev.Value)
	if ev.Removed {
		next = ""
	}
	if next == e.ident.User {
		return
	}

	e.scheduleReload(ev.Key, next)
}

// scheduleReload latches exactly one deferred reload. The delay is a
// settle window for bursts of identity writes, not a correctness
// guarantee; further conflicting events while the timer runs are
// dropped. The reload is never immediate, even at delay zero: the timer
// enqueues a request the loop processes in turn.
func (e *Engine) scheduleReload(key, next string) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	if e.reloadPending {
		e.logger.Debug("reload already pending, identity change ignored",
			"key", key, "next", next)
		return
	}
	e.reloadPending = true
	e.logger.Info("identity conflict, reload scheduled",
		"key", key, "current", e.ident.User, "next", next, "delay", e.reloadDelay)

	e.reloadTimer = time.AfterFunc(e.reloadDelay, func() {
		e.queue.Enqueue(request{kind: requestReload})
	})
}

// reload ends the loop. The queue closes so concurrent callers get
// ErrStopped, the configured callback fires, and Run returns ErrReload.
// In-memory state is discarded with the instance; the caller rebuilds a
// fresh engine, which re-resolves identity.
func (e *Engine) reload() error {
	e.logger.Info("reloading, in-memory state discarded", "identity", e.ident.User)
	e.queue.Close()
	if e.reloadFn != nil {
		e.reloadFn()
	}
	return ErrReload
}

// ReloadPending reports whether an identity conflict has latched a
// reload. Stays true once the engine is spent.
func (e *Engine) ReloadPending() bool {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.reloadPending
}
