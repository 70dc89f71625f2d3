package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent reports that a slot changed on disk. Value is the slot
// content at the time the change settled; Removed is set when the slot
// file no longer exists.
type ChangeEvent struct {
	Key     string
	Value   string
	Removed bool
}

const minDebounce = 10 * time.Millisecond

// Notifier turns filesystem events on a DirStore directory into
// per-slot ChangeEvents. Rewrites of the same slot inside the debounce
// window coalesce into a single event carrying the final value.
//
// Writes made through the same DirStore also surface here. Consumers
// that only react to foreign changes compare the event value against
// their own state, which is how the sync monitor uses it.
type Notifier struct {
	watcher     *fsnotify.Watcher
	store       *DirStore
	events      chan ChangeEvent
	debounceDur time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	debounceMap map[string]time.Time
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithDebounce sets the settle window for coalescing slot rewrites.
// Values below 10ms are clamped up.
func WithDebounce(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d < minDebounce {
			d = minDebounce
		}
		n.debounceDur = d
	}
}

// WithNotifierLogger sets the logger. Defaults to slog.Default().
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

// Watch creates a Notifier over the store's directory. Call Start to
// begin delivery and Stop to tear down.
func Watch(store *DirStore, opts ...NotifierOption) (*Notifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &Notifier{
		watcher:     watcher,
		store:       store,
		events:      make(chan ChangeEvent, 64),
		debounceDur: 50 * time.Millisecond,
		logger:      slog.Default(),
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := watcher.Add(store.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}
	return n, nil
}

// Events returns the delivery channel. The channel is never closed;
// callers select against their own done signal.
func (n *Notifier) Events() <-chan ChangeEvent {
	return n.events
}

// Start begins watching in a background goroutine. Calling Start on a
// running Notifier is a no-op.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	n.mu.Unlock()

	go n.run(ctx)
	return nil
}

// Stop halts delivery and closes the underlying watcher.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	close(n.stopCh)
	<-n.doneCh

	if err := n.watcher.Close(); err != nil {
		n.logger.Error("closing slot watcher", "error", err)
	}
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.doneCh)

	flush := time.NewTicker(n.debounceDur / 2)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-n.stopCh:
			return

		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.handleEvent(event)

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Error("slot watcher", "error", err)

		case <-flush.C:
			n.flushSettled(ctx)
		}
	}
}

// handleEvent records that a slot was touched. Temp files and non-slot
// names are ignored, as are chmods.
func (n *Notifier) handleEvent(event fsnotify.Event) {
	key, ok := slotKey(event.Name)
	if !ok {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	n.mu.Lock()
	n.debounceMap[key] = time.Now()
	n.mu.Unlock()
}

// flushSettled emits events for slots whose last touch is older than
// the debounce window, reading the value fresh so coalesced rewrites
// deliver only the final state.
func (n *Notifier) flushSettled(ctx context.Context) {
	n.mu.Lock()
	now := time.Now()
	var settled []string
	for key, touched := range n.debounceMap {
		if now.Sub(touched) >= n.debounceDur {
			settled = append(settled, key)
			delete(n.debounceMap, key)
		}
	}
	n.mu.Unlock()

	for _, key := range settled {
		value, ok, err := n.store.Get(ctx, key)
		if err != nil {
			n.logger.Error("reading changed slot", "key", key, "error", err)
			continue
		}
		ev := ChangeEvent{Key: key, Value: value, Removed: !ok}
		select {
		case n.events <- ev:
		default:
			n.logger.Warn("change event dropped, consumer is behind", "key", key)
		}
	}
}
