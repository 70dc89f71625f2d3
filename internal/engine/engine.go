package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/COMEONSOM/stargrid/internal/frame"
	"github.com/COMEONSOM/stargrid/internal/identity"
	"github.com/COMEONSOM/stargrid/internal/journal"
	"github.com/COMEONSOM/stargrid/internal/page"
	"github.com/COMEONSOM/stargrid/internal/profile"
	"github.com/COMEONSOM/stargrid/internal/state"
	"github.com/COMEONSOM/stargrid/internal/storage"
)

// Engine is the single-writer star-state engine for one page load.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Toggle(), State(), Settle(): safe from any goroutine
//   - Identity(), ReloadPending(): safe from any goroutine
//
// The registry, index, and document are mutated only inside the Run
// loop. Document() and Index() hand out the underlying structures for
// reading; callers inspect them between a Settle and the next toggle,
// when the loop is quiescent.
type Engine struct {
	doc      *page.Document
	prof     *profile.Profile
	index    *page.Index
	registry *state.Registry
	gateway  *storage.Gateway

	durable storage.KV
	session storage.KV
	journal *journal.Journal
	confirm Confirmer
	tokens  TokenGenerator
	clock   *Clock
	frames  *frame.Scheduler
	queue   *requestQueue
	logger  *slog.Logger
	now     func() time.Time

	pageURL string
	ident   identity.Resolution
	changes <-chan storage.ChangeEvent

	reloadDelay time.Duration
	reloadFn    func()

	reloadMu      sync.Mutex
	reloadTimer   *time.Timer
	reloadPending bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDurable sets the durable slot store, the localStorage analog.
// Default: a fresh in-process MemStore.
func WithDurable(kv storage.KV) Option {
	return func(e *Engine) { e.durable = kv }
}

// WithSession sets the session slot store, the sessionStorage analog.
// Default: a fresh in-process MemStore.
func WithSession(kv storage.KV) Option {
	return func(e *Engine) { e.session = kv }
}

// WithJournal attaches a transition journal. Every toggle outcome is
// recorded there; journal failures are logged and never affect the
// toggle itself.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithConfirmer sets the eviction prompt. Default: approve everything.
func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) { e.confirm = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPageURL sets the page URL whose query parameters identity
// resolution consults first.
func WithPageURL(u string) Option {
	return func(e *Engine) { e.pageURL = u }
}

// WithTokens sets the request token source. Default: UUIDv7.
func WithTokens(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithClock overrides the logical clock and skips journal seeding.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNow sets the wall-time source journal rows record. Audit only,
// never used for ordering. Default: time.Now.
func WithNow(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// WithChangeEvents feeds the loop a slot change stream to monitor for
// cross-tab identity conflicts. Without it the engine never reloads.
func WithChangeEvents(ch <-chan storage.ChangeEvent) Option {
	return func(e *Engine) { e.changes = ch }
}

// WithReloadDelay overrides the profile's reload settle window.
func WithReloadDelay(d time.Duration) Option {
	return func(e *Engine) { e.reloadDelay = d }
}

// WithReloadFunc sets a callback invoked when a scheduled reload fires,
// just before Run returns ErrReload.
func WithReloadFunc(fn func()) Option {
	return func(e *Engine) { e.reloadFn = fn }
}

// New builds an engine for one page load.
//
// Construction performs the page-load sequence: resolve identity, index
// the document, hydrate the registry from the persisted snapshot, sync
// every star control, and defer the initial full reorder of each
// segment to the first frame flush. The engine is inert until Run.
func New(ctx context.Context, doc *page.Document, prof *profile.Profile, opts ...Option) (*Engine, error) {
	if doc == nil {
		return nil, fmt.Errorf("engine: document is required")
	}
	if prof == nil {
		return nil, fmt.Errorf("engine: profile is required")
	}
	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		doc:         doc,
		prof:        prof,
		queue:       newRequestQueue(),
		reloadDelay: prof.ReloadDelay(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.durable == nil {
		e.durable = storage.NewMemStore()
	}
	if e.session == nil {
		e.session = storage.NewMemStore()
	}
	if e.confirm == nil {
		e.confirm = AutoConfirmer{Approve: true}
	}
	if e.tokens == nil {
		e.tokens = UUIDv7Generator{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.clock == nil {
		e.clock = NewClock()
		if e.journal != nil {
			last, err := e.journal.LastSeq(ctx)
			if err != nil {
				e.logger.Warn("journal seq lookup failed, clock starts at zero", "error", err)
			} else {
				e.clock = NewClockAt(last)
			}
		}
	}
	e.frames = frame.NewScheduler(e.logger)
	e.gateway = storage.NewGateway(e.durable, e.logger)

	resolver := identity.NewResolver(e.durable, e.session, prof.Identity, e.logger)
	e.ident = resolver.Resolve(ctx, e.pageURL)

	e.index = page.BuildIndex(doc, prof)
	st := e.index.Stats
	if st.OrphanCards > 0 || len(st.DuplicateCards) > 0 || len(st.DuplicateSegments) > 0 {
		e.logger.Warn("document has malformed card markup",
			"orphan_cards", st.OrphanCards,
			"duplicate_cards", st.DuplicateCards,
			"duplicate_segments", st.DuplicateSegments,
		)
	}

	e.registry = state.NewRegistry(prof.MaxStars)
	snap := e.gateway.Load(ctx, prof.StateKey(e.ident.User), state.EmptySnapshot())
	hs := e.registry.Hydrate(snap)
	if hs.Duplicates > 0 || len(hs.Truncated) > 0 {
		e.logger.Warn("persisted star state needed repair",
			"duplicates", hs.Duplicates,
			"truncated", hs.Truncated,
		)
	}

	e.index.SyncAllControls(e.registry.Has)

	// The original applied the startup reorder on the first animation
	// frame; here each segment's full reorder waits for the first flush.
	for _, seg := range e.index.Segments() {
		segID := seg.ID
		e.frames.Defer("reorder "+segID, func() error {
			return e.index.Reorder(segID, e.registry.Starred(segID))
		})
	}

	e.logger.Info("engine ready",
		"identity", e.ident.User,
		"source", e.ident.Source.String(),
		"segments", st.Segments,
		"cards", st.Cards,
		"starred", e.registry.Snapshot().Total(),
	)
	return e, nil
}

// Run starts the single-writer loop and blocks until ctx is cancelled,
// Stop is called, or an identity conflict forces a reload (ErrReload).
//
// Must be called from exactly one goroutine. All registry and DOM
// mutation happens here; deferred frame mutations are flushed whenever
// the request queue goes idle.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine loop starting", "identity", e.ident.User)

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			if req.kind == requestReload {
				return e.reload()
			}
			e.process(ctx, req)
			continue
		}

		// Queue idle: apply deferred DOM mutations.
		if e.frames.Pending() > 0 {
			e.frames.Flush()
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine loop stopping", "reason", "context cancelled")
			e.queue.Close()
			return ctx.Err()

		case ev := <-e.changes:
			e.observeChange(ev)

		case <-e.queue.Wait():
			// The signal buffer can hold a stale token after a direct
			// dequeue, so an empty queue here does not mean closed.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine loop stopping", "reason", "queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run drains what is already enqueued, flushes
// deferred mutations, and returns nil. Requests arriving after Stop get
// ErrStopped.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process handles one request in the loop goroutine. Replies never
// block: reply channels are buffered for callers that gave up.
func (e *Engine) process(ctx context.Context, req request) {
	switch req.kind {
	case requestToggle:
		req.reply <- response{toggle: e.processToggle(ctx, req.card)}

	case requestState:
		req.reply <- response{snap: e.registry.Snapshot()}

	case requestSettle:
		// Everything ahead of the barrier has been processed; flush
		// until deferred work stops producing more.
		for e.frames.Pending() > 0 {
			e.frames.Flush()
		}
		req.reply <- response{}

	default:
		e.logger.Error("unknown request kind", "kind", int(req.kind))
	}
}

// Toggle flips the star state of cardID. By the time it returns, the
// registry mutation, the persistence write, and the indicator updates
// have happened; only the physical reposition is still deferred.
func (e *Engine) Toggle(ctx context.Context, cardID string) (ToggleResult, error) {
	req := request{kind: requestToggle, card: cardID, reply: make(chan response, 1)}
	if !e.queue.Enqueue(req) {
		return ToggleResult{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return ToggleResult{}, ctx.Err()
	case resp := <-req.reply:
		return resp.toggle, nil
	}
}

// State returns a copy of the current star state. Serialized through
// the queue, so it reflects every toggle enqueued before it.
func (e *Engine) State(ctx context.Context) (state.Snapshot, error) {
	req := request{kind: requestState, reply: make(chan response, 1)}
	if !e.queue.Enqueue(req) {
		return state.Snapshot{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return state.Snapshot{}, ctx.Err()
	case resp := <-req.reply:
		return resp.snap, nil
	}
}

// Settle blocks until every request enqueued before it has been
// processed and all deferred DOM mutations have been applied. The CLI
// and tests use it as a frame barrier before rendering.
func (e *Engine) Settle(ctx context.Context) error {
	req := request{kind: requestSettle, reply: make(chan response, 1)}
	if !e.queue.Enqueue(req) {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-req.reply:
		return nil
	}
}

// Identity returns the identity resolved at construction. It never
// changes for the life of the engine; a conflicting identity triggers a
// reload instead.
func (e *Engine) Identity() identity.Resolution {
	return e.ident
}

// Document returns the page the engine mutates.
func (e *Engine) Document() *page.Document {
	return e.doc
}

// Index returns the card index built at construction.
func (e *Engine) Index() *page.Index {
	return e.index
}

// Capacity returns the per-segment star limit in effect.
func (e *Engine) Capacity() int {
	return e.registry.Capacity()
}

// QueueLen returns the number of pending requests. Monitoring and
// tests only.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}
