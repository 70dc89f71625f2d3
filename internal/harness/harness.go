package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/COMEONSOM/stargrid/internal/engine"
	"github.com/COMEONSOM/stargrid/internal/journal"
	"github.com/COMEONSOM/stargrid/internal/page"
	"github.com/COMEONSOM/stargrid/internal/profile"
	"github.com/COMEONSOM/stargrid/internal/state"
	"github.com/COMEONSOM/stargrid/internal/storage"
	"github.com/COMEONSOM/stargrid/internal/testutil"
)

// stepTimeout bounds each engine interaction so a wedged loop surfaces
// as an error instead of a hang.
const stepTimeout = 5 * time.Second

// conflictReloadDelay keeps conflict scenarios fast while still going
// through the deferred-reload path.
const conflictReloadDelay = 10 * time.Millisecond

// Run executes a scenario against a real engine over a synthesized
// page.
//
// Each run gets a fresh in-memory store, an in-memory journal, and
// deterministic token and timestamp sources, so the same scenario
// always produces the same trace.
//
// Execution flow:
//  1. Load the profile and synthesize the page.
//  2. Seed the identity slots and the starred snapshot.
//  3. Construct the engine and start its loop.
//  4. Drive the toggle flow, validating expect clauses.
//  5. Settle, then capture final state and card order.
//  6. Inject the conflict event, if any, and await the reload.
//  7. Evaluate assertions against the result.
func Run(scenario *Scenario) (*Result, error) {
	prof := profile.Default()
	if scenario.Profile != "" {
		loaded, err := profile.Load(scenario.Profile)
		if err != nil {
			return nil, fmt.Errorf("loading scenario profile: %w", err)
		}
		prof = loaded
	}

	doc := synthesizePage(scenario.Page)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	durable := storage.NewMemStore()
	session := storage.NewMemStore()

	if err := seedIdentity(ctx, durable, prof, scenario.Identity); err != nil {
		return nil, err
	}
	seedSnapshot(ctx, durable, prof, scenario.Seed, logger)

	jnl, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening scenario journal: %w", err)
	}
	defer jnl.Close()

	opts := []engine.Option{
		engine.WithDurable(durable),
		engine.WithSession(session),
		engine.WithJournal(jnl),
		engine.WithLogger(logger),
		engine.WithPageURL(scenario.Identity.PageURL),
		engine.WithTokens(testutil.NewSequenceTokens(scenario.TokenPrefix)),
		engine.WithNow(testutil.NewWallClock(testutil.Epoch, time.Second).Now),
	}
	if len(scenario.Confirm) > 0 {
		opts = append(opts, engine.WithConfirmer(engine.NewScriptedConfirmer(scenario.Confirm...)))
	}

	var changes chan storage.ChangeEvent
	if scenario.Conflict != nil {
		changes = make(chan storage.ChangeEvent, 1)
		opts = append(opts,
			engine.WithChangeEvents(changes),
			engine.WithReloadDelay(conflictReloadDelay),
		)
	}

	eng, err := engine.New(ctx, doc, prof, opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing engine: %w", err)
	}

	result := NewResult()
	ident := eng.Identity()
	result.User = ident.User
	result.Source = ident.Source.String()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(runCtx) }()

	if err := driveFlow(ctx, eng, scenario.Flow, result); err != nil {
		return nil, err
	}
	if err := settleAndCapture(ctx, eng, result); err != nil {
		return nil, err
	}

	if scenario.Conflict != nil {
		if err := injectConflict(prof, scenario.Conflict, changes, runDone, result); err != nil {
			return nil, err
		}
	} else {
		eng.Stop()
		select {
		case err := <-runDone:
			if err != nil {
				return nil, fmt.Errorf("engine loop: %w", err)
			}
		case <-time.After(stepTimeout):
			return nil, fmt.Errorf("engine loop did not stop")
		}
	}

	actx := &AssertionContext{Journal: jnl, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// synthesizePage renders the scenario's grid markup and parses it.
func synthesizePage(spec PageSpec) *page.Document {
	segments := make([]testutil.SegmentSpec, 0, len(spec.Segments))
	for _, seg := range spec.Segments {
		cards := make([]testutil.CardSpec, len(seg.Cards))
		for i, card := range seg.Cards {
			cards[i] = testutil.CardSpec{ID: card.ID, URL: card.URL, Job: card.Job}
		}
		segments = append(segments, testutil.SegmentSpec{Name: seg.Name, ID: seg.ID, Cards: cards})
	}
	return testutil.MustGrid(segments...)
}

func seedIdentity(ctx context.Context, kv storage.KV, prof *profile.Profile, spec IdentitySpec) error {
	if spec.MainSite != "" {
		if err := kv.Set(ctx, prof.Identity.MainSiteKey, spec.MainSite); err != nil {
			return fmt.Errorf("seeding main-site slot: %w", err)
		}
	}
	if spec.Cache != "" {
		if err := kv.Set(ctx, prof.Identity.CacheKey, spec.Cache); err != nil {
			return fmt.Errorf("seeding cache slot: %w", err)
		}
	}
	return nil
}

func seedSnapshot(ctx context.Context, kv storage.KV, prof *profile.Profile, spec SeedSpec, logger *slog.Logger) {
	if len(spec.Starred) == 0 {
		return
	}
	user := spec.User
	if user == "" {
		user = prof.Identity.Guest
	}
	snap := state.EmptySnapshot()
	for segID, cards := range spec.Starred {
		snap.Segments[segID] = append([]string(nil), cards...)
	}
	storage.NewGateway(kv, logger).Save(ctx, prof.StateKey(user), snap)
}

// driveFlow toggles each card through the running engine and validates
// expect clauses. Expect failures mark the result, they do not abort
// the run: the remaining steps still execute so the trace stays whole.
func driveFlow(ctx context.Context, eng *engine.Engine, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		res, err := eng.Toggle(stepCtx, step.Toggle)
		cancel()
		if err != nil {
			return fmt.Errorf("flow[%d]: toggling %s: %w", i, step.Toggle, err)
		}
		result.AddToggle(TraceEvent{
			Card:    res.Card,
			Segment: res.Segment,
			Status:  string(res.Status),
			Evicted: res.Evicted,
			Token:   res.Token,
			Seq:     res.Seq,
		})
		checkExpect(i, step, res, result)
	}
	return nil
}

func checkExpect(index int, step FlowStep, res engine.ToggleResult, result *Result) {
	if step.Expect == nil {
		return
	}
	if want := step.Expect.Status; want != "" && want != string(res.Status) {
		result.AddError(fmt.Sprintf("flow[%d]: toggling %s: expected status %s, got %s",
			index, step.Toggle, want, res.Status))
	}
	if want := step.Expect.Evicted; want != "" && want != res.Evicted {
		result.AddError(fmt.Sprintf("flow[%d]: toggling %s: expected eviction of %s, got %q",
			index, step.Toggle, want, res.Evicted))
	}
}

// settleAndCapture flushes deferred repositions, then records the final
// star state and per-segment card order. Reads are safe here: the
// settle reply orders them after the last flush.
func settleAndCapture(ctx context.Context, eng *engine.Engine, result *Result) error {
	settleCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if err := eng.Settle(settleCtx); err != nil {
		return fmt.Errorf("settling: %w", err)
	}

	snap, err := eng.State(settleCtx)
	if err != nil {
		return fmt.Errorf("reading final state: %w", err)
	}
	result.Starred = snap.Segments

	for _, seg := range eng.Index().Segments() {
		order, err := eng.Index().CardOrder(seg.ID)
		if err != nil {
			return fmt.Errorf("reading card order for %s: %w", seg.ID, err)
		}
		result.Order[seg.ID] = order
	}
	return nil
}

// injectConflict delivers the identity change and waits for the loop
// to reload. The engine defers the reload, so the loop keeps serving
// until the delay fires.
func injectConflict(prof *profile.Profile, spec *ConflictSpec, changes chan<- storage.ChangeEvent, runDone <-chan error, result *Result) error {
	key := prof.Identity.MainSiteKey
	if spec.Slot == SlotCache {
		key = prof.Identity.CacheKey
	}
	changes <- storage.ChangeEvent{Key: key, Value: spec.Value, Removed: spec.Removed}

	select {
	case err := <-runDone:
		if !errors.Is(err, engine.ErrReload) {
			return fmt.Errorf("conflict: engine loop returned %v, expected a reload", err)
		}
		result.AddReload(spec.Slot, spec.Value)
		return nil
	case <-time.After(stepTimeout):
		return fmt.Errorf("conflict: reload never happened")
	}
}
