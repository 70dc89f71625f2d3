package engine

import (
	"context"

	"github.com/COMEONSOM/stargrid/internal/journal"
	"github.com/COMEONSOM/stargrid/internal/page"
)

// ToggleStatus classifies what a toggle did.
type ToggleStatus string

const (
	StatusStarred   ToggleStatus = "starred"
	StatusUnstarred ToggleStatus = "unstarred"

	// StatusDeclined: capacity conflict and the confirmer said no.
	// Nothing changed, nothing was persisted.
	StatusDeclined ToggleStatus = "declined"

	// StatusRejected: unknown card, nothing changed.
	StatusRejected ToggleStatus = "rejected"
)

// ToggleResult reports one toggle. Token and Seq correlate the result
// with log lines and journal rows.
type ToggleResult struct {
	Card    string
	Segment string
	Status  ToggleStatus

	// Evicted is the card removed to make room, set only on starred
	// results that displaced the oldest star.
	Evicted string

	Token string
	Seq   uint64
}

// processToggle runs one toggle in the loop goroutine. Direction is
// derived from the registry: starred cards unstar, everything else
// stars. Unknown cards are rejected, logged, and journaled, never an
// error.
func (e *Engine) processToggle(ctx context.Context, cardID string) ToggleResult {
	token := e.tokens.Generate()
	seq := e.clock.Next()

	card, ok := e.index.Card(cardID)
	if !ok {
		e.logger.Warn("toggle rejected, unknown card",
			"card", cardID, "token", token, "seq", seq)
		res := ToggleResult{Card: cardID, Status: StatusRejected, Token: token, Seq: seq}
		e.record(ctx, res, journal.OpNone)
		return res
	}

	if e.registry.Has(card.Segment.ID, cardID) {
		return e.unstar(ctx, card, token, seq)
	}
	return e.star(ctx, card, token, seq)
}

// star adds a card to its segment's star set, evicting the oldest star
// after confirmation when the segment is at capacity.
//
// Postconditions of an applied star, in order: registry mutated,
// snapshot persisted, indicators synced for the card and any evictee,
// repositions deferred with the evictee ahead of the new star so the
// new star joins the back of a block the evictee has already left.
func (e *Engine) star(ctx context.Context, card *page.Card, token string, seq uint64) ToggleResult {
	segID := card.Segment.ID
	res := ToggleResult{Card: card.ID, Segment: segID, Token: token, Seq: seq}

	var evicted string
	if e.registry.AtCapacity(segID) {
		oldest, _ := e.registry.Oldest(segID)
		ok, err := e.confirm.Confirm(ctx, ConfirmRequest{Segment: segID, Card: card.ID, Evict: oldest})
		if err != nil {
			e.logger.Warn("eviction prompt failed, treating as declined",
				"segment", segID, "card", card.ID, "evict", oldest, "error", err)
			ok = false
		}
		if !ok {
			e.logger.Info("star declined",
				"segment", segID, "card", card.ID, "evict", oldest,
				"token", token, "seq", seq)
			res.Status = StatusDeclined
			e.record(ctx, res, journal.OpStar)
			return res
		}
		evicted = oldest
		e.registry.Remove(segID, oldest)
	}

	e.registry.Add(segID, card.ID)
	res.Status = StatusStarred
	res.Evicted = evicted

	e.persist(ctx)

	e.index.SyncControl(card, true)
	if evicted != "" {
		if out, ok := e.index.Card(evicted); ok {
			e.index.SyncControl(out, false)
		}
	}

	if evicted != "" {
		e.deferUnstarReposition(segID, evicted)
	}
	e.deferStarReposition(segID, card.ID)

	e.record(ctx, res, journal.OpStar)
	e.logger.Info("card starred",
		"segment", segID, "card", card.ID, "evicted", evicted,
		"token", token, "seq", seq)
	return res
}

// unstar removes a card from its segment's star set. No capacity
// involvement; the card drifts back to its original-index slot on the
// next flush.
func (e *Engine) unstar(ctx context.Context, card *page.Card, token string, seq uint64) ToggleResult {
	segID := card.Segment.ID
	e.registry.Remove(segID, card.ID)
	res := ToggleResult{Card: card.ID, Segment: segID, Status: StatusUnstarred, Token: token, Seq: seq}

	e.persist(ctx)
	e.index.SyncControl(card, false)
	e.deferUnstarReposition(segID, card.ID)

	e.record(ctx, res, journal.OpUnstar)
	e.logger.Info("card unstarred",
		"segment", segID, "card", card.ID, "token", token, "seq", seq)
	return res
}

func (e *Engine) deferStarReposition(segID, cardID string) {
	e.frames.Defer("reposition starred "+cardID, func() error {
		return e.index.RepositionStarred(cardID, e.starredIn(segID))
	})
}

func (e *Engine) deferUnstarReposition(segID, cardID string) {
	e.frames.Defer("reposition unstarred "+cardID, func() error {
		return e.index.RepositionUnstarred(cardID, e.starredIn(segID))
	})
}

// starredIn returns the membership probe repositions use. Live on
// purpose: the registry at flush time, not at defer time, decides the
// boundary between the starred block and the rest.
func (e *Engine) starredIn(segID string) func(string) bool {
	return func(cardID string) bool { return e.registry.Has(segID, cardID) }
}

// persist writes the full snapshot through the gateway. The slot key is
// recomputed from the identity on every write. Failures are logged by
// the gateway and dropped; persistence is best-effort.
func (e *Engine) persist(ctx context.Context) {
	e.gateway.Save(ctx, e.prof.StateKey(e.ident.User), e.registry.Snapshot())
}

// record journals one toggle outcome when a journal is attached.
func (e *Engine) record(ctx context.Context, res ToggleResult, op journal.Op) {
	if e.journal == nil {
		return
	}
	outcome := journal.OutcomeApplied
	switch res.Status {
	case StatusDeclined:
		outcome = journal.OutcomeDeclined
	case StatusRejected:
		outcome = journal.OutcomeRejected
	}
	tr := journal.Transition{
		Token:   res.Token,
		Seq:     res.Seq,
		User:    e.ident.User,
		Segment: res.Segment,
		Card:    res.Card,
		Op:      op,
		Outcome: outcome,
		Evicted: res.Evicted,
		At:      e.now(),
	}
	if err := e.journal.Record(ctx, tr); err != nil {
		e.logger.Warn("journal write failed", "token", res.Token, "error", err)
	}
}
