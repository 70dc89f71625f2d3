package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COMEONSOM/stargrid/internal/journal"
)

func TestAssertTraceContains_Found(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "fin_calc", Segment: "tools", Status: "starred", Seq: 1},
		{Type: "toggle", Card: "sip_calc", Segment: "tools", Status: "starred", Seq: 2},
	}

	assertion := Assertion{
		Type: AssertTraceContains,
		Card: "fin_calc",
	}

	err := assertTraceContains(trace, assertion)
	assert.NoError(t, err)
}

func TestAssertTraceContains_WithExpect(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "fin_calc", Status: "starred", Evicted: "sip_calc", Seq: 1},
	}

	assertion := Assertion{
		Type:   AssertTraceContains,
		Card:   "fin_calc",
		Expect: &ExpectClause{Status: "starred", Evicted: "sip_calc"},
	}

	err := assertTraceContains(trace, assertion)
	assert.NoError(t, err)
}

func TestAssertTraceContains_ExpectMismatch(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "fin_calc", Status: "declined", Seq: 1},
	}

	assertion := Assertion{
		Type:   AssertTraceContains,
		Card:   "fin_calc",
		Expect: &ExpectClause{Status: "starred"},
	}

	err := assertTraceContains(trace, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_contains", assertErr.Type)
	assert.Contains(t, assertErr.Expected, "fin_calc")
	assert.Contains(t, assertErr.Expected, "status starred")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "fin_calc", Status: "starred", Seq: 1},
	}

	assertion := Assertion{
		Type: AssertTraceContains,
		Card: "sip_calc",
	}

	err := assertTraceContains(trace, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Expected, "any result")
}

func TestAssertTraceContains_IgnoresReloads(t *testing.T) {
	// A reload event never satisfies a toggle assertion, even when the
	// card field happens to be empty on both sides.
	trace := []TraceEvent{
		{Type: "reload", Slot: "main_site", Value: "bob"},
	}

	assertion := Assertion{
		Type: AssertTraceContains,
		Card: "",
	}

	err := assertTraceContains(trace, assertion)
	require.Error(t, err)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_4", Status: "starred", Seq: 1},
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 2},
		{Type: "toggle", Card: "card_2", Status: "starred", Seq: 3},
	}

	assertion := Assertion{
		Type:  AssertTraceOrder,
		Cards: []string{"card_4", "card_2"},
	}

	err := assertTraceOrder(trace, assertion)
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WrongOrder(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_2", Status: "starred", Seq: 1},
		{Type: "toggle", Card: "card_4", Status: "starred", Seq: 2},
	}

	assertion := Assertion{
		Type:  AssertTraceOrder,
		Cards: []string{"card_4", "card_2"},
	}

	err := assertTraceOrder(trace, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_order", assertErr.Type)
	assert.Contains(t, assertErr.Actual, "card_4")
	assert.Contains(t, assertErr.Actual, "should be before")
}

func TestAssertTraceOrder_MissingCard(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_4", Status: "starred", Seq: 1},
	}

	assertion := Assertion{
		Type:  AssertTraceOrder,
		Cards: []string{"card_4", "card_2"},
	}

	err := assertTraceOrder(trace, assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Actual, "missing toggle of card_2")
}

func TestAssertTraceOrder_FirstToggleCounts(t *testing.T) {
	// Position is the first toggle of each card. A later re-toggle of an
	// earlier card does not reorder the sequence.
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 1},
		{Type: "toggle", Card: "card_2", Status: "starred", Seq: 2},
		{Type: "toggle", Card: "card_1", Status: "unstarred", Seq: 3},
	}

	assertion := Assertion{
		Type:  AssertTraceOrder,
		Cards: []string{"card_1", "card_2"},
	}

	err := assertTraceOrder(trace, assertion)
	assert.NoError(t, err)
}

func TestAssertTraceCount_Exact(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 1},
		{Type: "toggle", Card: "card_2", Status: "starred", Seq: 2},
		{Type: "toggle", Card: "card_1", Status: "unstarred", Seq: 3},
	}

	err := assertTraceCount(trace, Assertion{Type: AssertTraceCount, Card: "card_1", Count: 2})
	assert.NoError(t, err)
}

func TestAssertTraceCount_ZeroMeansNever(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 1},
	}

	err := assertTraceCount(trace, Assertion{Type: AssertTraceCount, Card: "card_9", Count: 0})
	assert.NoError(t, err)
}

func TestAssertTraceCount_Mismatch(t *testing.T) {
	trace := []TraceEvent{
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 1},
	}

	err := assertTraceCount(trace, Assertion{Type: AssertTraceCount, Card: "card_1", Count: 2})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_count", assertErr.Type)
	assert.Contains(t, assertErr.Expected, "2 toggles of card_1")
	assert.Contains(t, assertErr.Actual, "1 toggles")
}

func TestAssertFinalState_Exact(t *testing.T) {
	result := NewResult()
	result.Starred = map[string][]string{"tools": {"card_4", "card_2"}}

	err := assertFinalState(result, Assertion{
		Type:    AssertFinalState,
		Segment: "tools",
		Starred: []string{"card_4", "card_2"},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_OrderMatters(t *testing.T) {
	// Star order is the product. Same set in a different order fails.
	result := NewResult()
	result.Starred = map[string][]string{"tools": {"card_2", "card_4"}}

	err := assertFinalState(result, Assertion{
		Type:    AssertFinalState,
		Segment: "tools",
		Starred: []string{"card_4", "card_2"},
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "final_state", assertErr.Type)
}

func TestAssertFinalState_AbsentSegmentIsEmpty(t *testing.T) {
	result := NewResult()
	result.Starred = map[string][]string{}

	err := assertFinalState(result, Assertion{
		Type:    AssertFinalState,
		Segment: "tools",
	})
	assert.NoError(t, err)
}

func TestAssertCardOrder_Exact(t *testing.T) {
	result := NewResult()
	result.Order = map[string][]string{"tools": {"card_2", "card_1", "card_3"}}

	err := assertCardOrder(result, Assertion{
		Type:    AssertCardOrder,
		Segment: "tools",
		Cards:   []string{"card_2", "card_1", "card_3"},
	})
	assert.NoError(t, err)
}

func TestAssertCardOrder_Mismatch(t *testing.T) {
	result := NewResult()
	result.Order = map[string][]string{"tools": {"card_1", "card_2", "card_3"}}

	err := assertCardOrder(result, Assertion{
		Type:    AssertCardOrder,
		Segment: "tools",
		Cards:   []string{"card_2", "card_1", "card_3"},
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "card_order", assertErr.Type)
}

func TestAssertCardOrder_UnknownSegment(t *testing.T) {
	result := NewResult()
	result.Order = map[string][]string{"tools": {"card_1"}, "media": {"card_2"}}

	err := assertCardOrder(result, Assertion{
		Type:    AssertCardOrder,
		Segment: "finance",
		Cards:   []string{"card_1"},
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Actual, "no such segment")
	assert.Contains(t, assertErr.Actual, "media")
	assert.Contains(t, assertErr.Actual, "tools")
}

func TestAssertionError_FormatsTrace(t *testing.T) {
	err := &AssertionError{
		Type:     "trace_count",
		Expected: "2 toggles of card_1",
		Actual:   "1 toggles",
		Trace: []TraceEvent{
			{Type: "toggle", Card: "card_1", Status: "starred", Evicted: "card_9", Seq: 1},
			{Type: "reload", Slot: "main_site", Value: "bob"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 toggles of card_1")
	assert.Contains(t, msg, "Actual: 1 toggles")
	assert.Contains(t, msg, "[1] toggle card_1 -> starred (evicted card_9)")
	assert.Contains(t, msg, `[2] reload (main_site -> "bob")`)
}

func TestAssertJournalCount(t *testing.T) {
	ctx := context.Background()
	jnl, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer jnl.Close()

	require.NoError(t, jnl.Record(ctx, journal.Transition{
		Token: "tok-1", Seq: 1, User: "guest", Segment: "tools", Card: "card_1",
		Op: journal.OpStar, Outcome: journal.OutcomeApplied,
	}))
	require.NoError(t, jnl.Record(ctx, journal.Transition{
		Token: "tok-2", Seq: 2, User: "guest", Segment: "tools", Card: "card_2",
		Op: journal.OpStar, Outcome: journal.OutcomeDeclined,
	}))

	assert.NoError(t, assertJournalCount(ctx, jnl, Assertion{
		Type: AssertJournalCount, Count: 2,
	}))
	assert.NoError(t, assertJournalCount(ctx, jnl, Assertion{
		Type: AssertJournalCount, Outcome: "applied", Count: 1,
	}))
	assert.NoError(t, assertJournalCount(ctx, jnl, Assertion{
		Type: AssertJournalCount, Outcome: "rejected", Count: 0,
	}))

	err = assertJournalCount(ctx, jnl, Assertion{
		Type: AssertJournalCount, Outcome: "declined", Count: 3,
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Expected, "3 declined journal rows")
	assert.Contains(t, assertErr.Actual, "1 rows")
}

func TestEvaluateAssertions_CollectsAllFailures(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Type: "toggle", Card: "card_1", Status: "starred", Seq: 1},
	}
	result.Starred = map[string][]string{"tools": {"card_1"}}
	result.Order = map[string][]string{"tools": {"card_1", "card_2"}}

	assertions := []Assertion{
		{Type: AssertTraceCount, Card: "card_1", Count: 1},
		{Type: AssertTraceCount, Card: "card_1", Count: 5},
		{Type: AssertFinalState, Segment: "tools", Starred: []string{"card_2"}},
	}

	msgs := EvaluateAssertions(result, assertions, nil)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "trace_count")
	assert.Contains(t, msgs[1], "final_state")
}

func TestEvaluateAssertions_JournalWithoutContext(t *testing.T) {
	result := NewResult()

	msgs := EvaluateAssertions(result, []Assertion{
		{Type: AssertJournalCount, Count: 0},
	}, nil)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "journal_count requires journal context")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	result := NewResult()

	msgs := EvaluateAssertions(result, []Assertion{
		{Type: "state_matches"},
	}, nil)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "unknown assertion type")
}
