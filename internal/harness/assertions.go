package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/COMEONSOM/stargrid/internal/journal"
)

// AssertionError is returned when an assertion fails. It carries the
// trace so the failure reads without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case "toggle":
				fmt.Fprintf(&buf, "  [%d] toggle %s -> %s", i+1, event.Card, event.Status)
				if event.Evicted != "" {
					fmt.Fprintf(&buf, " (evicted %s)", event.Evicted)
				}
				fmt.Fprintf(&buf, "\n")
			case "reload":
				fmt.Fprintf(&buf, "  [%d] reload (%s -> %q)\n", i+1, event.Slot, event.Value)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks the trace holds a toggle of the card whose
// result matches the expect clause (subset semantics).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != "toggle" || event.Card != assertion.Card {
			continue
		}
		if matchExpect(event, assertion.Expect) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("toggle of %s matching %s", assertion.Card, describeExpect(assertion.Expect)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func matchExpect(event TraceEvent, expect *ExpectClause) bool {
	if expect == nil {
		return true
	}
	if expect.Status != "" && expect.Status != event.Status {
		return false
	}
	if expect.Evicted != "" && expect.Evicted != event.Evicted {
		return false
	}
	return true
}

func describeExpect(expect *ExpectClause) string {
	if expect == nil {
		return "any result"
	}
	var parts []string
	if expect.Status != "" {
		parts = append(parts, "status "+expect.Status)
	}
	if expect.Evicted != "" {
		parts = append(parts, "evicted "+expect.Evicted)
	}
	if len(parts) == 0 {
		return "any result"
	}
	return strings.Join(parts, ", ")
}

// assertTraceOrder checks the cards were first toggled in the given
// order. Intervening toggles are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "toggle" {
			continue
		}
		for _, card := range assertion.Cards {
			if event.Card == card && positions[card] == 0 {
				positions[card] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, card := range assertion.Cards {
		if positions[card] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all cards toggled: %v", assertion.Cards),
				Actual:   fmt.Sprintf("missing toggle of %s", card),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Cards); i++ {
		prev, curr := assertion.Cards[i-1], assertion.Cards[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("toggles in order: %v", assertion.Cards),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks the card was toggled exactly the specified
// number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == "toggle" && event.Card == assertion.Card {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d toggles of %s", assertion.Count, assertion.Card),
			Actual:   fmt.Sprintf("%d toggles", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks a segment's final star order exactly, oldest
// first. An empty expectation asserts the segment holds no stars.
func assertFinalState(result *Result, assertion Assertion) error {
	actual := result.Starred[assertion.Segment]
	if !equalStrings(actual, assertion.Starred) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("segment %s starred %v", assertion.Segment, assertion.Starred),
			Actual:   fmt.Sprintf("starred %v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCardOrder checks a segment's settled card order exactly.
func assertCardOrder(result *Result, assertion Assertion) error {
	actual, ok := result.Order[assertion.Segment]
	if !ok {
		return &AssertionError{
			Type:     AssertCardOrder,
			Expected: fmt.Sprintf("segment %s present", assertion.Segment),
			Actual:   fmt.Sprintf("no such segment, have %v", segmentNames(result.Order)),
			Trace:    result.Trace,
		}
	}
	if !equalStrings(actual, assertion.Cards) {
		return &AssertionError{
			Type:     AssertCardOrder,
			Expected: fmt.Sprintf("segment %s order %v", assertion.Segment, assertion.Cards),
			Actual:   fmt.Sprintf("order %v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertJournalCount counts journal rows matching the outcome filter.
func assertJournalCount(ctx context.Context, jnl *journal.Journal, assertion Assertion) error {
	filter := journal.Filter{}
	if assertion.Outcome != "" {
		filter.Outcome = journal.Outcome(assertion.Outcome)
	}

	rows, err := jnl.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("querying journal: %w", err)
	}

	if len(rows) != assertion.Count {
		desc := "journal rows"
		if assertion.Outcome != "" {
			desc = assertion.Outcome + " journal rows"
		}
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, desc),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}

	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func segmentNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssertionContext provides journal access for journal assertions.
type AssertionContext struct {
	Journal *journal.Journal
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions. The actx
// parameter provides journal access for journal_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertCardOrder:
			err = assertCardOrder(result, assertion)
		case AssertJournalCount:
			if actx == nil || actx.Journal == nil {
				err = fmt.Errorf("assertions[%d]: journal_count requires journal context", i)
			} else {
				err = assertJournalCount(actx.Ctx, actx.Journal, assertion)
			}
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
