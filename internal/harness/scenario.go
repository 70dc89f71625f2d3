package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a synthesized grid page, a
// toggle flow driven through a real engine, and assertions over the
// resulting trace, final star state, and final card order.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profile optionally names a CUE profile overlay, resolved relative
	// to the scenario file. Empty runs the embedded default profile.
	Profile string `yaml:"profile,omitempty"`

	// Page declares the grid the engine runs against.
	Page PageSpec `yaml:"page"`

	// Identity seeds the durable identity slots and the page address
	// before the engine resolves who is starring.
	Identity IdentitySpec `yaml:"identity,omitempty"`

	// Seed persists a starred snapshot before the engine starts, so
	// hydration scenarios begin from known state.
	Seed SeedSpec `yaml:"seed,omitempty"`

	// Confirm scripts capacity prompt decisions, consumed in order.
	// Empty approves every prompt. Running out of decisions panics the
	// run, which flags a miscounted scenario immediately.
	Confirm []bool `yaml:"confirm,omitempty"`

	// TokenPrefix fixes the request token sequence ("prefix-000001",
	// "prefix-000002", ...) for golden comparison. Empty defaults to
	// "test-token".
	TokenPrefix string `yaml:"token_prefix,omitempty"`

	// Flow is the toggle sequence. May be empty for hydration-only
	// scenarios that assert on seeded state.
	Flow []FlowStep `yaml:"flow,omitempty"`

	// Conflict optionally injects an identity change event after the
	// flow and waits for the scheduled reload.
	Conflict *ConflictSpec `yaml:"conflict,omitempty"`

	// Assertions validate the trace, final state, and card order.
	Assertions []Assertion `yaml:"assertions"`
}

// PageSpec declares the synthesized page.
type PageSpec struct {
	Segments []SegmentSpec `yaml:"segments"`
}

// SegmentSpec declares one grid container.
type SegmentSpec struct {
	// Name becomes the container's id attribute; the indexer derives
	// the segment ID from it ("Star Tools" indexes as "star_tools").
	Name string `yaml:"name,omitempty"`

	// ID sets an explicit data-segment-id, which wins over Name.
	ID string `yaml:"id,omitempty"`

	Cards CardList `yaml:"cards"`
}

// CardList accepts either a bare count for anonymous cards:
//
//	cards: 5
//
// or a list of explicit card specs:
//
//	cards:
//	  - id: fin_calc
//	    job: finance
type CardList []CardSpec

// UnmarshalYAML implements the dual count-or-list form.
func (c *CardList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("cards: expected a count or a list: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("cards: count must be non-negative, got %d", n)
		}
		*c = make(CardList, n)
		return nil
	case yaml.SequenceNode:
		var specs []CardSpec
		if err := node.Decode(&specs); err != nil {
			return err
		}
		*c = specs
		return nil
	default:
		return fmt.Errorf("cards: expected a count or a list")
	}
}

// CardSpec declares one card's markup attributes. Empty fields are
// omitted from the markup, leaving ID assignment to the indexer.
type CardSpec struct {
	ID  string `yaml:"id,omitempty"`
	URL string `yaml:"url,omitempty"`
	Job string `yaml:"job,omitempty"`
}

// IdentitySpec controls who the engine resolves as the active identity.
type IdentitySpec struct {
	// PageURL is the page address; its query parameters are the
	// strongest identity source.
	PageURL string `yaml:"page_url,omitempty"`

	// MainSite pre-seeds the durable main-site identity slot.
	MainSite string `yaml:"main_site,omitempty"`

	// Cache pre-seeds the durable last-user cache slot.
	Cache string `yaml:"cache,omitempty"`
}

// SeedSpec pre-populates persisted star state.
type SeedSpec struct {
	// User names the identity whose snapshot is seeded. Empty seeds
	// the profile's guest identity.
	User string `yaml:"user,omitempty"`

	// Starred maps segment IDs to star order, oldest first.
	Starred map[string][]string `yaml:"starred,omitempty"`
}

// FlowStep toggles one card and optionally validates the result.
type FlowStep struct {
	// Toggle is the card ID to toggle.
	Toggle string `yaml:"toggle"`

	// Expect validates the toggle result. Nil skips validation; the
	// result still lands in the trace either way.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected toggle behavior. Subset match: empty
// fields are not checked.
type ExpectClause struct {
	// Status is the expected outcome: starred, unstarred, declined, or
	// rejected.
	Status string `yaml:"status,omitempty"`

	// Evicted is the card expected to have been displaced.
	Evicted string `yaml:"evicted,omitempty"`
}

// Identity slots a conflict can target.
const (
	SlotMainSite = "main_site"
	SlotCache    = "cache"
)

// ConflictSpec injects an identity change from another context after
// the flow completes.
type ConflictSpec struct {
	// Slot is the identity slot that changed: main_site or cache.
	Slot string `yaml:"slot"`

	// Value is the identity the other context wrote.
	Value string `yaml:"value,omitempty"`

	// Removed marks the slot as deleted instead (a logout).
	Removed bool `yaml:"removed,omitempty"`
}

// Assertion validates the trace, the final star state, the final card
// order, or the journal.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a toggle of Card appears matching Expect
	// - "trace_order": Cards were first toggled in that order
	// - "trace_count": Card was toggled exactly Count times
	// - "final_state": Segment's star order equals Starred exactly
	// - "card_order": Segment's settled card order equals Cards exactly
	// - "journal_count": exactly Count journal rows match Outcome
	Type string `yaml:"type"`

	// Card is the toggled card (trace_contains, trace_count).
	Card string `yaml:"card,omitempty"`

	// Expect holds expected toggle result fields (trace_contains).
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Cards is an ordered card list (trace_order, card_order).
	Cards []string `yaml:"cards,omitempty"`

	// Count is the expected number of matches (trace_count,
	// journal_count).
	Count int `yaml:"count,omitempty"`

	// Segment scopes final_state and card_order.
	Segment string `yaml:"segment,omitempty"`

	// Starred is the exact expected star order, oldest first
	// (final_state). Empty asserts the segment holds no stars.
	Starred []string `yaml:"starred,omitempty"`

	// Outcome filters journal rows (journal_count): applied, declined,
	// or rejected. Empty counts every row.
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertCardOrder     = "card_order"
	AssertJournalCount  = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// profile path is resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" for
	// "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}

	if scenario.Profile != "" && !filepath.IsAbs(scenario.Profile) {
		scenario.Profile = filepath.Join(filepath.Dir(path), scenario.Profile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Page.Segments) == 0 {
		return fmt.Errorf("page.segments is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Profile != "" {
		if _, err := os.Stat(s.Profile); os.IsNotExist(err) {
			return fmt.Errorf("profile file not found: %s", s.Profile)
		}
	}

	for i, step := range s.Flow {
		if step.Toggle == "" {
			return fmt.Errorf("flow[%d]: toggle is required", i)
		}
		if step.Expect != nil {
			if err := validateExpect(step.Expect); err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
		}
	}

	if c := s.Conflict; c != nil {
		if c.Slot != SlotMainSite && c.Slot != SlotCache {
			return fmt.Errorf("conflict.slot must be %q or %q, got %q",
				SlotMainSite, SlotCache, c.Slot)
		}
		if c.Value == "" && !c.Removed {
			return fmt.Errorf("conflict: value or removed is required")
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e *ExpectClause) error {
	switch e.Status {
	case "starred", "unstarred", "declined", "rejected":
		return nil
	case "":
		if e.Evicted == "" {
			return fmt.Errorf("status or evicted is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Card == "" {
			return fmt.Errorf("assertions[%d]: card is required for trace_contains", index)
		}
		if a.Expect != nil {
			if err := validateExpect(a.Expect); err != nil {
				return fmt.Errorf("assertions[%d].expect: %w", index, err)
			}
		}
	case AssertTraceOrder:
		if len(a.Cards) == 0 {
			return fmt.Errorf("assertions[%d]: cards list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Card == "" {
			return fmt.Errorf("assertions[%d]: card is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Segment == "" {
			return fmt.Errorf("assertions[%d]: segment is required for final_state", index)
		}
	case AssertCardOrder:
		if a.Segment == "" {
			return fmt.Errorf("assertions[%d]: segment is required for card_order", index)
		}
		if len(a.Cards) == 0 {
			return fmt.Errorf("assertions[%d]: cards list is required for card_order", index)
		}
	case AssertJournalCount:
		switch a.Outcome {
		case "", "applied", "declined", "rejected":
		default:
			return fmt.Errorf("assertions[%d]: unknown outcome %q for journal_count", index, a.Outcome)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
