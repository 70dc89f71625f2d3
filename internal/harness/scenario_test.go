package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes scenario YAML into dir and returns its path.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()

	content := `
name: round_trip
description: "Star and unstar the same card"
token_prefix: round_trip
page:
  segments:
    - name: Tools
      cards:
        - id: fin_calc
          url: https://tools.example/fin
          job: finance
        - id: sip_calc
flow:
  - toggle: fin_calc
    expect:
      status: starred
  - toggle: fin_calc
    expect:
      status: unstarred
assertions:
  - type: trace_count
    card: fin_calc
    count: 2
  - type: final_state
    segment: tools
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "round_trip", scenario.Name)
	assert.Equal(t, "Star and unstar the same card", scenario.Description)
	assert.Equal(t, "round_trip", scenario.TokenPrefix)
	require.Len(t, scenario.Page.Segments, 1)
	assert.Equal(t, "Tools", scenario.Page.Segments[0].Name)
	require.Len(t, scenario.Page.Segments[0].Cards, 2)
	assert.Equal(t, "fin_calc", scenario.Page.Segments[0].Cards[0].ID)
	assert.Equal(t, "https://tools.example/fin", scenario.Page.Segments[0].Cards[0].URL)
	assert.Equal(t, "finance", scenario.Page.Segments[0].Cards[0].Job)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, "fin_calc", scenario.Flow[0].Toggle)
	require.NotNil(t, scenario.Flow[0].Expect)
	assert.Equal(t, "starred", scenario.Flow[0].Expect.Status)
	assert.Len(t, scenario.Assertions, 2)
}

func TestLoadScenario_CardCountForm(t *testing.T) {
	dir := t.TempDir()

	content := `
name: count_form
description: "Bare count expands to anonymous cards"
page:
  segments:
    - name: Tools
      cards: 5
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	require.Len(t, scenario.Page.Segments[0].Cards, 5)
	for _, card := range scenario.Page.Segments[0].Cards {
		assert.Empty(t, card.ID)
		assert.Empty(t, card.URL)
		assert.Empty(t, card.Job)
	}
}

func TestLoadScenario_NegativeCardCount(t *testing.T) {
	dir := t.TempDir()

	content := `
name: bad_count
description: "Negative count is rejected"
page:
  segments:
    - name: Tools
      cards: -2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count must be non-negative")
}

func TestLoadScenario_CardsWrongKind(t *testing.T) {
	dir := t.TempDir()

	content := `
name: bad_cards
description: "Mapping is neither a count nor a list"
page:
  segments:
    - name: Tools
      cards:
        id: fin_calc
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a count or a list")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading scenario file")
}

func TestLoadScenario_MissingName(t *testing.T) {
	dir := t.TempDir()

	content := `
description: "Missing name"
page:
  segments:
    - name: Tools
      cards: 2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_MissingDescription(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
page:
  segments:
    - name: Tools
      cards: 2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description is required")
}

func TestLoadScenario_MissingPage(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "No page declared"
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page.segments is required")
}

func TestLoadScenario_MissingAssertions(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "No assertions"
page:
  segments:
    - name: Tools
      cards: 2
assertions: []
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions list is required")
}

func TestLoadScenario_EmptyFlowAllowed(t *testing.T) {
	// Hydration scenarios seed state and assert on it without toggling.
	dir := t.TempDir()

	content := `
name: hydrate_only
description: "Seeded state, no toggles"
page:
  segments:
    - name: Tools
      cards: 3
seed:
  starred:
    tools: [card_2]
assertions:
  - type: final_state
    segment: tools
    starred: [card_2]
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Empty(t, scenario.Flow)
	assert.Equal(t, []string{"card_2"}, scenario.Seed.Starred["tools"])
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Broken"
page:
  segments: [unclosed
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing scenario YAML")
}

func TestLoadScenario_ProfileNotFound(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Profile overlay does not exist"
profile: missing.cue
page:
  segments:
    - name: Tools
      cards: 2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile file not found")
}

func TestLoadScenario_ProfileResolvedRelative(t *testing.T) {
	dir := t.TempDir()
	profilesDir := filepath.Join(dir, "profiles")
	require.NoError(t, os.MkdirAll(profilesDir, 0755))
	overlayPath := filepath.Join(profilesDir, "two.cue")
	require.NoError(t, os.WriteFile(overlayPath, []byte("maxStars: 2\n"), 0644))

	content := `
name: test
description: "Relative profile resolves against the scenario file"
profile: profiles/two.cue
page:
  segments:
    - name: Tools
      cards: 2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, overlayPath, scenario.Profile)
}

func TestLoadScenario_AbsoluteProfileKept(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "two.cue")
	require.NoError(t, os.WriteFile(overlayPath, []byte("maxStars: 2\n"), 0644))

	content := `
name: test
description: "Absolute profile path stays as written"
profile: ` + overlayPath + `
page:
  segments:
    - name: Tools
      cards: 2
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, overlayPath, scenario.Profile)
}

func TestLoadScenario_FlowMissingToggle(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Flow step without a card"
page:
  segments:
    - name: Tools
      cards: 2
flow:
  - expect:
      status: starred
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow[0]: toggle is required")
}

func TestLoadScenario_ExpectUnknownStatus(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Unknown expect status"
page:
  segments:
    - name: Tools
      cards: 2
flow:
  - toggle: card_1
    expect:
      status: maybe
assertions:
  - type: trace_count
    card: card_1
    count: 1
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestLoadScenario_ExpectEmpty(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Empty expect clause"
page:
  segments:
    - name: Tools
      cards: 2
flow:
  - toggle: card_1
    expect: {}
assertions:
  - type: trace_count
    card: card_1
    count: 1
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status or evicted is required")
}

func TestLoadScenario_ConflictInvalidSlot(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Conflict on an unknown slot"
page:
  segments:
    - name: Tools
      cards: 2
conflict:
  slot: cookie
  value: bob
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict.slot must be")
}

func TestLoadScenario_ConflictNeedsValueOrRemoved(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Conflict without a new value"
page:
  segments:
    - name: Tools
      cards: 2
conflict:
  slot: cache
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict: value or removed is required")
}

func TestLoadScenario_ConflictRemoved(t *testing.T) {
	dir := t.TempDir()

	content := `
name: test
description: "Logout conflict removes the slot"
page:
  segments:
    - name: Tools
      cards: 2
conflict:
  slot: main_site
  removed: true
assertions:
  - type: trace_count
    card: card_1
    count: 0
`
	path := writeScenario(t, dir, content)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	require.NotNil(t, scenario.Conflict)
	assert.Equal(t, SlotMainSite, scenario.Conflict.Slot)
	assert.True(t, scenario.Conflict.Removed)
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	// Typos in field names should fail loudly, not silently skip.
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "typo_assertion_singular",
			yaml: `
name: test
description: Typo test
page:
  segments:
    - name: Tools
      cards: 2
assertion:
  - type: trace_count
    card: card_1
    count: 0
assertions:
  - type: trace_count
    card: card_1
    count: 0
`,
			wantErr: "field assertion not found",
		},
		{
			name: "typo_in_flow_step",
			yaml: `
name: test
description: Typo test
page:
  segments:
    - name: Tools
      cards: 2
flow:
  - togle: card_1
assertions:
  - type: trace_count
    card: card_1
    count: 0
`,
			wantErr: "field togle not found",
		},
		{
			name: "unknown_top_level_field",
			yaml: `
name: test
description: Typo test
page:
  segments:
    - name: Tools
      cards: 2
unknown_field: value
assertions:
  - type: trace_count
    card: card_1
    count: 0
`,
			wantErr: "field unknown_field not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.yaml)

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AssertionTypes(t *testing.T) {
	tests := []struct {
		name          string
		assertionYAML string
		wantErr       string
	}{
		{
			name: "trace_contains_valid",
			assertionYAML: `
  - type: trace_contains
    card: card_1
    expect:
      status: starred
`,
			wantErr: "",
		},
		{
			name: "trace_contains_missing_card",
			assertionYAML: `
  - type: trace_contains
    expect:
      status: starred
`,
			wantErr: "card is required for trace_contains",
		},
		{
			name: "trace_contains_bad_expect",
			assertionYAML: `
  - type: trace_contains
    card: card_1
    expect:
      status: bogus
`,
			wantErr: "unknown status",
		},
		{
			name: "trace_order_valid",
			assertionYAML: `
  - type: trace_order
    cards: [card_2, card_1]
`,
			wantErr: "",
		},
		{
			name: "trace_order_missing_cards",
			assertionYAML: `
  - type: trace_order
`,
			wantErr: "cards list is required for trace_order",
		},
		{
			name: "trace_count_valid",
			assertionYAML: `
  - type: trace_count
    card: card_1
    count: 2
`,
			wantErr: "",
		},
		{
			name: "trace_count_zero_allowed",
			assertionYAML: `
  - type: trace_count
    card: card_1
    count: 0
`,
			wantErr: "",
		},
		{
			name: "trace_count_negative",
			assertionYAML: `
  - type: trace_count
    card: card_1
    count: -1
`,
			wantErr: "count must be non-negative for trace_count",
		},
		{
			name: "trace_count_missing_card",
			assertionYAML: `
  - type: trace_count
    count: 2
`,
			wantErr: "card is required for trace_count",
		},
		{
			name: "final_state_valid",
			assertionYAML: `
  - type: final_state
    segment: tools
    starred: [card_1]
`,
			wantErr: "",
		},
		{
			name: "final_state_empty_starred",
			assertionYAML: `
  - type: final_state
    segment: tools
`,
			wantErr: "",
		},
		{
			name: "final_state_missing_segment",
			assertionYAML: `
  - type: final_state
    starred: [card_1]
`,
			wantErr: "segment is required for final_state",
		},
		{
			name: "card_order_valid",
			assertionYAML: `
  - type: card_order
    segment: tools
    cards: [card_2, card_1]
`,
			wantErr: "",
		},
		{
			name: "card_order_missing_segment",
			assertionYAML: `
  - type: card_order
    cards: [card_2, card_1]
`,
			wantErr: "segment is required for card_order",
		},
		{
			name: "card_order_missing_cards",
			assertionYAML: `
  - type: card_order
    segment: tools
`,
			wantErr: "cards list is required for card_order",
		},
		{
			name: "journal_count_valid",
			assertionYAML: `
  - type: journal_count
    outcome: applied
    count: 2
`,
			wantErr: "",
		},
		{
			name: "journal_count_any_outcome",
			assertionYAML: `
  - type: journal_count
    count: 0
`,
			wantErr: "",
		},
		{
			name: "journal_count_unknown_outcome",
			assertionYAML: `
  - type: journal_count
    outcome: vanished
    count: 1
`,
			wantErr: "unknown outcome",
		},
		{
			name: "journal_count_negative",
			assertionYAML: `
  - type: journal_count
    count: -1
`,
			wantErr: "count must be non-negative for journal_count",
		},
		{
			name: "unknown_type",
			assertionYAML: `
  - type: state_matches
    segment: tools
`,
			wantErr: "unknown assertion type",
		},
		{
			name: "missing_type",
			assertionYAML: `
  - card: card_1
`,
			wantErr: "type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
name: test
description: "Assertion validation"
page:
  segments:
    - name: Tools
      cards: 3
flow:
  - toggle: card_1
assertions:
` + tt.assertionYAML
			path := writeScenario(t, t.TempDir(), content)

			_, err := LoadScenario(path)

			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "final_state", AssertFinalState)
	assert.Equal(t, "card_order", AssertCardOrder)
	assert.Equal(t, "journal_count", AssertJournalCount)
}
