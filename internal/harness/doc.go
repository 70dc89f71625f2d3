// Package harness provides conformance testing for the star engine.
//
// A scenario synthesizes a grid page, runs a real engine over it, drives
// a toggle flow through the engine's public API, and validates the
// resulting trace, the final star state, and the final card order.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	profile: profiles/two_stars.cue
//	page:
//	  segments:
//	    - name: Tools
//	      cards: 5
//	seed:
//	  user: guest
//	  starred:
//	    tools: [card_2]
//	confirm: [true]
//	token_prefix: scenario_name
//	flow:
//	  - toggle: card_3
//	    expect:
//	      status: starred
//	      evicted: card_2
//	assertions:
//	  - type: final_state
//	    segment: tools
//	    starred: [card_3]
//	  - type: card_order
//	    segment: tools
//	    cards: [card_3, card_1, card_2, card_4, card_5]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: a toggle of the card appears with matching result
//   - trace_order: cards were first toggled in the given order
//   - trace_count: the card was toggled exactly N times
//   - final_state: a segment's star order matches exactly, oldest first
//   - card_order: a segment's settled card order matches exactly
//   - journal_count: exactly N journal rows match the outcome filter
//
// # Deterministic Testing
//
// Every run gets a fresh in-memory store, an in-memory journal, fixed
// request tokens, and fixed timestamps, so the same scenario always
// produces the same trace. Golden files under testdata/golden pin the
// traces; regenerate them with:
//
//	go test ./internal/harness -update
//
// # Usage
//
// Load and run one scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/capacity.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
//
// Or run a whole directory with RunSuite, which is what the CLI's test
// command does.
package harness
