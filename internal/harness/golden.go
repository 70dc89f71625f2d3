package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures a scenario execution for golden comparison.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	User         string              `json:"user"`
	Source       string              `json:"source"`
	Trace        []TraceEvent        `json:"trace"`
	Starred      map[string][]string `json:"starred"`
	Order        map[string][]string `json:"order"`
}

// marshalSnapshot renders the snapshot as stable, readable JSON: map
// keys sorted, two-space indent, HTML escaping off so URLs and labels
// read verbatim.
func marshalSnapshot(snapshot TraceSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("marshaling trace snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the outcome against a
// golden file under testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected traces, final
// star state, and settled card order.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-computed result against the golden
// file for scenarioName. Useful when a test has run the scenario itself
// and still wants the golden pin.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		User:         result.User,
		Source:       result.Source,
		Trace:        result.Trace,
		Starred:      result.Starred,
		Order:        result.Order,
	}
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
