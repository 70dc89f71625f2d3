package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult aggregates scenario outcomes across a directory.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure describes one failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// DiscoverScenarios returns the scenario files directly under dir,
// sorted for a stable run order. Both .yaml and .yml are recognized.
func DiscoverScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario under dir.
//
// Load and execution errors count as failures alongside assertion
// failures; one broken scenario never stops the rest of the suite.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := DiscoverScenarios(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: filepath.Base(path),
				Path:     path,
				Errors:   []string{err.Error()},
			})
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   []string{err.Error()},
			})
			continue
		}
		if !result.Pass {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   result.Errors,
			})
			continue
		}

		suite.Passed++
	}
	return suite, nil
}
