package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// LedgerSnapshot captures everything a scenario run produced.
// Ids are replaced by aliases so snapshots are stable across id schemes.
type LedgerSnapshot struct {
	Scenario string            `json:"scenario"`
	Trace    []TraceEvent      `json:"trace"`
	Entries  []EntryState      `json:"entries"`
	Stock    map[string]string `json:"stock"`
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(name string, result *Result) LedgerSnapshot {
	return LedgerSnapshot{
		Scenario: name,
		Trace:    result.Trace,
		Entries:  result.Entries,
		Stock:    result.Stock,
	}
}

// MarshalSnapshot encodes the snapshot of result in golden file form.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return json.Marshal(Snapshot(name, result))
}

// RunWithGolden executes a scenario and compares the ledger against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the ledger doesn't match the golden file.
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

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
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
