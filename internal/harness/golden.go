package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rill/internal/trace"
)

// Snapshot is the golden record of one scenario run.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Timeline trace.Timeline `json:"timeline"`
}

// CanonicalValue implements trace.Canonical.
func (s Snapshot) CanonicalValue() any {
	entries := make([]any, len(s.Timeline))
	for i, e := range s.Timeline {
		entries[i] = e
	}
	return map[string]any{
		"scenario": s.Scenario,
		"timeline": entries,
	}
}

// Encode returns the canonical JSON of the snapshot.
func (s Snapshot) Encode() ([]byte, error) {
	return trace.MarshalCanonical(s)
}

// RunWithGolden runs a scenario and compares its timeline against the golden
// file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be built. A timeline that differs
// from the golden file fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file without
// running the scenario again.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot{Scenario: name, Timeline: result.Timeline}.Encode()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
