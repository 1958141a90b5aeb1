package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rill/internal/trace"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a passing run with a short timeline.
func createTestRun(id, scenario string) *Run {
	return &Run{
		ID:           id,
		Scenario:     scenario,
		ScenarioHash: "test-hash",
		Pass:         true,
		LiveContexts: 1,
		Errors:       []string{},
		Timeline: trace.Timeline{
			{At: 1, Kind: trace.KindValue, Value: 7},
			{At: 2, Kind: trace.KindValue, Value: 0},
			{At: 2, Kind: trace.KindCompleted},
		},
	}
}
