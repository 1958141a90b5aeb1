package store

import (
	"errors"

	"github.com/roach88/rill/internal/trace"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored harness run.
type Run struct {
	ID           string
	Seq          int64 // Assigned by WriteRun
	Scenario     string
	ScenarioHash string
	Pass         bool
	LiveContexts int
	Digest       string // Assigned by WriteRun
	Errors       []string
	Timeline     trace.Timeline // Empty in ListRuns results
}
