package cli

import (
	"context"
	"fmt"

	"github.com/roach88/rill/internal/harness"
	"github.com/roach88/rill/internal/store"
)

// saveRun writes one scenario result to the run store and returns the
// stored run with its assigned seq and digest.
func saveRun(ctx context.Context, st *store.Store, ids store.IDGenerator, scenario *harness.Scenario, result *harness.Result) (*store.Run, error) {
	hash, err := scenario.Hash()
	if err != nil {
		return nil, err
	}
	run := &store.Run{
		ID:           ids.Generate(),
		Scenario:     scenario.Name,
		ScenarioHash: hash,
		Pass:         result.Pass,
		LiveContexts: result.LiveContexts,
		Errors:       result.Errors,
		Timeline:     result.Timeline,
	}
	inserted, err := st.WriteRun(ctx, run)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("run ID %s already stored", run.ID)
	}
	return run, nil
}

// idGenerator returns gen, or UUIDv7Generator if gen is nil.
func idGenerator(gen store.IDGenerator) store.IDGenerator {
	if gen == nil {
		return store.UUIDv7Generator{}
	}
	return gen
}
