package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rill/internal/trace"
)

// WriteRun appends a run and its timeline to the store in one transaction.
// It assigns run.Seq (one past the highest stored seq) and run.Digest.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing a run whose ID is
// already stored leaves the store untouched and returns inserted=false.
func (s *Store) WriteRun(ctx context.Context, run *Run) (inserted bool, err error) {
	digest, err := run.Timeline.Digest()
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	errsJSON, err := marshalErrors(run.Errors)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return false, fmt.Errorf("write run: next seq: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, scenario, scenario_hash, pass, live_contexts, digest, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		seq,
		run.Scenario,
		run.ScenarioHash,
		run.Pass,
		run.LiveContexts,
		digest,
		errsJSON,
	)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := writeEvents(ctx, tx, run.ID, run.Timeline); err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}

	run.Seq = seq
	run.Digest = digest
	return true, nil
}

// writeEvents inserts the timeline of a run, one row per entry.
func writeEvents(ctx context.Context, tx *sql.Tx, runID string, tl trace.Timeline) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, idx, at, kind, value, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, e := range tl {
		var value sql.NullInt64
		var errMsg sql.NullString
		switch e.Kind {
		case trace.KindValue:
			value = sql.NullInt64{Int64: e.Value, Valid: true}
		case trace.KindFailure:
			errMsg = sql.NullString{String: e.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, i, e.At, e.Kind, value, errMsg); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	return nil
}

// DeleteRun removes a run and, by cascade, its events. Deleting an unknown
// run is not an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
