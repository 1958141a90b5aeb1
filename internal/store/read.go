package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rill/internal/trace"
)

const runColumns = `id, seq, scenario, scenario_hash, pass, live_contexts, digest, errors`

// ReadRun returns a run with its timeline.
// Returns an error wrapping ErrRunNotFound if the ID is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	run.Timeline, err = s.ReadTimeline(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns stored runs without their timelines, ordered by seq.
// An empty scenario lists every run.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, scenario string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently written run of a scenario, with its
// timeline.
func (s *Store) LatestRun(ctx context.Context, scenario string) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE scenario = ?
		ORDER BY seq DESC
		LIMIT 1
	`, scenario).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run of %s: %w", scenario, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run of %s: %w", scenario, err)
	}
	return s.ReadRun(ctx, id)
}

// ReadTimeline returns the stored events of a run in timeline order.
func (s *Store) ReadTimeline(ctx context.Context, runID string) (trace.Timeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, kind, value, error
		FROM events
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	tl := trace.Timeline{}
	for rows.Next() {
		var (
			e      trace.Entry
			value  sql.NullInt64
			errMsg sql.NullString
		)
		if err := rows.Scan(&e.At, &e.Kind, &value, &errMsg); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Value = value.Int64
		e.Error = errMsg.String
		tl = append(tl, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return tl, nil
}

// notFound maps sql.ErrNoRows to ErrRunNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		errsJSON string
	)
	if err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.Scenario,
		&run.ScenarioHash,
		&run.Pass,
		&run.LiveContexts,
		&run.Digest,
		&errsJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	errs, err := unmarshalErrors(errsJSON)
	if err != nil {
		return Run{}, err
	}
	run.Errors = errs
	return run, nil
}
