package store

import (
	"context"
	"fmt"
)

// DigestMismatchError reports a run whose stored events no longer hash to
// the digest written with it.
type DigestMismatchError struct {
	RunID    string
	Stored   string
	Computed string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("run %s: stored digest %s does not match events (computed %s)", e.RunID, e.Stored, e.Computed)
}

// VerifyRun recomputes the digest of a run's stored events and compares it
// with the digest written with the run.
func (s *Store) VerifyRun(ctx context.Context, id string) error {
	run, err := s.ReadRun(ctx, id)
	if err != nil {
		return fmt.Errorf("verify run: %w", err)
	}
	computed, err := run.Timeline.Digest()
	if err != nil {
		return fmt.Errorf("verify run %s: %w", id, err)
	}
	if computed != run.Digest {
		return &DigestMismatchError{RunID: id, Stored: run.Digest, Computed: computed}
	}
	return nil
}

// CompareRuns reports whether two stored runs recorded the same timeline.
// Equal digests mean byte-identical canonical timelines.
func (s *Store) CompareRuns(ctx context.Context, a, b string) (bool, error) {
	var da, db string
	for _, p := range []struct {
		id  string
		out *string
	}{{a, &da}, {b, &db}} {
		err := s.db.QueryRowContext(ctx, `SELECT digest FROM runs WHERE id = ?`, p.id).Scan(p.out)
		if err != nil {
			return false, fmt.Errorf("compare runs: read %s: %w", p.id, notFound(err))
		}
	}
	return da == db, nil
}
