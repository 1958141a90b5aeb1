// Package store provides SQLite-backed storage for harness runs.
//
// Each run of a scenario is appended to the log with:
//   - Runs: scenario name and hash, pass/fail, live contexts, errors and the
//     content digest of the recorded timeline
//   - Events: the timeline entries of a run, one row per delivered event
//
// # Ordering
//
// Runs are ordered by seq INTEGER, a logical counter assigned on write, never
// by timestamps. Queries use ORDER BY seq ASC, id ASC COLLATE BINARY so that
// results are identical across reads.
//
// # Integrity
//
// The digest column holds trace.Timeline.Digest of the events written with
// the run. VerifyRun recomputes it from the stored events.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
