package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/internal/store"
	"github.com/roach88/rill/internal/trace"
)

// seedStore writes two runs of "zip" and one of "take" and returns the
// database path.
func seedStore(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs := []*store.Run{
		{ID: "run-a", Scenario: "zip", ScenarioHash: "h1", Pass: true, LiveContexts: 1,
			Timeline: trace.Timeline{{At: 0, Kind: trace.KindValue, Value: 11}, {At: 0, Kind: trace.KindCompleted}}},
		{ID: "run-b", Scenario: "take", ScenarioHash: "h2", Pass: false, LiveContexts: 2,
			Errors:   []string{"assertion failed"},
			Timeline: trace.Timeline{{At: 3, Kind: trace.KindFailure, Error: "boom"}}},
		{ID: "run-c", Scenario: "zip", ScenarioHash: "h1", Pass: true, LiveContexts: 1,
			Timeline: trace.Timeline{{At: 0, Kind: trace.KindValue, Value: 12}, {At: 0, Kind: trace.KindCompleted}}},
	}
	for _, r := range runs {
		inserted, err := st.WriteRun(context.Background(), r)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	return dbPath
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] run-a PASS zip")
	assert.Contains(t, out, "[2] run-b FAIL take")
	assert.Contains(t, out, "[3] run-c PASS zip")
}

func TestTraceListRunsByScenarioJSON(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--scenario", "zip")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   TraceList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Runs, 2)
	assert.Equal(t, "run-a", resp.Data.Runs[0].ID)
	assert.Equal(t, "run-c", resp.Data.Runs[1].ID)
	assert.Equal(t, int64(3), resp.Data.Runs[1].Seq)
}

func TestTraceListEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")
}

func TestTraceOneRun(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "run-b")
	require.NoError(t, err)
	assert.Contains(t, out, "Run: run-b")
	assert.Contains(t, out, "Status: FAIL")
	assert.Contains(t, out, `t=3 failure "boom"`)
	assert.Contains(t, out, "assertion failed")
	assert.Contains(t, out, "Live contexts: 2")
	assert.Contains(t, out, "(verified)")
}

func TestTraceLatestRunJSON(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--scenario", "zip", "--latest")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-c", resp.Data.Run.ID)
	assert.True(t, resp.Data.Verified)
	assert.Equal(t, "h1", resp.Data.ScenarioHash)
	assert.Equal(t, []int64{12}, resp.Data.Timeline.Values())
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}

func TestTraceFlagConflicts(t *testing.T) {
	dbPath := seedStore(t)

	_, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--latest requires --scenario")

	_, _, err = execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--latest", "--scenario", "zip", "--run", "run-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestTraceDetectsTamperedEvents(t *testing.T) {
	dbPath := seedStore(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE events SET value = 99 WHERE run_id = 'run-a' AND idx = 0`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--run", "run-a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Verified)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDigestMismatch, resp.Error.Code)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}

func TestTraceCompareIdentical(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "run-a", "--compare", "run-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Compared with: run-a (identical)")
}

func TestTraceCompareDiffersJSON(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--scenario", "zip", "--latest", "--compare", "run-a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.True(t, resp.Data.Verified)
	require.NotNil(t, resp.Data.Comparison)
	assert.Equal(t, "run-a", resp.Data.Comparison.RunID)
	assert.False(t, resp.Data.Comparison.Identical)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunsDiffer, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "run run-c and run run-a")
}

func TestTraceCompareUnknownRun(t *testing.T) {
	dbPath := seedStore(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "run-a", "--compare", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}

func TestTraceCompareRequiresSelectedRun(t *testing.T) {
	dbPath := seedStore(t)

	_, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--compare", "run-a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--compare requires --run or --latest")
}
