package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/internal/trace"
)

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "repeat_take")
	_, err := s.WriteRun(ctx, run)
	require.NoError(t, err)

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, *run, got)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestReadTimeline_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "s")
	run.Timeline = trace.Timeline{}
	_, err := s.WriteRun(ctx, run)
	require.NoError(t, err)

	tl, err := s.ReadTimeline(ctx, "run-1")
	require.NoError(t, err)
	assert.NotNil(t, tl)
	assert.Empty(t, tl)
}

func TestListRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// IDs sort opposite to write order; seq decides.
	for _, r := range []struct{ id, scenario string }{
		{"c", "alpha"},
		{"b", "beta"},
		{"a", "alpha"},
	} {
		_, err := s.WriteRun(ctx, createTestRun(r.id, r.scenario))
		require.NoError(t, err)
	}

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Nil(t, all[0].Timeline, "listing does not load timelines")

	alpha, err := s.ListRuns(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	assert.Equal(t, "c", alpha[0].ID)
	assert.Equal(t, "a", alpha[1].ID)

	none, err := s.ListRuns(ctx, "gamma")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, createTestRun("first", "s"))
	require.NoError(t, err)
	second := createTestRun("second", "s")
	second.Timeline = second.Timeline[:1]
	_, err = s.WriteRun(ctx, second)
	require.NoError(t, err)

	latest, err := s.LatestRun(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "second", latest.ID)
	assert.Len(t, latest.Timeline, 1)

	_, err = s.LatestRun(ctx, "unknown")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
