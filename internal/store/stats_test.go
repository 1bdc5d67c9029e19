package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Stats_EmptyDatabase(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalRuns)
	assert.Zero(t, stats.TotalAccounts)
	assert.Zero(t, stats.TotalFrames)
	assert.Nil(t, stats.LatestRun)
	assert.Nil(t, stats.LatestSnapshot)
	assert.Nil(t, stats.LatestInterval)
}

func TestStore_Stats_Populated(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	failedID, err := s.CreateRun(ctx, testTime(0), "v1", "{}")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, failedID, RunStatusFailed, "upstream gave 500"))

	runID, err := s.CreateRun(ctx, testTime(time.Hour), "v1", "{}")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, runID, RunStatusCompleted, ""))

	require.NoError(t, s.UpsertAccount(ctx, testAccount("a1")))
	require.NoError(t, s.UpsertAccount(ctx, testAccount("a2")))

	seedSnapshot(t, s, runID, KindFollowers, testTime(time.Hour), []string{"a1"})
	latestSnap := seedSnapshot(t, s, runID, KindFollowing, testTime(2*time.Hour), []string{"a2"})

	intervalID := seedInterval(t, s, testTime(0), testTime(2*time.Hour), []string{"a1"}, nil)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.CompletedRuns)
	assert.Equal(t, int64(2), stats.TotalAccounts)
	assert.Equal(t, int64(2), stats.TotalSnapshots)
	assert.Equal(t, int64(1), stats.TotalIntervals)

	require.NotNil(t, stats.LatestRun)
	assert.Equal(t, runID, stats.LatestRun.ID)

	require.NotNil(t, stats.LatestSnapshot)
	assert.Equal(t, latestSnap, stats.LatestSnapshot.ID)

	require.NotNil(t, stats.LatestInterval)
	assert.Equal(t, intervalID, stats.LatestInterval.ID)
}
