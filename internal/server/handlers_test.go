package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/orbit/pkg/graph"
)

func TestServer_RunsListAndGet(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var list []runView

	rec := do(t, fx.server, http.MethodGet, "/runs", "", &list)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, fx.runID, list[0].RunID)
	assert.Equal(t, "completed", list[0].Status)
	require.NotNil(t, list[0].FinishedAt)

	var single runView

	rec = do(t, fx.server, http.MethodGet, fmt.Sprintf("/runs/%d", fx.runID), "", &single)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fx.runID, single.RunID)
}

func TestServer_SnapshotsKindFilter(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var all []snapshotView

	rec := do(t, fx.server, http.MethodGet, "/snapshots", "", &all)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, all, 3)

	var followers []snapshotView

	rec = do(t, fx.server, http.MethodGet, "/snapshots?kind=followers", "", &followers)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, followers, 2)

	for _, snap := range followers {
		assert.Equal(t, "followers", snap.Kind)
	}
}

func TestServer_IntervalsAndEvents(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var intervals []intervalView

	rec := do(t, fx.server, http.MethodGet, "/intervals", "", &intervals)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, intervals, 1)
	assert.Equal(t, fx.intervalID, intervals[0].IntervalID)
	assert.Equal(t, int64(1), intervals[0].NewFollowersCount)
	assert.Equal(t, int64(0), intervals[0].LostFollowersCount)

	var events []eventView

	rec = do(t, fx.server, http.MethodGet, fmt.Sprintf("/intervals/%d/events?kind=new", fx.intervalID), "", &events)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events, 1)
	assert.Equal(t, "carol", events[0].AccountID)
	assert.Equal(t, "new", events[0].Kind)

	rec = do(t, fx.server, http.MethodGet, fmt.Sprintf("/intervals/%d/events?kind=lost", fx.intervalID), "", &events)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, events)
}

func TestServer_AccountsSearch(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var accounts []accountView

	rec := do(t, fx.server, http.MethodGet, "/accounts?search=ali", "", &accounts)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].Handle)
	assert.Equal(t, int64(3000), accounts[0].FollowersCount)
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var stats statsView

	rec := do(t, fx.server, http.MethodGet, "/stats", "", &stats)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(1), stats.CompletedRuns)
	assert.Equal(t, int64(4), stats.TotalAccounts)
	assert.Equal(t, int64(3), stats.TotalSnapshots)
	assert.Equal(t, int64(1), stats.TotalIntervals)
	require.NotNil(t, stats.LatestRun)
	require.NotNil(t, stats.LatestInterval)
	assert.Equal(t, fx.intervalID, stats.LatestInterval.IntervalID)
}

func TestServer_FrameLifecycle(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	// No frame yet: /graph falls back to an empty structure.
	var empty graph.Frame

	rec := do(t, fx.server, http.MethodGet, "/graph", "", &empty)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, empty.Nodes)

	var built frameView

	rec = do(t, fx.server, http.MethodPost, "/frames/build",
		fmt.Sprintf(`{"interval_id":%d,"timeframe_days":30,"ego_id":"ego"}`, fx.intervalID), &built)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fx.intervalID, built.IntervalID)
	assert.Equal(t, int64(30), built.TimeframeWindow)
	assert.Positive(t, built.NodeCount)

	var frame graph.Frame

	rec = do(t, fx.server, http.MethodGet, fmt.Sprintf("/frames/%d?timeframe_window=30", fx.intervalID), "", &frame)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fx.intervalID, frame.IntervalID)
	assert.NotEmpty(t, frame.Nodes)

	rec = do(t, fx.server, http.MethodGet, "/frames/latest?timeframe_window=30", "", &frame)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fx.intervalID, frame.IntervalID)

	var list []frameView

	rec = do(t, fx.server, http.MethodGet, "/frames?timeframe_window=30", "", &list)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 1)

	var timeline []timelineFrameView

	rec = do(t, fx.server, http.MethodGet, "/timeline/frames?timeframe_window=30", "", &timeline)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, timeline, 1)
	assert.Equal(t, fx.intervalID, timeline[0].IntervalID)
	assert.False(t, timeline[0].IntervalEndAt.IsZero())

	var interp graph.Interpolation

	target := fmt.Sprintf(
		"/timeline/interpolate?from_interval_id=%d&to_interval_id=%d&timeframe_window=30&progress=0.5",
		fx.intervalID, fx.intervalID)
	rec = do(t, fx.server, http.MethodGet, target, "", &interp)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.5, interp.Progress, 1e-9)
	assert.Len(t, interp.Nodes, len(frame.Nodes))

	var history map[string]any

	rec = do(t, fx.server, http.MethodGet, "/positions/history?account_id=ego", "", &history)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ego", history["account_id"])
	assert.NotEmpty(t, history["entries"])
}

func TestServer_FrameBuildUnknownAction(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	rec := do(t, fx.server, http.MethodPost, "/frames/rebuild", `{}`, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PostsEmpty(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	rec := do(t, fx.server, http.MethodGet, "/posts?timeframe_window=30", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
