package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrameData(intervalID, timeframe int64) FrameData {
	return FrameData{
		Frame: Frame{
			IntervalID:      intervalID,
			TimeframeWindow: timeframe,
			FrameJSON:       `{"nodes":[],"edges":[]}`,
			NodeCount:       2,
			EdgeCount:       1,
			BuildMetaJSON:   `{"version":"1.0.0"}`,
		},
		Edges: []Edge{
			{IntervalID: intervalID, SrcID: "ego", DstID: "alice", Type: "mutual", Weight: 1.0},
		},
		Communities: []Community{
			{IntervalID: intervalID, AccountID: "ego", CommunityID: 0},
			{IntervalID: intervalID, AccountID: "alice", CommunityID: 1},
		},
		Positions: []Position{
			{IntervalID: intervalID, AccountID: "ego", X: 0, Y: 0, Z: 0},
			{IntervalID: intervalID, AccountID: "alice", X: 12.5, Y: -3.25, Z: 4},
		},
	}
}

func TestStore_SaveFrame_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	frameID, err := s.SaveFrame(ctx, testFrameData(intervalID, 30))
	require.NoError(t, err)
	assert.Positive(t, frameID)

	f, err := s.GetFrame(ctx, intervalID, 30)
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[],"edges":[]}`, f.FrameJSON)
	assert.Equal(t, int64(2), f.NodeCount)
	assert.Equal(t, `{"version":"1.0.0"}`, f.BuildMetaJSON)

	positions, err := s.PositionsForInterval(ctx, intervalID)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.InDelta(t, 12.5, positions["alice"].X, 1e-9)
}

func TestStore_SaveFrame_RebuildReplacesDerivedRows(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	_, err := s.SaveFrame(ctx, testFrameData(intervalID, 30))
	require.NoError(t, err)

	rebuilt := testFrameData(intervalID, 30)
	rebuilt.Positions[1].X = 99
	rebuilt.Frame.NodeCount = 5

	_, err = s.SaveFrame(ctx, rebuilt)
	require.NoError(t, err)

	f, err := s.GetFrame(ctx, intervalID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.NodeCount)

	positions, err := s.PositionsForInterval(ctx, intervalID)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.InDelta(t, 99, positions["alice"].X, 1e-9)

	// The append-only history keeps both builds.
	history, err := s.PositionHistoryForAccount(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, PositionSourceFrameBuild, history[0].Source)
}

func TestStore_SaveFrame_OtherTimeframeSurvives(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	_, err := s.SaveFrame(ctx, testFrameData(intervalID, 7))
	require.NoError(t, err)

	_, err = s.SaveFrame(ctx, testFrameData(intervalID, 30))
	require.NoError(t, err)

	_, err = s.GetFrame(ctx, intervalID, 7)
	require.NoError(t, err)

	_, err = s.GetFrame(ctx, intervalID, 30)
	require.NoError(t, err)
}

func TestStore_LatestFrame(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestFrame(ctx, 30)
	assert.ErrorIs(t, err, ErrNotFound)

	first := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)
	second := seedInterval(t, s, testTime(time.Hour), testTime(2*time.Hour), nil, nil)

	_, err = s.SaveFrame(ctx, testFrameData(first, 30))
	require.NoError(t, err)

	_, err = s.SaveFrame(ctx, testFrameData(second, 30))
	require.NoError(t, err)

	latest, err := s.LatestFrame(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, second, latest.IntervalID)
}

func TestStore_ListFrames_OmitsPayload(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	_, err := s.SaveFrame(ctx, testFrameData(intervalID, 30))
	require.NoError(t, err)

	frames, err := s.ListFrames(ctx, 30, 10)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "", frames[0].FrameJSON)
	assert.Equal(t, int64(1), frames[0].EdgeCount)
}

func TestStore_ListTimelineFrames_PlaybackOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)
	second := seedInterval(t, s, testTime(time.Hour), testTime(2*time.Hour), nil, nil)

	// Build the newer interval first; playback order must still follow
	// interval time, not build time.
	_, err := s.SaveFrame(ctx, testFrameData(second, 30))
	require.NoError(t, err)

	_, err = s.SaveFrame(ctx, testFrameData(first, 30))
	require.NoError(t, err)

	frames, err := s.ListTimelineFrames(ctx, 30, 10)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, first, frames[0].IntervalID)
	assert.Equal(t, second, frames[1].IntervalID)
	assert.WithinDuration(t, testTime(time.Hour), frames[0].IntervalEndAt, 0)
}

func TestStore_CommunityIDsForAccounts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	_, err := s.SaveFrame(ctx, testFrameData(intervalID, 30))
	require.NoError(t, err)

	ids, err := s.CommunityIDsForAccounts(ctx, intervalID, []string{"alice", "ego", "stranger"})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, ids)

	none, err := s.CommunityIDsForAccounts(ctx, intervalID, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
