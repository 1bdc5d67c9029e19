package frames

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/pkg/graph"
)

// baseTime anchors every fixture instant.
var baseTime = time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "frames.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *store.Store
	builder    *Builder
	intervalID int64
	runID      int64
	endSnapID  int64
}

// seedNetwork stores a small network: the ego, a mutual, a plain
// follower, a follower who arrived this interval, one reply toward the
// ego and a post shared by two engagers.
func seedNetwork(t *testing.T) fixture {
	t.Helper()

	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertAccounts(ctx, []store.Account{
		{ID: "ego", Handle: "ego", Name: "Ego", FollowersCount: 5000, LastSeenAt: baseTime},
		{ID: "alice", Handle: "alice", Name: "Alice", FollowersCount: 3000, LastSeenAt: baseTime},
		{ID: "bob", Handle: "bob", Name: "Bob", FollowersCount: 1500, LastSeenAt: baseTime},
		{ID: "carol", Handle: "carol", Name: "Carol", FollowersCount: 800, LastSeenAt: baseTime},
	})
	require.NoError(t, err)

	runID, err := s.CreateRun(ctx, baseTime, "1.0.0", "{}")
	require.NoError(t, err)

	first := addSnapshot(t, s, runID, store.KindFollowers, baseTime, []string{"alice", "bob"})
	second := addSnapshot(t, s, runID, store.KindFollowers, baseTime.Add(time.Hour), []string{"alice", "bob", "carol"})
	addSnapshot(t, s, runID, store.KindFollowing, baseTime, []string{"alice"})

	intervalID, err := s.InsertInterval(ctx, store.Interval{
		SnapshotStartID: first,
		SnapshotEndID:   second,
		StartAt:         baseTime,
		EndAt:           baseTime.Add(time.Hour),
	}, []string{"carol"}, nil)
	require.NoError(t, err)

	err = s.InsertInteractionEvents(ctx, []store.InteractionEvent{
		{IntervalID: intervalID, CreatedAt: baseTime.Add(time.Hour), SrcID: "bob", DstID: "ego", Type: "reply", PostID: "p1"},
	})
	require.NoError(t, err)

	err = s.InsertPostEngagers(ctx, []store.PostEngager{
		{IntervalID: intervalID, PostID: "p1", AccountID: "alice", Type: "reply"},
		{IntervalID: intervalID, PostID: "p1", AccountID: "carol", Type: "like"},
	})
	require.NoError(t, err)

	return fixture{
		store:      s,
		builder:    NewBuilder(s, discardLogger()),
		intervalID: intervalID,
		runID:      runID,
		endSnapID:  second,
	}
}

func addSnapshot(t *testing.T, s *store.Store, runID int64, kind string, at time.Time, ids []string) int64 {
	t.Helper()

	ctx := context.Background()

	snapID, err := s.CreateSnapshot(ctx, runID, kind, at)
	require.NoError(t, err)

	members := make([]store.SnapshotMember, len(ids))
	for i, id := range ids {
		members[i] = store.SnapshotMember{AccountID: id, FollowPosition: int64(i)}
	}

	err = s.AddSnapshotMembers(ctx, snapID, kind, members)
	require.NoError(t, err)

	err = s.SetSnapshotAccountCount(ctx, snapID, int64(len(ids)))
	require.NoError(t, err)

	return snapID
}

// addInterval appends a follow-up interval ending an hour after the
// fixture's, with no membership change.
func addInterval(t *testing.T, fx fixture) int64 {
	t.Helper()

	ctx := context.Background()

	third := addSnapshot(t, fx.store, fx.runID, store.KindFollowers,
		baseTime.Add(2*time.Hour), []string{"alice", "bob", "carol"})

	id, err := fx.store.InsertInterval(ctx, store.Interval{
		SnapshotStartID: fx.endSnapID,
		SnapshotEndID:   third,
		StartAt:         baseTime.Add(time.Hour),
		EndAt:           baseTime.Add(2 * time.Hour),
	}, nil, nil)
	require.NoError(t, err)

	return id
}

func findNode(t *testing.T, nodes []graph.Node, id string) graph.Node {
	t.Helper()

	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}

	t.Fatalf("node %s not in frame", id)

	return graph.Node{}
}

func TestBuilder_Build_PersistsFrameAndDerivedRows(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	ctx := context.Background()

	res, err := fx.builder.Build(ctx, BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	assert.Positive(t, res.Row.ID)
	assert.Equal(t, fx.intervalID, res.Row.IntervalID)
	assert.Equal(t, int64(30), res.Row.TimeframeWindow)
	assert.Equal(t, int64(4), res.Row.NodeCount)
	assert.Equal(t, int64(8), res.Row.EdgeCount)
	assert.False(t, res.Row.CreatedAt.IsZero())
	assert.Contains(t, res.Row.BuildMetaJSON, `"version":"1.0.0"`)

	require.NotNil(t, res.Frame)
	assert.Equal(t, "ego", res.Frame.EgoID)
	assert.Equal(t, 4, res.Frame.Stats.NodeCount)
	assert.Equal(t, 8, res.Frame.Stats.EdgeCount)
	assert.Equal(t, 1, res.Frame.Stats.NewFollowers)

	ego := findNode(t, res.Frame.Nodes, "ego")
	assert.True(t, ego.IsEgo)
	assert.Zero(t, ego.X)
	assert.Zero(t, ego.Y)
	assert.Zero(t, ego.Z)

	carol := findNode(t, res.Frame.Nodes, "carol")
	assert.True(t, carol.IsNew)

	var mutual int

	for _, e := range res.Frame.Edges {
		if e.Type == "mutual" {
			mutual++

			assert.Equal(t, "ego", e.Source)
			assert.Equal(t, "alice", e.Target)
		}
	}

	assert.Equal(t, 1, mutual)

	positions, err := fx.store.PositionsForInterval(ctx, fx.intervalID)
	require.NoError(t, err)
	assert.Len(t, positions, 4)

	history, err := fx.store.PositionHistoryForAccount(ctx, "carol", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.PositionSourceFrameBuild, history[0].Source)

	egoCommunity, err := fx.store.CommunityIDsForAccounts(ctx, fx.intervalID, []string{"ego"})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, egoCommunity)
}

func TestBuilder_Build_LatestIntervalWhenUnspecified(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	second := addInterval(t, fx)

	res, err := fx.builder.Build(context.Background(), BuildRequest{TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	assert.Equal(t, second, res.Row.IntervalID)
}

func TestBuilder_Build_UnknownIntervalFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	b := NewBuilder(s, discardLogger())
	ctx := context.Background()

	_, err := b.Build(ctx, BuildRequest{IntervalID: 999, TimeframeDays: 30})
	assert.ErrorIs(t, err, store.ErrNotFound)

	// No intervals at all: the latest lookup fails the same way.
	_, err = b.Build(ctx, BuildRequest{TimeframeDays: 30})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuilder_Build_NoMembersYieldsEmptyFrame(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	b := NewBuilder(s, discardLogger())
	ctx := context.Background()

	intervalID, err := s.InsertInterval(ctx, store.Interval{
		SnapshotStartID: 1,
		SnapshotEndID:   2,
		StartAt:         baseTime,
		EndAt:           baseTime.Add(time.Hour),
	}, nil, nil)
	require.NoError(t, err)

	res, err := b.Build(ctx, BuildRequest{IntervalID: intervalID, TimeframeDays: 30})
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Row.NodeCount)
	assert.Equal(t, int64(0), res.Row.EdgeCount)
	assert.Empty(t, res.Frame.Nodes)
	assert.NotNil(t, res.Frame.Nodes)
	assert.Equal(t, intervalID, res.Frame.IntervalID)
	assert.Equal(t, baseTime.Add(time.Hour).Format(time.RFC3339), res.Frame.Timestamp)
}

func TestBuilder_Build_RebuildReproducesPayload(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	ctx := context.Background()

	req := BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"}

	first, err := fx.builder.Build(ctx, req)
	require.NoError(t, err)

	second, err := fx.builder.Build(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Row.FrameJSON, second.Row.FrameJSON)
	assert.NotEqual(t, first.Row.ID, second.Row.ID)
}

func TestBuilder_Build_SeedsLayoutFromPreviousPositions(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	second := addInterval(t, fx)
	ctx := context.Background()

	// Hand-write the first interval's layout far from the origin; the
	// follow-up build has to start from it, and per-step movement is
	// bounded by the cooling temperature, so alice cannot come back
	// anywhere near a fresh ring seed.
	_, err := fx.store.SaveFrame(ctx, store.FrameData{
		Frame: store.Frame{IntervalID: fx.intervalID, TimeframeWindow: 30, FrameJSON: "{}"},
		Positions: []store.Position{
			{IntervalID: fx.intervalID, AccountID: "alice", X: 500, Y: 0, Z: 0},
		},
	})
	require.NoError(t, err)

	res, err := fx.builder.Build(ctx, BuildRequest{IntervalID: second, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	alice := findNode(t, res.Frame.Nodes, "alice")
	assert.Greater(t, alice.X, 300.0)
}

func TestBuilder_Frame_RoundTrip(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	ctx := context.Background()

	res, err := fx.builder.Build(ctx, BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	got, err := fx.builder.Frame(ctx, fx.intervalID, 30)
	require.NoError(t, err)
	assert.Equal(t, res.Frame, got)
}

func TestBuilder_Frame_NotFound(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)

	_, err := fx.builder.Frame(context.Background(), fx.intervalID, 30)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuilder_Latest_NewestBuildWins(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	second := addInterval(t, fx)
	ctx := context.Background()

	_, err := fx.builder.Build(ctx, BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	_, err = fx.builder.Build(ctx, BuildRequest{IntervalID: second, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	latest, err := fx.builder.Latest(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, second, latest.IntervalID)
}

func TestBuilder_LatestOrEmpty_EmptyStore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	b := NewBuilder(s, discardLogger())

	f, err := b.LatestOrEmpty(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 30, f.TimeframeDays)
	assert.NotNil(t, f.Nodes)
	assert.Empty(t, f.Nodes)
	assert.NotNil(t, f.Edges)
	assert.Zero(t, f.Stats.NodeCount)
}

func TestBuilder_Interpolate_BlendsStoredFrames(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	second := addInterval(t, fx)
	ctx := context.Background()

	from, err := fx.builder.Build(ctx, BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	to, err := fx.builder.Build(ctx, BuildRequest{IntervalID: second, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	interp, err := fx.builder.Interpolate(ctx, fx.intervalID, second, 30, 0.25)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, interp.Progress, 1e-9)
	assert.Equal(t, fx.intervalID, interp.IntervalID)

	a1 := findNode(t, from.Frame.Nodes, "alice")
	a2 := findNode(t, to.Frame.Nodes, "alice")
	ai := findNode(t, interp.Nodes, "alice")
	assert.InDelta(t, a1.X+(a2.X-a1.X)*0.25, ai.X, 0.01)
	assert.InDelta(t, a1.Y+(a2.Y-a1.Y)*0.25, ai.Y, 0.01)
}

func TestBuilder_Interpolate_MissingFrameFails(t *testing.T) {
	t.Parallel()

	fx := seedNetwork(t)
	ctx := context.Background()

	_, err := fx.builder.Build(ctx, BuildRequest{IntervalID: fx.intervalID, TimeframeDays: 30, EgoID: "ego"})
	require.NoError(t, err)

	_, err = fx.builder.Interpolate(ctx, fx.intervalID, 999, 30, 0.5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
