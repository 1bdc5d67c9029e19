package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InteractionEvents_WindowAndKeys(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	events := []InteractionEvent{
		{IntervalID: intervalID, CreatedAt: testTime(10 * time.Minute), SrcID: "alice", DstID: "ego", Type: "reply", PostID: "p1"},
		{IntervalID: intervalID, CreatedAt: testTime(20 * time.Minute), SrcID: "bob", DstID: "ego", Type: "retweet", PostID: "p1"},
		{IntervalID: intervalID, CreatedAt: testTime(-48 * time.Hour), SrcID: "carol", DstID: "ego", Type: "mention", PostID: "p2"},
	}

	err := s.InsertInteractionEvents(ctx, events)
	require.NoError(t, err)

	keys, err := s.ExistingInteractionKeys(ctx, intervalID)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, InteractionKey{SrcID: "alice", DstID: "ego", Type: "reply", PostID: "p1"})

	// Only events inside the window are returned.
	recent, err := s.InteractionEventsBetween(ctx, testTime(0), testTime(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	all, err := s.InteractionEventsBetween(ctx, time.Time{}, testTime(time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_PostEngagers_ReplaySafe(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	engagers := []PostEngager{
		{IntervalID: intervalID, PostID: "p1", AccountID: "alice", Type: "like"},
		{IntervalID: intervalID, PostID: "p1", AccountID: "bob", Type: "like"},
	}

	require.NoError(t, s.InsertPostEngagers(ctx, engagers))
	// Replayed page hits the unique constraint and is ignored.
	require.NoError(t, s.InsertPostEngagers(ctx, engagers))

	keys, err := s.ExistingEngagerKeys(ctx, intervalID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, EngagerKey{PostID: "p1", AccountID: "alice", Type: "like"})
}

func TestStore_EngagersOnIntervalsBetween(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	early := seedInterval(t, s, testTime(-3*time.Hour), testTime(-2*time.Hour), nil, nil)
	late := seedInterval(t, s, testTime(-time.Hour), testTime(time.Hour), nil, nil)

	err := s.InsertPostEngagers(ctx, []PostEngager{
		{IntervalID: early, PostID: "p-old", AccountID: "alice", Type: "like"},
		{IntervalID: late, PostID: "p-new", AccountID: "bob", Type: "reply"},
	})
	require.NoError(t, err)

	got, err := s.EngagersOnIntervalsBetween(ctx, testTime(-90*time.Minute), testTime(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-new", got[0].PostID)

	all, err := s.EngagersOnIntervalsBetween(ctx, time.Time{}, testTime(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_PerPostSets(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	intervalID := seedInterval(t, s, testTime(0), testTime(time.Hour), nil, nil)

	err := s.InsertPostEngagers(ctx, []PostEngager{
		{IntervalID: intervalID, PostID: "p1", AccountID: "alice", Type: "like"},
		{IntervalID: intervalID, PostID: "p1", AccountID: "alice", Type: "retweet"},
		{IntervalID: intervalID, PostID: "p2", AccountID: "bob", Type: "like"},
	})
	require.NoError(t, err)

	err = s.InsertInteractionEvents(ctx, []InteractionEvent{
		{IntervalID: intervalID, CreatedAt: testTime(time.Minute), SrcID: "carol", DstID: "ego", Type: "quote", PostID: "p1"},
	})
	require.NoError(t, err)

	engagerIDs, err := s.EngagerIDsForPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"alice": {}}, engagerIDs)

	srcIDs, err := s.InteractionSrcIDsForPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"carol": {}}, srcIDs)
}
