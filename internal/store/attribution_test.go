package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PostAttribution_UpsertReplaces(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	a := PostAttribution{
		PostID:          "p1",
		IntervalID:      3,
		TimeframeWindow: 30,
		CreatedAt:       testTime(0),
		PayloadJSON:     `{"attribution":{"high":1}}`,
		BuiltAt:         testTime(time.Minute),
	}

	require.NoError(t, s.UpsertPostAttribution(ctx, a))

	a.PayloadJSON = `{"attribution":{"high":4}}`
	a.BuiltAt = testTime(time.Hour)
	require.NoError(t, s.UpsertPostAttribution(ctx, a))

	got, err := s.GetPostAttribution(ctx, "p1", 30)
	require.NoError(t, err)
	assert.Equal(t, `{"attribution":{"high":4}}`, got.PayloadJSON)
	assert.Equal(t, int64(3), got.IntervalID)
	assert.WithinDuration(t, testTime(time.Hour), got.BuiltAt, 0)
}

func TestStore_GetPostAttribution_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.GetPostAttribution(context.Background(), "missing", 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListPostAttributions_NewestPostFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for i, postID := range []string{"old", "mid", "new"} {
		err := s.UpsertPostAttribution(ctx, PostAttribution{
			PostID:          postID,
			TimeframeWindow: 30,
			CreatedAt:       testTime(time.Duration(i) * time.Hour),
			PayloadJSON:     "{}",
			BuiltAt:         testTime(0),
		})
		require.NoError(t, err)
	}

	got, err := s.ListPostAttributions(ctx, 30, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].PostID)
	assert.Equal(t, "mid", got[1].PostID)
}

func TestStore_DeleteAttributions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	seed := func(postID string, timeframe int64) {
		err := s.UpsertPostAttribution(ctx, PostAttribution{
			PostID:          postID,
			TimeframeWindow: timeframe,
			CreatedAt:       testTime(0),
			PayloadJSON:     "{}",
			BuiltAt:         testTime(0),
		})
		require.NoError(t, err)
	}

	seed("real_1", 30)
	seed("mock_post_1", 30)
	seed("mock_post_1", 7)

	n, err := s.DeleteAttributionsWithPrefix(ctx, 30, "mock_post_")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The other timeframe's mock row survives a scoped delete.
	_, err = s.GetPostAttribution(ctx, "mock_post_1", 7)
	require.NoError(t, err)

	n, err = s.DeleteAttributionsForTimeframe(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetPostAttribution(ctx, "real_1", 30)
	assert.ErrorIs(t, err, ErrNotFound)
}
