package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refTime = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

func TestDecay_FreshEventIsFull(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Decay(refTime, refTime), 1e-9)
}

func TestDecay_HalfLife(t *testing.T) {
	t.Parallel()

	at := refTime.Add(-14 * 24 * time.Hour)
	assert.InDelta(t, 0.5, Decay(at, refTime), 0.005)
}

func TestDecay_FutureEventCountsAsFresh(t *testing.T) {
	t.Parallel()

	at := refTime.Add(48 * time.Hour)
	assert.InDelta(t, 1.0, Decay(at, refTime), 1e-9)
}

func TestDecay_ZeroTimesCountAsFresh(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Decay(time.Time{}, refTime), 1e-9)
	assert.InDelta(t, 1.0, Decay(refTime, time.Time{}), 1e-9)
}

func TestBaseWeight_KnownAndUnknownTypes(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 4.0, BaseWeight("reply"), 1e-9)
	assert.InDelta(t, 3.0, BaseWeight("quote"), 1e-9)
	assert.InDelta(t, 2.0, BaseWeight("mention"), 1e-9)
	assert.InDelta(t, 1.0, BaseWeight("retweet"), 1e-9)
	assert.InDelta(t, 0.5, BaseWeight("like"), 1e-9)
	assert.InDelta(t, 1.0, BaseWeight("superchat"), 1e-9)
}

func TestInteractionEdges_ReplyAtHalfLife(t *testing.T) {
	t.Parallel()

	events := []Interaction{
		{SrcID: "fan", DstID: "ego", Type: "reply", CreatedAt: refTime.Add(-14 * 24 * time.Hour)},
	}

	edges := InteractionEdges(events, refTime)
	require.Len(t, edges, 1)

	assert.Equal(t, "fan", edges[0].Source)
	assert.Equal(t, "ego", edges[0].Target)
	assert.Equal(t, TypeDirectInteraction, edges[0].Type)
	assert.InDelta(t, 2.0, edges[0].Weight, 0.02)
}

func TestInteractionEdges_SamePairSums(t *testing.T) {
	t.Parallel()

	events := []Interaction{
		{SrcID: "a", DstID: "b", Type: "like", CreatedAt: refTime},
		{SrcID: "a", DstID: "b", Type: "retweet", CreatedAt: refTime},
		{SrcID: "b", DstID: "a", Type: "like", CreatedAt: refTime},
	}

	edges := InteractionEdges(events, refTime)
	require.Len(t, edges, 2)

	// Output is sorted by (source, target), so a->b comes first.
	assert.Equal(t, "a", edges[0].Source)
	assert.InDelta(t, 1.5, edges[0].Weight, 1e-9)
	assert.Equal(t, "b", edges[1].Source)
	assert.InDelta(t, 0.5, edges[1].Weight, 1e-9)
}

func TestInteractionEdges_SkipsBlankEndpoints(t *testing.T) {
	t.Parallel()

	events := []Interaction{
		{SrcID: "", DstID: "b", Type: "reply", CreatedAt: refTime},
		{SrcID: "a", DstID: "", Type: "reply", CreatedAt: refTime},
	}

	assert.Empty(t, InteractionEdges(events, refTime))
}

func TestCoEngagementEdges_SharedPost(t *testing.T) {
	t.Parallel()

	engagements := []Engagement{
		{PostID: "p1", AccountID: "b"},
		{PostID: "p1", AccountID: "a"},
	}

	edges := CoEngagementEdges(engagements)
	require.Len(t, edges, 1)

	// Direction is normalized to the smaller id.
	assert.Equal(t, "a", edges[0].Source)
	assert.Equal(t, "b", edges[0].Target)
	assert.Equal(t, TypeCoEngagement, edges[0].Type)
	assert.InDelta(t, 1.0, edges[0].Weight, 1e-9)
}

func TestCoEngagementEdges_ThreeEngagersMakeThreePairs(t *testing.T) {
	t.Parallel()

	engagements := []Engagement{
		{PostID: "p1", AccountID: "a"},
		{PostID: "p1", AccountID: "b"},
		{PostID: "p1", AccountID: "c"},
	}

	edges := CoEngagementEdges(engagements)
	require.Len(t, edges, 3)

	for _, e := range edges {
		assert.InDelta(t, 1.0, e.Weight, 1e-9)
	}
}

func TestCoEngagementEdges_RepeatEngagementCountsOnce(t *testing.T) {
	t.Parallel()

	engagements := []Engagement{
		{PostID: "p1", AccountID: "a"},
		{PostID: "p1", AccountID: "a"},
		{PostID: "p1", AccountID: "b"},
		{PostID: "p2", AccountID: "a"},
		{PostID: "p2", AccountID: "b"},
	}

	edges := CoEngagementEdges(engagements)
	require.Len(t, edges, 1)

	// Two shared posts, one edge of weight 2.
	assert.InDelta(t, 2.0, edges[0].Weight, 1e-9)
}

func TestEgoFollowEdges_EmitsThinEdges(t *testing.T) {
	t.Parallel()

	edges := EgoFollowEdges("ego", map[string]bool{"n2": true, "n1": true})
	require.Len(t, edges, 2)

	assert.Equal(t, Edge{Source: "ego", Target: "n1", Type: TypeEgoFollow, Weight: 0.5}, edges[0])
	assert.Equal(t, Edge{Source: "ego", Target: "n2", Type: TypeEgoFollow, Weight: 0.5}, edges[1])
}

func TestEgoFollowEdges_NoEgoNoEdges(t *testing.T) {
	t.Parallel()

	assert.Empty(t, EgoFollowEdges("", map[string]bool{"n1": true}))
	assert.Empty(t, EgoFollowEdges("ego", nil))
}

func TestGrowthEdges_PrefersSimilarAudience(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "ego", Followers: 5000},
		{ID: "huge", Followers: 10000},
		{ID: "small", Followers: 100},
		{ID: "new1", Followers: 120},
	}

	edges := GrowthEdges(nodes, map[string]bool{"new1": true}, "ego")

	var growth []Edge

	for _, e := range edges {
		if e.Type == TypeNetworkGrowth {
			growth = append(growth, e)
		}
	}

	require.NotEmpty(t, growth)

	// The 100-follower node is the better ratio match and ranks first.
	assert.Equal(t, "small", growth[0].Source)
	assert.Equal(t, "new1", growth[0].Target)
	assert.Greater(t, growth[0].Weight, 0.5)
}

func TestGrowthEdges_RatioCutoffExcludesGiants(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "giant", Followers: 1_000_000},
		{ID: "new1", Followers: 50},
	}

	edges := GrowthEdges(nodes, map[string]bool{"new1": true}, "")
	assert.Empty(t, edges)
}

func TestGrowthEdges_TopFiveMatchesOnly(t *testing.T) {
	t.Parallel()

	nodes := []Node{{ID: "new1", Followers: 1000}}
	for i := 0; i < 8; i++ {
		nodes = append(nodes, Node{ID: string(rune('a' + i)), Followers: int64(900 + i*20)})
	}

	edges := GrowthEdges(nodes, map[string]bool{"new1": true}, "")
	assert.Len(t, edges, growthTopMatches)
}

func TestGrowthEdges_CohortPairs(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "new1", Followers: 1000},
		{ID: "new2", Followers: 2000},
		{ID: "new3", Followers: 100_000},
	}

	newIDs := map[string]bool{"new1": true, "new2": true, "new3": true}

	edges := GrowthEdges(nodes, newIDs, "")
	require.Len(t, edges, 1)

	// Only new1-new2 are within a factor of five; weight is 0.5/ratio.
	assert.Equal(t, "new1", edges[0].Source)
	assert.Equal(t, "new2", edges[0].Target)
	assert.Equal(t, TypeCohort, edges[0].Type)
	assert.InDelta(t, 0.25, edges[0].Weight, 1e-9)
}

func TestGrowthEdges_CohortPeerCap(t *testing.T) {
	t.Parallel()

	var nodes []Node

	newIDs := make(map[string]bool)

	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		nodes = append(nodes, Node{ID: id, Followers: 1000})
		newIDs[id] = true
	}

	edges := GrowthEdges(nodes, newIDs, "")

	perNode := make(map[string]int)
	for _, e := range edges {
		require.Equal(t, TypeCohort, e.Type)
		perNode[e.Source]++
	}

	for id, n := range perNode {
		assert.LessOrEqual(t, n, cohortMaxPeers, "node %s", id)
	}
}

func TestFollowerRatio_FloorsAtOne(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, followerRatio(0, 0), 1e-9)
	assert.InDelta(t, 50.0, followerRatio(0, 50), 1e-9)
	assert.InDelta(t, 2.0, followerRatio(100, 200), 1e-9)
	assert.InDelta(t, 2.0, followerRatio(200, 100), 1e-9)
}
