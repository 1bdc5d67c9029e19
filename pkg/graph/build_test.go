package graph

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallInput() Input {
	return Input{
		IntervalID:    42,
		TimeframeDays: 30,
		ReferenceTime: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		EgoID:         "ego",
		Accounts: []Account{
			{ID: "ego", Handle: "ego", Name: "Ego", Followers: 1000},
			{ID: "friend", Handle: "friend", Name: "Friend", Followers: 3000},
			{ID: "hub", Handle: "hub", Name: "Hub", Followers: 3000},
			{ID: "fan", Handle: "fan", Name: "Fan", Followers: 800},
			{ID: "idol", Handle: "idol", Name: "Idol", Followers: 600},
			{ID: "newbie", Handle: "newbie", Name: "Newbie", Followers: 900},
		},
		Followers: map[string]bool{
			"friend": true,
			"hub":    true,
			"fan":    true,
			"newbie": true,
		},
		Following: map[string]bool{
			"friend": true,
			"idol":   true,
		},
		NewFollowers: map[string]bool{"newbie": true},
		Interactions: []Interaction{
			{SrcID: "fan", DstID: "ego", Type: "reply", CreatedAt: time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)},
		},
		Engagements: []Engagement{
			{PostID: "p1", AccountID: "fan"},
			{PostID: "p1", AccountID: "idol"},
		},
	}
}

func TestBuild_EmptyInputYieldsEmptyFrame(t *testing.T) {
	t.Parallel()

	frame := Build(Input{
		IntervalID:    7,
		TimeframeDays: 30,
		ReferenceTime: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, int64(7), frame.IntervalID)
	assert.Equal(t, 30, frame.TimeframeDays)
	assert.Equal(t, "2026-03-08T00:00:00Z", frame.Timestamp)
	assert.Empty(t, frame.EgoID)
	assert.NotNil(t, frame.Nodes)
	assert.Empty(t, frame.Nodes)
	assert.NotNil(t, frame.Edges)
	assert.Empty(t, frame.Edges)
	assert.Equal(t, Stats{}, frame.Stats)
}

func TestBuild_SmallNetwork(t *testing.T) {
	t.Parallel()

	frame := Build(smallInput())

	require.Len(t, frame.Nodes, 6)
	assert.Equal(t, int64(42), frame.IntervalID)
	assert.Equal(t, "ego", frame.EgoID)
	assert.Equal(t, "2026-03-08T00:00:00Z", frame.Timestamp)

	byID := make(map[string]Node, len(frame.Nodes))
	for _, n := range frame.Nodes {
		byID[n.ID] = n
	}

	assert.True(t, byID["ego"].IsEgo)
	assert.True(t, byID["newbie"].IsNew)
	assert.False(t, byID["fan"].IsNew)
	assert.Equal(t, 0, byID["ego"].Community)

	types := make(map[string]int)
	for _, e := range frame.Edges {
		types[e.Type]++
	}

	assert.Equal(t, 1, types[TypeMutual])
	assert.Equal(t, 1, types[TypeDirectInteraction])
	assert.Equal(t, 1, types[TypeCoEngagement])
	assert.Equal(t, 1, types[TypeEgoFollow])
	assert.Equal(t, 4, types[TypeNetworkGrowth])
	assert.Equal(t, 3, types["tier_6_leaf"])

	assert.Equal(t, len(frame.Nodes), frame.Stats.NodeCount)
	assert.Equal(t, len(frame.Edges), frame.Stats.EdgeCount)
	assert.Equal(t, len(frame.Communities), frame.Stats.CommunityCount)
	assert.Equal(t, 1, frame.Stats.NewFollowers)
}

func TestBuild_ValuesAreRounded(t *testing.T) {
	t.Parallel()

	frame := Build(smallInput())

	for _, n := range frame.Nodes {
		assert.Equal(t, roundTo(n.Importance, 4), n.Importance)
		assert.Equal(t, roundTo(n.X, 2), n.X)
		assert.Equal(t, roundTo(n.Y, 2), n.Y)
		assert.Equal(t, roundTo(n.Z, 2), n.Z)
	}

	for _, e := range frame.Edges {
		assert.Equal(t, roundTo(e.Weight, 4), e.Weight)
	}
}

func TestBuild_EgoPinnedAtOrigin(t *testing.T) {
	t.Parallel()

	frame := Build(smallInput())

	for _, n := range frame.Nodes {
		if n.IsEgo {
			assert.Zero(t, n.X)
			assert.Zero(t, n.Y)
			assert.Zero(t, n.Z)
		}
	}
}

func TestBuild_RebuildIsByteIdentical(t *testing.T) {
	t.Parallel()

	first, err := json.Marshal(Build(smallInput()))
	require.NoError(t, err)

	second, err := json.Marshal(Build(smallInput()))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuild_DoesNotReorderInputAccounts(t *testing.T) {
	t.Parallel()

	in := smallInput()
	Build(in)

	assert.Equal(t, "ego", in.Accounts[0].ID)
	assert.Equal(t, "friend", in.Accounts[1].ID)
	assert.Equal(t, "newbie", in.Accounts[5].ID)
}

func TestBuild_PreviousPositionsCarryOver(t *testing.T) {
	t.Parallel()

	in := smallInput()
	in.PrevPositions = map[string]Point{
		"idol": {X: 500, Y: 500, Z: 0},
	}

	withPrev := Build(in)
	fresh := Build(smallInput())

	var prevIdol, freshIdol Node

	for _, n := range withPrev.Nodes {
		if n.ID == "idol" {
			prevIdol = n
		}
	}

	for _, n := range fresh.Nodes {
		if n.ID == "idol" {
			freshIdol = n
		}
	}

	// Cooling caps total movement under 185 units, so a node seeded at
	// x=500 cannot cross 300 and a ring-seeded one cannot reach it.
	assert.Greater(t, prevIdol.X, 300.0)
	assert.Less(t, freshIdol.X, 300.0)
}

func TestBuild_LargeNetworkHonorsCaps(t *testing.T) {
	t.Parallel()

	in := Input{
		IntervalID:    9,
		TimeframeDays: 30,
		ReferenceTime: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		EgoID:         "ego",
		Followers:     map[string]bool{},
		Accounts: []Account{
			{ID: "ego", Handle: "ego", Followers: 1500},
		},
	}

	for i := 0; i < 3000; i++ {
		id := fmt.Sprintf("acct%04d", i)
		in.Accounts = append(in.Accounts, Account{
			ID:        id,
			Handle:    id,
			Followers: int64(500 + i*40),
		})
		in.Followers[id] = true
	}

	frame := Build(in)

	assert.Equal(t, MaxNodes, frame.Stats.NodeCount)
	assert.Len(t, frame.Nodes, MaxNodes)
	assert.LessOrEqual(t, frame.Stats.EdgeCount, MaxEdges)

	degrees := make(map[string]int)

	for _, e := range frame.Edges {
		degrees[e.Source]++
		degrees[e.Target]++
	}

	for id, d := range degrees {
		assert.LessOrEqual(t, d, MaxEdgesPerNode, "node %s", id)
	}
}
