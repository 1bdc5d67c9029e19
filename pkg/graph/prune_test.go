package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeImportance_BlendsEdgesAndFollowers(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "a", Followers: 1000},
		{ID: "b", Followers: 1000},
	}

	edges := []Edge{
		{Source: "a", Target: "b", Weight: 2.0},
		{Source: "a", Target: "b", Weight: 2.0},
	}

	ComputeImportance(nodes, edges)

	// Equal followers and equal edge sums: both get 0.7 + 0.3.
	assert.InDelta(t, 1.0, nodes[0].Importance, 1e-9)
	assert.InDelta(t, 1.0, nodes[1].Importance, 1e-9)
}

func TestComputeImportance_FollowerComponentOnly(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "a", Followers: 99},
		{ID: "b", Followers: 9999},
	}

	ComputeImportance(nodes, nil)

	// No edges zeroes the edge component for everyone.
	assert.InDelta(t, 0.15, nodes[0].Importance, 1e-9)
	assert.InDelta(t, 0.3, nodes[1].Importance, 1e-9)
}

func TestComputeImportance_EmptyGraph(t *testing.T) {
	t.Parallel()

	nodes := []Node{{ID: "a", Followers: 0}}

	ComputeImportance(nodes, nil)
	assert.InDelta(t, 0.0, nodes[0].Importance, 1e-9)
}

func TestPrune_DropsSmallAccountsButNotEgo(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "ego", Followers: 3},
		{ID: "tiny", Followers: 499},
		{ID: "kept", Followers: 500},
	}

	pruned, _ := Prune(nodes, nil, MaxNodes, MinFollowers, "ego")

	ids := make([]string, 0, len(pruned))
	for _, n := range pruned {
		ids = append(ids, n.ID)
	}

	assert.ElementsMatch(t, []string{"ego", "kept"}, ids)
}

func TestPrune_KeepsMostImportantNodes(t *testing.T) {
	t.Parallel()

	var nodes []Node

	for i := 0; i < 30; i++ {
		nodes = append(nodes, Node{
			ID:        fmt.Sprintf("n%02d", i),
			Followers: int64(1000 + i*100),
		})
	}

	scored := make([]Node, len(nodes))
	copy(scored, nodes)
	ComputeImportance(scored, nil)

	pruned, _ := Prune(nodes, nil, 10, MinFollowers, "")
	require.Len(t, pruned, 10)

	keptIDs := make(map[string]bool, len(pruned))
	for _, n := range pruned {
		keptIDs[n.ID] = true
	}

	// With no edges, importance is follower-driven, so the cut keeps the
	// most-followed accounts and every retained node outranks every
	// dropped one.
	minKept := pruned[len(pruned)-1].Importance

	for _, n := range scored {
		if !keptIDs[n.ID] {
			assert.LessOrEqual(t, n.Importance, minKept)
		}
	}

	assert.Equal(t, "n29", pruned[0].ID)
}

func TestPrune_DropsEdgesWithoutEndpoints(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "a", Followers: 1000},
		{ID: "b", Followers: 1000},
		{ID: "tiny", Followers: 10},
	}

	edges := []Edge{
		{Source: "a", Target: "b", Type: TypeMutual, Weight: 1.0},
		{Source: "a", Target: "tiny", Type: TypeCohort, Weight: 0.5},
	}

	_, prunedEdges := Prune(nodes, edges, MaxNodes, MinFollowers, "")
	require.Len(t, prunedEdges, 1)
	assert.Equal(t, "b", prunedEdges[0].Target)
}

func TestPrune_PerNodeEdgeCap(t *testing.T) {
	t.Parallel()

	nodes := []Node{{ID: "hub", Followers: 10_000}}
	for i := 0; i < 80; i++ {
		nodes = append(nodes, Node{ID: fmt.Sprintf("s%02d", i), Followers: 1000})
	}

	var edges []Edge

	for i := 0; i < 80; i++ {
		edges = append(edges, Edge{
			Source: fmt.Sprintf("s%02d", i),
			Target: "hub",
			Type:   "tier_5_outer",
			Weight: 0.3,
		})
	}

	_, prunedEdges := Prune(nodes, edges, MaxNodes, MinFollowers, "")
	assert.Len(t, prunedEdges, MaxEdgesPerNode)

	degrees := make(map[string]int)

	for _, e := range prunedEdges {
		degrees[e.Source]++
		degrees[e.Target]++
	}

	for id, d := range degrees {
		assert.LessOrEqual(t, d, MaxEdgesPerNode, "node %s", id)
	}
}

func TestPrune_GlobalEdgeCap(t *testing.T) {
	t.Parallel()

	// A bipartite graph where every node stays under the per-node cap but
	// the total crosses the global one.
	const side = 260

	var (
		nodes []Node
		edges []Edge
	)

	for i := 0; i < side; i++ {
		nodes = append(nodes,
			Node{ID: fmt.Sprintf("l%03d", i), Followers: 1000},
			Node{ID: fmt.Sprintf("r%03d", i), Followers: 1000},
		)
	}

	for i := 0; i < side; i++ {
		for k := 0; k < MaxEdgesPerNode; k++ {
			edges = append(edges, Edge{
				Source: fmt.Sprintf("l%03d", i),
				Target: fmt.Sprintf("r%03d", (i+k)%side),
				Type:   TypeCoEngagement,
				Weight: 1.0,
			})
		}
	}

	require.Greater(t, len(edges), MaxEdges)

	_, prunedEdges := Prune(nodes, edges, MaxNodes, MinFollowers, "")
	assert.Len(t, prunedEdges, MaxEdges)
}

func TestPrune_EdgeOrderIsWeightDescending(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		{ID: "a", Followers: 1000},
		{ID: "b", Followers: 1000},
		{ID: "c", Followers: 1000},
	}

	edges := []Edge{
		{Source: "a", Target: "b", Type: TypeCohort, Weight: 0.2},
		{Source: "b", Target: "c", Type: TypeMutual, Weight: 1.0},
		{Source: "a", Target: "c", Type: TypeNetworkGrowth, Weight: 0.6},
	}

	_, prunedEdges := Prune(nodes, edges, MaxNodes, MinFollowers, "")
	require.Len(t, prunedEdges, 3)

	assert.InDelta(t, 1.0, prunedEdges[0].Weight, 1e-9)
	assert.InDelta(t, 0.6, prunedEdges[1].Weight, 1e-9)
	assert.InDelta(t, 0.2, prunedEdges[2].Weight, 1e-9)
}
