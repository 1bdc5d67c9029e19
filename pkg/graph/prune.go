package graph

import (
	"math"
	"slices"
	"strings"
)

// ComputeImportance scores every node as a blend of its share of incident
// edge weight (70%) and its log-scaled audience size (30%), each
// normalized by the maximum over the node set. A zero maximum zeroes that
// component.
func ComputeImportance(nodes []Node, edges []Edge) {
	edgeSums := make(map[string]float64, len(nodes))

	for _, e := range edges {
		edgeSums[e.Source] += e.Weight
		edgeSums[e.Target] += e.Weight
	}

	var maxEdge float64
	for _, s := range edgeSums {
		maxEdge = math.Max(maxEdge, s)
	}

	var maxFollowers int64
	for _, n := range nodes {
		maxFollowers = max(maxFollowers, n.Followers)
	}

	logMax := math.Log1p(float64(maxFollowers))

	for i := range nodes {
		var edgeNorm, followNorm float64

		if maxEdge > 0 {
			edgeNorm = edgeSums[nodes[i].ID] / maxEdge
		}

		if logMax > 0 {
			followNorm = math.Log1p(float64(nodes[i].Followers)) / logMax
		}

		nodes[i].Importance = 0.7*edgeNorm + 0.3*followNorm
	}
}

// Prune trims the graph to renderable size. In order: drop small accounts
// (the ego is exempt), keep the most important maxNodes, drop edges that
// lost an endpoint, cap each node at MaxEdgesPerNode incident edges, and
// finally cap the whole frame at MaxEdges. Importance is computed on the
// surviving node set before the node cap applies, so the payload carries
// the scores the cut was made with.
func Prune(nodes []Node, edges []Edge, maxNodes, minFollowers int, egoID string) ([]Node, []Edge) {
	kept := make([]Node, 0, len(nodes))

	for _, n := range nodes {
		if n.Followers >= int64(minFollowers) || n.ID == egoID {
			kept = append(kept, n)
		}
	}

	ComputeImportance(kept, edges)

	slices.SortFunc(kept, func(a, b Node) int {
		if a.Importance != b.Importance {
			if a.Importance > b.Importance {
				return -1
			}

			return 1
		}

		return strings.Compare(a.ID, b.ID)
	})

	if len(kept) > maxNodes {
		kept = kept[:maxNodes]
	}

	remaining := make(map[string]bool, len(kept))
	for _, n := range kept {
		remaining[n.ID] = true
	}

	surviving := make([]Edge, 0, len(edges))

	for _, e := range edges {
		if remaining[e.Source] && remaining[e.Target] {
			surviving = append(surviving, e)
		}
	}

	return kept, capEdges(surviving)
}

// capEdges enforces the per-node and global edge limits. Edges are taken
// greedily by descending weight; an edge is kept only while both endpoints
// still have capacity, which bounds every node's incident degree.
func capEdges(edges []Edge) []Edge {
	slices.SortFunc(edges, func(a, b Edge) int {
		if a.Weight != b.Weight {
			if a.Weight > b.Weight {
				return -1
			}

			return 1
		}

		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}

		if c := strings.Compare(a.Target, b.Target); c != 0 {
			return c
		}

		return strings.Compare(a.Type, b.Type)
	})

	degrees := make(map[string]int)
	capped := make([]Edge, 0, len(edges))

	for _, e := range edges {
		if len(capped) >= MaxEdges {
			break
		}

		if degrees[e.Source] >= MaxEdgesPerNode || degrees[e.Target] >= MaxEdgesPerNode {
			continue
		}

		degrees[e.Source]++
		degrees[e.Target]++

		capped = append(capped, e)
	}

	return capped
}
