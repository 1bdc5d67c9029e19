package graph

import (
	"slices"
	"strings"
)

// maxPropagationPasses bounds label propagation; dense graphs settle well
// before this.
const maxPropagationPasses = 10

// AssignCommunities runs weighted label propagation over the undirected
// projection of the edge set and writes the detected community onto each
// node. Every node starts alone; on each pass a node adopts the community
// with the greatest incident weight, and a pass without reassignment
// stops early. Nodes are visited in id order and ties go to the lowest
// label, so the result is stable for identical inputs. Labels are
// renumbered to [0,K) in order of first appearance, and the ego, when
// present, is pinned to community 0.
func AssignCommunities(nodes []Node, edges []Edge, egoID string) {
	if len(nodes) == 0 {
		return
	}

	order := make([]int, len(nodes))
	for i := range nodes {
		order[i] = i
	}

	slices.SortFunc(order, func(a, b int) int {
		return strings.Compare(nodes[a].ID, nodes[b].ID)
	})

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	type neighbor struct {
		idx    int
		weight float64
	}

	adjacency := make([][]neighbor, len(nodes))

	for _, e := range edges {
		si, ok := index[e.Source]
		if !ok {
			continue
		}

		di, ok := index[e.Target]
		if !ok || si == di {
			continue
		}

		adjacency[si] = append(adjacency[si], neighbor{di, e.Weight})
		adjacency[di] = append(adjacency[di], neighbor{si, e.Weight})
	}

	labels := make([]int, len(nodes))
	for rank, idx := range order {
		labels[idx] = rank
	}

	votes := make(map[int]float64)

	for pass := 0; pass < maxPropagationPasses; pass++ {
		changed := false

		for _, idx := range order {
			if len(adjacency[idx]) == 0 {
				continue
			}

			clear(votes)

			for _, nb := range adjacency[idx] {
				votes[labels[nb.idx]] += nb.weight
			}

			best := labels[idx]
			bestWeight := -1.0

			for label, weight := range votes {
				if weight > bestWeight || (weight == bestWeight && label < best) {
					best = label
					bestWeight = weight
				}
			}

			if best != labels[idx] {
				labels[idx] = best
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	renumber := make(map[int]int)

	for _, idx := range order {
		label := labels[idx]

		mapped, ok := renumber[label]
		if !ok {
			mapped = len(renumber)
			renumber[label] = mapped
		}

		nodes[idx].Community = mapped
	}

	if egoIdx, ok := index[egoID]; ok && egoID != "" {
		nodes[egoIdx].Community = 0
	}
}
