package graph

import (
	"slices"
	"strings"
)

// Follower-count floors for tiers 1..6. Tier 1 is the most-followed bin
// and connects straight to the ego; every other tier routes through the
// tier above it so the layout forms a hierarchy instead of a starburst.
var tierFloors = [...]int64{100_000, 50_000, 10_000, 5_000, 2_000, 0}

// Edge types and weights per tier, indexed by tier-1.
var (
	tierTypes   = [...]string{"tier_1_ego", "tier_2_hub", "tier_3_bridge", "tier_4_cluster", "tier_5_outer", "tier_6_leaf"}
	tierWeights = [...]float64{0.9, 0.7, 0.5, 0.4, 0.3, 0.2}
)

// tierSkipFactor scales the edge weight when a node has to route past an
// empty tier to a higher one.
const tierSkipFactor = 0.8

// nearestCandidateCap bounds the ratio search inside one tier.
const nearestCandidateCap = 50

// TierOf returns the 1-based tier for a follower count.
func TierOf(followers int64) int {
	for i, floor := range tierFloors {
		if followers >= floor {
			return i + 1
		}
	}

	return len(tierFloors)
}

// RouteEdges wires every non-mutual, non-ego node into the tier hierarchy
// and then adds the direct ego edges: mutuals always get a mutual edge,
// and nodes the routing left disconnected fall back to you_follow or
// followers_you. Ego edges lead the returned slice.
func RouteEdges(nodes []Node, egoID string, mutual, followers, following map[string]bool) []Edge {
	network := tieredEdges(nodes, egoID, mutual)

	connected := make(map[string]bool, len(network)*2)
	for _, e := range network {
		connected[e.Source] = true
		connected[e.Target] = true
	}

	var ego []Edge

	if egoID != "" {
		for _, n := range nodes {
			switch {
			case n.ID == egoID:
			case mutual[n.ID]:
				ego = append(ego, Edge{Source: egoID, Target: n.ID, Type: TypeMutual, Weight: 1.0})
			case connected[n.ID]:
			case following[n.ID]:
				ego = append(ego, Edge{Source: egoID, Target: n.ID, Type: TypeYouFollow, Weight: 0.8})
			case followers[n.ID]:
				ego = append(ego, Edge{Source: n.ID, Target: egoID, Type: TypeFollowersYou, Weight: 0.6})
			}
		}
	}

	return append(ego, network...)
}

// tieredEdges routes each node to the nearest member of the tier above it,
// measured by follower-count ratio. Mutuals are skipped here since they
// get a direct mutual edge instead.
func tieredEdges(nodes []Node, egoID string, mutual map[string]bool) []Edge {
	buckets := make([][]Node, len(tierFloors)+1)

	for _, n := range nodes {
		if n.ID == egoID {
			continue
		}

		t := TierOf(n.Followers)
		buckets[t] = append(buckets[t], n)
	}

	for t := range buckets {
		slices.SortFunc(buckets[t], func(a, b Node) int {
			if a.Followers != b.Followers {
				if a.Followers > b.Followers {
					return -1
				}

				return 1
			}

			return strings.Compare(a.ID, b.ID)
		})
	}

	var edges []Edge

	for tier := len(tierFloors); tier >= 1; tier-- {
		for _, n := range buckets[tier] {
			if mutual[n.ID] {
				continue
			}

			if tier == 1 {
				if egoID != "" {
					edges = append(edges, Edge{Source: n.ID, Target: egoID, Type: tierTypes[0], Weight: tierWeights[0]})
				}

				continue
			}

			if target, ok := nearestInTier(n, buckets[tier-1]); ok {
				edges = append(edges, Edge{Source: n.ID, Target: target, Type: tierTypes[tier-1], Weight: tierWeights[tier-1]})

				continue
			}

			if target, ok := nearestInHigherTiers(n, buckets, tier); ok {
				edges = append(edges, Edge{Source: n.ID, Target: target, Type: tierTypes[tier-1], Weight: tierWeights[tier-1] * tierSkipFactor})

				continue
			}

			if egoID != "" && tier <= 3 {
				edges = append(edges, Edge{Source: n.ID, Target: egoID, Type: TypeFallbackEgo, Weight: 0.4})
			}
		}
	}

	return edges
}

// nearestInTier picks the bucket member with the best follower-count ratio
// to n, scanning at most the 50 most-followed candidates. The first
// candidate wins ties.
func nearestInTier(n Node, bucket []Node) (string, bool) {
	if len(bucket) == 0 {
		return "", false
	}

	candidates := bucket
	if len(candidates) > nearestCandidateCap {
		candidates = candidates[:nearestCandidateCap]
	}

	best := candidates[0].ID
	bestRatio := followerRatio(n.Followers, candidates[0].Followers)

	for _, c := range candidates[1:] {
		if r := followerRatio(n.Followers, c.Followers); r < bestRatio {
			best = c.ID
			bestRatio = r
		}
	}

	return best, true
}

// nearestInHigherTiers searches upward past empty tiers for any routable
// target.
func nearestInHigherTiers(n Node, buckets [][]Node, tier int) (string, bool) {
	for t := tier - 1; t >= 1; t-- {
		if target, ok := nearestInTier(n, buckets[t]); ok {
			return target, ok
		}
	}

	return "", false
}

// strategyRank orders the routing strategies for duplicate-pair
// resolution. Lower outranks higher; -1 marks edge sources that are not
// routing strategies and never collapse.
func strategyRank(edgeType string) int {
	switch {
	case edgeType == TypeMutual:
		return 0
	case strings.HasPrefix(edgeType, "tier_"):
		return 1
	case edgeType == TypeYouFollow, edgeType == TypeFollowersYou:
		return 2
	case edgeType == TypeNetworkGrowth:
		return 3
	case edgeType == TypeCohort:
		return 4
	case edgeType == TypeEgoFollow:
		return 5
	case edgeType == TypeFallbackEgo:
		return 6
	default:
		return -1
	}
}

// ResolveDuplicates collapses edges that different routing strategies
// produced for the same (source, target) pair: the higher weight wins, and
// equal weights fall back to strategy rank. Interaction and co-engagement
// edges pass through untouched.
func ResolveDuplicates(edges []Edge) []Edge {
	type pair struct{ src, dst string }

	winners := make(map[pair]int)
	out := make([]Edge, 0, len(edges))

	for _, e := range edges {
		rank := strategyRank(e.Type)
		if rank < 0 {
			out = append(out, e)

			continue
		}

		k := pair{e.Source, e.Target}

		i, ok := winners[k]
		if !ok {
			winners[k] = len(out)
			out = append(out, e)

			continue
		}

		held := out[i]
		if e.Weight > held.Weight || (e.Weight == held.Weight && rank < strategyRank(held.Type)) {
			out[i] = e
		}
	}

	return out
}
