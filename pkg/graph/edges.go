package graph

import (
	"math"
	"slices"
	"strings"
	"time"
)

// halfLifeDays controls recency decay: an interaction loses half its
// weight every 14 days.
const halfLifeDays = 14.0

// baseWeights maps an interaction type to its undecayed edge weight.
// Unknown types fall back to 1.
var baseWeights = map[string]float64{
	"reply":   4.0,
	"quote":   3.0,
	"mention": 2.0,
	"retweet": 1.0,
	"like":    0.5,
}

// BaseWeight returns the undecayed weight for an interaction type.
func BaseWeight(interactionType string) float64 {
	if w, ok := baseWeights[interactionType]; ok {
		return w
	}

	return 1.0
}

// Decay returns the recency multiplier 2^(-days/14) for an event at the
// given time relative to ref. Future events and zero times count as fresh.
func Decay(at, ref time.Time) float64 {
	if at.IsZero() || ref.IsZero() {
		return 1.0
	}

	days := ref.Sub(at).Seconds() / 86400.0
	if days < 0 {
		return 1.0
	}

	return math.Pow(2, -days/halfLifeDays)
}

// InteractionEdges turns interaction events into direct-interaction edges.
// Events with the same (src, dst) pair are summed after decay.
func InteractionEdges(events []Interaction, ref time.Time) []Edge {
	type pair struct{ src, dst string }

	sums := make(map[pair]float64, len(events))

	for _, ev := range events {
		if ev.SrcID == "" || ev.DstID == "" {
			continue
		}

		sums[pair{ev.SrcID, ev.DstID}] += BaseWeight(ev.Type) * Decay(ev.CreatedAt, ref)
	}

	keys := make([]pair, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b pair) int {
		if c := strings.Compare(a.src, b.src); c != 0 {
			return c
		}

		return strings.Compare(a.dst, b.dst)
	})

	edges := make([]Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, Edge{Source: k.src, Target: k.dst, Type: TypeDirectInteraction, Weight: sums[k]})
	}

	return edges
}

// CoEngagementEdges links accounts that engaged with the same posts. Each
// shared post adds 1 to the pair's weight; the pair is normalized so the
// smaller id is the source.
func CoEngagementEdges(engagements []Engagement) []Edge {
	byPost := make(map[string]map[string]bool)

	for _, eng := range engagements {
		if eng.PostID == "" || eng.AccountID == "" {
			continue
		}

		accounts := byPost[eng.PostID]
		if accounts == nil {
			accounts = make(map[string]bool)
			byPost[eng.PostID] = accounts
		}

		accounts[eng.AccountID] = true
	}

	type pair struct{ src, dst string }

	shared := make(map[pair]float64)

	for _, accounts := range byPost {
		ids := make([]string, 0, len(accounts))
		for id := range accounts {
			ids = append(ids, id)
		}

		slices.Sort(ids)

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				shared[pair{ids[i], ids[j]}]++
			}
		}
	}

	keys := make([]pair, 0, len(shared))
	for k := range shared {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b pair) int {
		if c := strings.Compare(a.src, b.src); c != 0 {
			return c
		}

		return strings.Compare(a.dst, b.dst)
	})

	edges := make([]Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, Edge{Source: k.src, Target: k.dst, Type: TypeCoEngagement, Weight: shared[k]})
	}

	return edges
}

// EgoFollowEdges emits a thin ego edge toward every account the ego gained
// in the current interval.
func EgoFollowEdges(egoID string, newFollowers map[string]bool) []Edge {
	if egoID == "" || len(newFollowers) == 0 {
		return nil
	}

	ids := make([]string, 0, len(newFollowers))

	for id := range newFollowers {
		if id != egoID {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	edges := make([]Edge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, Edge{Source: egoID, Target: id, Type: TypeEgoFollow, Weight: 0.5})
	}

	return edges
}

// growthTopMatches is how many existing accounts each new follower is
// attached to.
const growthTopMatches = 5

// cohortMaxPeers caps peer edges between accounts that arrived together.
const cohortMaxPeers = 3

// GrowthEdges attaches new followers to the existing network by follower
// count similarity, then clusters the new arrivals themselves. Growth edges
// run existing -> new so the graph visibly grows outward; cohort edges link
// new pairs whose audience size is within a factor of five.
func GrowthEdges(nodes []Node, newFollowers map[string]bool, egoID string) []Edge {
	if len(newFollowers) == 0 {
		return nil
	}

	var arrived, existing []Node

	for _, n := range nodes {
		switch {
		case n.ID == egoID:
		case newFollowers[n.ID]:
			arrived = append(arrived, n)
		default:
			existing = append(existing, n)
		}
	}

	var edges []Edge

	type match struct {
		id    string
		score float64
	}

	for _, n := range arrived {
		var candidates []match

		for _, e := range existing {
			ratio := followerRatio(n.Followers, e.Followers)
			if ratio >= 100 {
				continue
			}

			candidates = append(candidates, match{e.ID, 1.0 / (1.0 + math.Log10(ratio+1))})
		}

		slices.SortFunc(candidates, func(a, b match) int {
			if a.score != b.score {
				if a.score > b.score {
					return -1
				}

				return 1
			}

			return strings.Compare(a.id, b.id)
		})

		if len(candidates) > growthTopMatches {
			candidates = candidates[:growthTopMatches]
		}

		for _, m := range candidates {
			edges = append(edges, Edge{Source: m.id, Target: n.ID, Type: TypeNetworkGrowth, Weight: m.score})
		}
	}

	for i := range arrived {
		peers := 0

		for j := i + 1; j < len(arrived); j++ {
			if peers >= cohortMaxPeers {
				break
			}

			ratio := followerRatio(arrived[i].Followers, arrived[j].Followers)
			if ratio >= 5 {
				continue
			}

			edges = append(edges, Edge{Source: arrived[i].ID, Target: arrived[j].ID, Type: TypeCohort, Weight: 0.5 / ratio})
			peers++
		}
	}

	return edges
}

// followerRatio compares two audience sizes as larger over smaller, with
// both floored at 1 so empty accounts do not blow up the ratio.
func followerRatio(a, b int64) float64 {
	if a < 1 {
		a = 1
	}

	if b < 1 {
		b = 1
	}

	if a < b {
		a, b = b, a
	}

	return float64(a) / float64(b)
}
