package graph

import (
	"math/rand"
	"slices"
	"strings"
	"time"
)

// Input carries everything a frame build needs, resolved ahead of time.
// Accounts is the cumulative node set including the ego; Followers,
// Following and NewFollowers are membership sets keyed by account id;
// Interactions and Engagements are already windowed to the frame's
// timeframe; PrevPositions seeds the layout from the previous interval.
type Input struct {
	IntervalID    int64
	TimeframeDays int
	ReferenceTime time.Time
	EgoID         string

	Accounts     []Account
	Followers    map[string]bool
	Following    map[string]bool
	NewFollowers map[string]bool

	Interactions []Interaction
	Engagements  []Engagement

	PrevPositions map[string]Point
}

// Build assembles the full frame: source edges, tier routing, duplicate
// resolution, pruning, communities, layout, payload. The layout PRNG is
// seeded from (interval, timeframe), so rebuilding the same interval
// yields a byte-identical frame.
func Build(in Input) *Frame {
	nodes := buildNodes(in)
	if len(nodes) == 0 {
		return Empty(in.IntervalID, in.TimeframeDays, in.ReferenceTime)
	}

	mutual := make(map[string]bool)

	for id := range in.Followers {
		if in.Following[id] {
			mutual[id] = true
		}
	}

	var edges []Edge

	edges = append(edges, InteractionEdges(in.Interactions, in.ReferenceTime)...)
	edges = append(edges, CoEngagementEdges(in.Engagements)...)
	edges = append(edges, EgoFollowEdges(in.EgoID, in.NewFollowers)...)
	edges = append(edges, GrowthEdges(nodes, in.NewFollowers, in.EgoID)...)
	edges = append(edges, RouteEdges(nodes, in.EgoID, mutual, in.Followers, in.Following)...)

	edges = ResolveDuplicates(edges)

	nodes, edges = Prune(nodes, edges, MaxNodes, MinFollowers, in.EgoID)
	nodes = ensureEgo(nodes, in)

	AssignCommunities(nodes, edges, in.EgoID)

	rng := rand.New(rand.NewSource(layoutSeed(in.IntervalID, in.TimeframeDays)))
	Layout(nodes, edges, in.EgoID, in.PrevPositions, rng)

	return assemble(in, nodes, edges)
}

// buildNodes turns the input accounts into graph nodes sorted by id. The
// ego starts at full importance; everyone else is scored during pruning.
func buildNodes(in Input) []Node {
	accounts := slices.Clone(in.Accounts)

	slices.SortFunc(accounts, func(a, b Account) int {
		return strings.Compare(a.ID, b.ID)
	})

	nodes := make([]Node, 0, len(accounts))

	for _, a := range accounts {
		if a.ID == "" {
			continue
		}

		isEgo := in.EgoID != "" && a.ID == in.EgoID

		var importance float64
		if isEgo {
			importance = 1.0
		}

		nodes = append(nodes, Node{
			ID:         a.ID,
			Handle:     a.Handle,
			Name:       a.Name,
			Avatar:     a.AvatarURL,
			Followers:  a.Followers,
			Importance: importance,
			IsNew:      in.NewFollowers[a.ID],
			IsEgo:      isEgo,
		})
	}

	return nodes
}

// ensureEgo re-adds the ego if pruning cut it, so the frame always has its
// center.
func ensureEgo(nodes []Node, in Input) []Node {
	if in.EgoID == "" {
		return nodes
	}

	for _, n := range nodes {
		if n.ID == in.EgoID {
			return nodes
		}
	}

	for _, a := range in.Accounts {
		if a.ID != in.EgoID {
			continue
		}

		return append(nodes, Node{
			ID:         a.ID,
			Handle:     a.Handle,
			Name:       a.Name,
			Avatar:     a.AvatarURL,
			Followers:  a.Followers,
			Importance: 1.0,
			IsNew:      false,
			IsEgo:      true,
		})
	}

	return nodes
}

// assemble rounds the computed values and packs the payload.
func assemble(in Input, nodes []Node, edges []Edge) *Frame {
	for i := range nodes {
		nodes[i].Importance = roundTo(nodes[i].Importance, 4)
		nodes[i].X = roundTo(nodes[i].X, 2)
		nodes[i].Y = roundTo(nodes[i].Y, 2)
		nodes[i].Z = roundTo(nodes[i].Z, 2)
	}

	for i := range edges {
		edges[i].Weight = roundTo(edges[i].Weight, 4)
	}

	newFollowers := 0

	for _, n := range nodes {
		if n.IsNew {
			newFollowers++
		}
	}

	communities := communityList(nodes)

	return &Frame{
		IntervalID:    in.IntervalID,
		TimeframeDays: in.TimeframeDays,
		Timestamp:     in.ReferenceTime.UTC().Format(time.RFC3339),
		EgoID:         in.EgoID,
		Nodes:         nodes,
		Edges:         edges,
		Communities:   communities,
		Stats: Stats{
			NodeCount:      len(nodes),
			EdgeCount:      len(edges),
			CommunityCount: len(communities),
			NewFollowers:   newFollowers,
		},
	}
}

// layoutSeed folds the frame key into a PRNG seed.
func layoutSeed(intervalID int64, timeframeDays int) int64 {
	return intervalID*1_000_003 + int64(timeframeDays)
}
