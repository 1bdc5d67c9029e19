// Package graph builds renderable 3-D social graph frames from follow
// membership, interaction events, and engagement rows. Everything here is
// pure computation: callers resolve the data up front, Build turns it into
// a frame, and Interpolate blends two frames for timeline playback. Given
// identical inputs the output JSON is byte-identical.
package graph

import (
	"math"
	"slices"
	"time"
)

// Edge type tags carried into the frame payload.
const (
	TypeDirectInteraction = "direct_interaction"
	TypeCoEngagement      = "co_engagement"
	TypeEgoFollow         = "ego_follow"
	TypeNetworkGrowth     = "network_growth"
	TypeCohort            = "cohort"
	TypeMutual            = "mutual"
	TypeYouFollow         = "you_follow"
	TypeFollowersYou      = "followers_you"
	TypeFallbackEgo       = "fallback_ego"
)

// Rendering limits. Pruning guarantees a frame never exceeds them.
const (
	MaxNodes        = 2000
	MaxEdges        = 12000
	MaxEdgesPerNode = 50
	MinFollowers    = 500
)

// Account is the per-node input to a frame build.
type Account struct {
	ID        string
	Handle    string
	Name      string
	AvatarURL string
	Followers int64
}

// Interaction is one directed engagement event between two accounts.
type Interaction struct {
	SrcID     string
	DstID     string
	Type      string
	CreatedAt time.Time
}

// Engagement records that an account engaged with a post.
type Engagement struct {
	PostID    string
	AccountID string
}

// Point is a 3-D position.
type Point struct {
	X, Y, Z float64
}

// Node is one rendered account in a frame.
type Node struct {
	ID         string  `json:"id"`
	Handle     string  `json:"handle"`
	Name       string  `json:"name"`
	Avatar     string  `json:"avatar"`
	Followers  int64   `json:"followers"`
	Importance float64 `json:"importance"`
	Community  int     `json:"community"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	IsNew      bool    `json:"isNew"`
	IsEgo      bool    `json:"isEgo"`
}

// Edge is one weighted directed edge in a frame.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// Stats summarizes a frame.
type Stats struct {
	NodeCount      int `json:"nodeCount"`
	EdgeCount      int `json:"edgeCount"`
	CommunityCount int `json:"communityCount"`
	NewFollowers   int `json:"newFollowers"`
}

// Frame is the serialized graph for one (interval, timeframe) pair.
type Frame struct {
	IntervalID    int64  `json:"interval_id"`
	TimeframeDays int    `json:"timeframe_days"`
	Timestamp     string `json:"timestamp"`
	EgoID         string `json:"ego_id,omitempty"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
	Communities   []int  `json:"communities"`
	Stats         Stats  `json:"stats"`
}

// Empty returns a frame with no nodes for intervals that have no members
// yet, or for queries that found no stored frame at all.
func Empty(intervalID int64, timeframeDays int, at time.Time) *Frame {
	return &Frame{
		IntervalID:    intervalID,
		TimeframeDays: timeframeDays,
		Timestamp:     at.UTC().Format(time.RFC3339),
		Nodes:         []Node{},
		Edges:         []Edge{},
		Communities:   []int{},
		Stats:         Stats{},
	}
}

// communityList returns the distinct community ids among nodes, ascending.
func communityList(nodes []Node) []int {
	seen := make(map[int]bool, len(nodes))

	for _, n := range nodes {
		seen[n.Community] = true
	}

	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}

	slices.Sort(out)

	return out
}

// roundTo rounds v to the given number of decimal digits.
func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))

	return math.Round(v*p) / p
}
