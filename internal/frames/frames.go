// Package frames turns stored collection data into renderable frames.
// A build resolves the cumulative node set, relationship flags, windowed
// engagement rows and the previous layout from the store, hands it all
// to pkg/graph, and persists the result. The query side serves stored
// frames back with the payload parsed.
package frames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/pkg/graph"
)

// DefaultTimeframeDays is the engagement window used when a caller does
// not pick one.
const DefaultTimeframeDays = 30

// builderVersion is recorded in every frame's build metadata.
const builderVersion = "1.0.0"

// BuildRequest identifies the frame to build.
type BuildRequest struct {
	// IntervalID selects the interval. Zero builds the latest interval.
	IntervalID int64

	// TimeframeDays bounds the engagement window. Zero means unbounded.
	TimeframeDays int

	// EgoID centers the frame. Empty builds a frame without an ego.
	EgoID string
}

// BuildResult pairs the persisted frame row with the payload it holds.
type BuildResult struct {
	Row   store.Frame
	Frame *graph.Frame
}

// Builder builds frames from stored data and serves them back.
type Builder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewBuilder returns a Builder over the given store.
func NewBuilder(st *store.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{store: st, logger: logger}
}

// Build assembles the frame for the requested interval and saves it.
// Derived rows for the interval are replaced in one transaction, so a
// rebuild is safe at any time and reproduces the same payload.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	iv, err := b.resolveInterval(ctx, req.IntervalID)
	if err != nil {
		return BuildResult{}, err
	}

	in, err := b.resolveInput(ctx, iv, req)
	if err != nil {
		return BuildResult{}, err
	}

	frame := graph.Build(in)

	row, err := b.persist(ctx, frame)
	if err != nil {
		return BuildResult{}, err
	}

	b.logger.Info("frame built",
		"interval_id", frame.IntervalID,
		"timeframe_days", frame.TimeframeDays,
		"nodes", frame.Stats.NodeCount,
		"edges", frame.Stats.EdgeCount,
		"communities", frame.Stats.CommunityCount)

	return BuildResult{Row: row, Frame: frame}, nil
}

func (b *Builder) resolveInterval(ctx context.Context, intervalID int64) (store.Interval, error) {
	if intervalID == 0 {
		iv, err := b.store.LatestInterval(ctx)
		if err != nil {
			return store.Interval{}, fmt.Errorf("resolving latest interval: %w", err)
		}

		return iv, nil
	}

	iv, err := b.store.GetInterval(ctx, intervalID)
	if err != nil {
		return store.Interval{}, fmt.Errorf("resolving interval %d: %w", intervalID, err)
	}

	return iv, nil
}

// resolveInput gathers everything graph.Build needs for one interval.
// The reference time is the interval end; membership is cumulative up
// to it and the engagement window extends timeframeDays back from it.
func (b *Builder) resolveInput(ctx context.Context, iv store.Interval, req BuildRequest) (graph.Input, error) {
	ref := iv.EndAt
	if ref.IsZero() {
		b.logger.Warn("interval has no end time", "interval_id", iv.ID)

		ref = time.Now().UTC()
	}

	followers, err := b.store.MembershipUpTo(ctx, store.KindFollowers, ref)
	if err != nil {
		return graph.Input{}, err
	}

	following, err := b.store.MembershipUpTo(ctx, store.KindFollowing, ref)
	if err != nil {
		return graph.Input{}, err
	}

	accounts, err := b.loadAccounts(ctx, followers, following, req.EgoID)
	if err != nil {
		return graph.Input{}, err
	}

	newIDs, err := b.store.NewFollowerIDs(ctx, iv.ID)
	if err != nil {
		return graph.Input{}, err
	}

	var windowStart time.Time
	if req.TimeframeDays > 0 {
		windowStart = ref.Add(-time.Duration(req.TimeframeDays) * 24 * time.Hour)
	}

	events, err := b.store.InteractionEventsBetween(ctx, windowStart, ref)
	if err != nil {
		return graph.Input{}, err
	}

	engagers, err := b.store.EngagersOnIntervalsBetween(ctx, windowStart, ref)
	if err != nil {
		return graph.Input{}, err
	}

	prev, err := b.previousPositions(ctx, iv.ID)
	if err != nil {
		return graph.Input{}, err
	}

	newFollowers := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		newFollowers[id] = true
	}

	return graph.Input{
		IntervalID:    iv.ID,
		TimeframeDays: req.TimeframeDays,
		ReferenceTime: ref,
		EgoID:         req.EgoID,
		Accounts:      accounts,
		Followers:     boolSet(followers),
		Following:     boolSet(following),
		NewFollowers:  newFollowers,
		Interactions:  toInteractions(events),
		Engagements:   toEngagements(engagers),
		PrevPositions: prev,
	}, nil
}

// loadAccounts resolves the membership union plus the ego into graph
// accounts sorted by id. Members without a stored account row are
// skipped; there is no profile to render for them.
func (b *Builder) loadAccounts(ctx context.Context, followers, following map[string]struct{}, egoID string) ([]graph.Account, error) {
	seen := make(map[string]struct{}, len(followers)+len(following)+1)
	ids := make([]string, 0, len(followers)+len(following)+1)

	add := func(id string) {
		if id == "" {
			return
		}

		if _, ok := seen[id]; ok {
			return
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for id := range followers {
		add(id)
	}

	for id := range following {
		add(id)
	}

	add(egoID)

	slices.Sort(ids)

	rows, err := b.store.AccountsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	accounts := make([]graph.Account, 0, len(rows))

	for _, id := range ids {
		row, ok := rows[id]
		if !ok {
			continue
		}

		accounts = append(accounts, graph.Account{
			ID:        row.ID,
			Handle:    row.Handle,
			Name:      row.Name,
			AvatarURL: row.AvatarURL,
			Followers: row.FollowersCount,
		})
	}

	return accounts, nil
}

// previousPositions loads the previous interval's layout to seed this
// one. A first interval has no predecessor and seeds from scratch.
func (b *Builder) previousPositions(ctx context.Context, intervalID int64) (map[string]graph.Point, error) {
	prev, err := b.store.PreviousInterval(ctx, intervalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("resolving previous interval: %w", err)
	}

	rows, err := b.store.PositionsForInterval(ctx, prev.ID)
	if err != nil {
		return nil, err
	}

	points := make(map[string]graph.Point, len(rows))
	for id, p := range rows {
		points[id] = graph.Point{X: p.X, Y: p.Y, Z: p.Z}
	}

	return points, nil
}

// buildMeta is the build_meta_json payload attached to a saved frame.
type buildMeta struct {
	Version string `json:"version"`
	BuiltAt string `json:"built_at"`
}

// persist saves the frame with its derived rows and returns the stored
// row, created_at included.
func (b *Builder) persist(ctx context.Context, frame *graph.Frame) (store.Frame, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return store.Frame{}, fmt.Errorf("encoding frame payload: %w", err)
	}

	meta, err := json.Marshal(buildMeta{
		Version: builderVersion,
		BuiltAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return store.Frame{}, fmt.Errorf("encoding build metadata: %w", err)
	}

	timeframe := int64(frame.TimeframeDays)

	_, err = b.store.SaveFrame(ctx, store.FrameData{
		Frame: store.Frame{
			IntervalID:      frame.IntervalID,
			TimeframeWindow: timeframe,
			FrameJSON:       string(payload),
			NodeCount:       int64(frame.Stats.NodeCount),
			EdgeCount:       int64(frame.Stats.EdgeCount),
			BuildMetaJSON:   string(meta),
		},
		Edges:       frameEdges(frame),
		Communities: frameCommunities(frame),
		Positions:   framePositions(frame),
	})
	if err != nil {
		return store.Frame{}, err
	}

	row, err := b.store.GetFrame(ctx, frame.IntervalID, timeframe)
	if err != nil {
		return store.Frame{}, fmt.Errorf("re-reading saved frame: %w", err)
	}

	return row, nil
}

func frameEdges(f *graph.Frame) []store.Edge {
	edges := make([]store.Edge, 0, len(f.Edges))

	for _, e := range f.Edges {
		edges = append(edges, store.Edge{
			IntervalID: f.IntervalID,
			SrcID:      e.Source,
			DstID:      e.Target,
			Type:       e.Type,
			Weight:     e.Weight,
		})
	}

	return edges
}

func frameCommunities(f *graph.Frame) []store.Community {
	communities := make([]store.Community, 0, len(f.Nodes))

	for _, n := range f.Nodes {
		communities = append(communities, store.Community{
			IntervalID:  f.IntervalID,
			AccountID:   n.ID,
			CommunityID: int64(n.Community),
		})
	}

	return communities
}

func framePositions(f *graph.Frame) []store.Position {
	positions := make([]store.Position, 0, len(f.Nodes))

	for _, n := range f.Nodes {
		positions = append(positions, store.Position{
			IntervalID: f.IntervalID,
			AccountID:  n.ID,
			X:          n.X,
			Y:          n.Y,
			Z:          n.Z,
		})
	}

	return positions
}

func boolSet(ids map[string]struct{}) map[string]bool {
	out := make(map[string]bool, len(ids))
	for id := range ids {
		out[id] = true
	}

	return out
}

func toInteractions(events []store.InteractionEvent) []graph.Interaction {
	out := make([]graph.Interaction, 0, len(events))

	for _, ev := range events {
		out = append(out, graph.Interaction{
			SrcID:     ev.SrcID,
			DstID:     ev.DstID,
			Type:      ev.Type,
			CreatedAt: ev.CreatedAt,
		})
	}

	return out
}

func toEngagements(rows []store.PostEngager) []graph.Engagement {
	out := make([]graph.Engagement, 0, len(rows))

	for _, pe := range rows {
		out = append(out, graph.Engagement{PostID: pe.PostID, AccountID: pe.AccountID})
	}

	return out
}
