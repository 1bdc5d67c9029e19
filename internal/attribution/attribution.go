// Package attribution scores posts against follower growth. For each
// recent post it locates the collection interval the post falls into,
// gathers the follow events of the lookback window after it, and
// buckets the new followers by how strongly the post can claim them:
// high when they also engaged with the post, medium when they arrived
// in the post's own interval, low when they merely arrived within the
// lookback. Computed payloads are cached per (post, timeframe) and
// served from the cache until a rebuild.
package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fieldline/orbit/internal/store"
)

// Defaults applied when a request leaves the field zero.
const (
	DefaultTimeframeDays = 30
	DefaultLimit         = 20
)

// defaultLookbackDays is how far past a post's creation follow events
// still count toward it.
const defaultLookbackDays = 7

// nearestIntervalScan caps how many intervals are examined when a post
// predates or postdates every recorded interval.
const nearestIntervalScan = 200

// Metrics are a post's public engagement counts.
type Metrics struct {
	Likes   int64 `json:"likes"`
	Replies int64 `json:"replies"`
	Reposts int64 `json:"reposts"`
	Quotes  int64 `json:"quotes"`
}

// Counts buckets attributed followers by confidence.
type Counts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Result is the attribution payload for one post, served as-is by the
// API and cached verbatim in the store.
type Result struct {
	PostID        string    `json:"id"`
	IntervalID    int64     `json:"interval_id"`
	CreatedAt     time.Time `json:"created_at"`
	Text          string    `json:"text"`
	Metrics       Metrics   `json:"metrics"`
	Attribution   Counts    `json:"attribution"`
	Evidence      []string  `json:"evidence"`
	FollowerDelta int       `json:"follower_delta"`
	AttributedIDs []string  `json:"attributed_follower_ids"`
	CommunityIDs  []int64   `json:"community_ids"`
	TimeframeDays int       `json:"timeframe_days"`
	IsMock        bool      `json:"is_mock"`
}

// Request bounds an attribution build.
type Request struct {
	// TimeframeDays restricts the build to posts authored within the
	// last N days before the reference time. Zero or negative scores
	// every stored post.
	TimeframeDays int

	// Limit caps how many posts are scored, newest first. Zero uses
	// DefaultLimit.
	Limit int

	// Rebuild discards the cached results for the timeframe before
	// computing.
	Rebuild bool
}

// Config wires a Builder.
type Config struct {
	Store *store.Store

	// LookbackDays overrides how long a post keeps claiming follow
	// events. Zero uses the default.
	LookbackDays int

	Logger *slog.Logger
}

// Builder computes and caches post attributions.
type Builder struct {
	store    *store.Store
	lookback time.Duration
	logger   *slog.Logger
}

// New builds a Builder. A zero lookback falls back to the default and
// a nil logger to slog.Default.
func New(cfg Config) *Builder {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Builder{
		store:    cfg.Store,
		lookback: time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		logger:   cfg.Logger,
	}
}

// Build returns attributions for the timeframe's most recent posts.
// Cached results satisfy the call when present; otherwise each post is
// scored and the payload cached. Posts that cannot be matched to any
// interval are skipped.
func (b *Builder) Build(ctx context.Context, req Request) ([]Result, error) {
	timeframe := int64(req.TimeframeDays)

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if req.Rebuild {
		n, err := b.store.DeleteAttributionsForTimeframe(ctx, timeframe)
		if err != nil {
			return nil, err
		}

		if n > 0 {
			b.logger.Info("attribution cache cleared", "timeframe_days", req.TimeframeDays, "rows", n)
		}
	} else {
		cached, err := b.cached(ctx, timeframe, limit)
		if err != nil {
			return nil, err
		}

		if len(cached) > 0 {
			return cached, nil
		}
	}

	ref, err := b.referenceTime(ctx)
	if err != nil {
		return nil, err
	}

	var since time.Time
	if req.TimeframeDays > 0 {
		since = ref.Add(-time.Duration(req.TimeframeDays) * 24 * time.Hour)
	}

	posts, err := b.store.ListPostsSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(posts))

	for _, p := range posts {
		res, ok, err := b.compute(ctx, p, req.TimeframeDays)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		err = b.persist(ctx, p, res)
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	b.logger.Info("attributions built",
		"timeframe_days", req.TimeframeDays,
		"posts", len(results))

	return results, nil
}

// cached loads stored payloads for a timeframe, newest post first.
// Unreadable payloads are dropped rather than failing the listing.
func (b *Builder) cached(ctx context.Context, timeframe int64, limit int) ([]Result, error) {
	rows, err := b.store.ListPostAttributions(ctx, timeframe, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))

	for _, row := range rows {
		var res Result

		err = json.Unmarshal([]byte(row.PayloadJSON), &res)
		if err != nil {
			b.logger.Warn("dropping unreadable attribution payload",
				"post_id", row.PostID, "error", err)

			continue
		}

		results = append(results, res)
	}

	return results, nil
}

// referenceTime anchors the timeframe at the latest interval end, or
// now when nothing has been collected yet.
func (b *Builder) referenceTime(ctx context.Context) (time.Time, error) {
	iv, err := b.store.LatestInterval(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return time.Now().UTC(), nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("resolving reference time: %w", err)
	}

	return iv.EndAt, nil
}

// compute scores one post. The second return is false when no interval
// exists to attribute against.
func (b *Builder) compute(ctx context.Context, p store.Post, timeframeDays int) (Result, bool, error) {
	iv, ok, err := b.postInterval(ctx, p)
	if err != nil || !ok {
		return Result{}, false, err
	}

	intervalIDs, err := b.lookbackIntervalIDs(ctx, p.CreatedAt, iv.ID)
	if err != nil {
		return Result{}, false, err
	}

	newFollowers, err := b.store.NewFollowerIDsIn(ctx, intervalIDs)
	if err != nil {
		return Result{}, false, err
	}

	engagers, err := b.engagerIDs(ctx, p.ID)
	if err != nil {
		return Result{}, false, err
	}

	high := intersect(newFollowers, engagers)

	sameInterval, err := b.store.NewFollowerIDs(ctx, iv.ID)
	if err != nil {
		return Result{}, false, err
	}

	medium := make(map[string]struct{}, len(sameInterval))

	for _, id := range sameInterval {
		if _, ok := high[id]; !ok {
			medium[id] = struct{}{}
		}
	}

	low := make(map[string]struct{}, len(newFollowers))

	for id := range newFollowers {
		if _, inHigh := high[id]; inHigh {
			continue
		}

		if _, inMedium := medium[id]; inMedium {
			continue
		}

		low[id] = struct{}{}
	}

	evidence := []string{}
	if len(engagers) > 0 {
		evidence = append(evidence, "Direct engagement within attribution window")
	}

	evidence = append(evidence, "New followers in same interval as post")

	if len(intervalIDs) > 1 {
		evidence = append(evidence, "Followed within lookback window")
	}

	attributed := unionSorted(high, medium, low)

	communityIDs, err := b.store.CommunityIDsForAccounts(ctx, iv.ID, attributed)
	if err != nil {
		return Result{}, false, err
	}

	if communityIDs == nil {
		communityIDs = []int64{}
	}

	return Result{
		PostID:        p.ID,
		IntervalID:    iv.ID,
		CreatedAt:     p.CreatedAt,
		Text:          p.Text,
		Metrics:       parseMetrics(p.MetricsJSON),
		Attribution:   Counts{High: len(high), Medium: len(medium), Low: len(low)},
		Evidence:      evidence,
		FollowerDelta: len(medium),
		AttributedIDs: attributed,
		CommunityIDs:  communityIDs,
		TimeframeDays: timeframeDays,
	}, true, nil
}

// postInterval resolves the interval a post belongs to: the one
// containing its creation time, else the recorded interval whose end
// lies nearest to it. The second return is false when no intervals
// exist at all.
func (b *Builder) postInterval(ctx context.Context, p store.Post) (store.Interval, bool, error) {
	iv, err := b.store.IntervalContaining(ctx, p.CreatedAt)
	if err == nil {
		return iv, true, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return store.Interval{}, false, fmt.Errorf("resolving interval for post %s: %w", p.ID, err)
	}

	intervals, err := b.store.ListIntervals(ctx, nearestIntervalScan)
	if err != nil {
		return store.Interval{}, false, err
	}

	if len(intervals) == 0 {
		return store.Interval{}, false, nil
	}

	best := intervals[0]

	for _, candidate := range intervals[1:] {
		if absDuration(candidate.EndAt.Sub(p.CreatedAt)) < absDuration(best.EndAt.Sub(p.CreatedAt)) {
			best = candidate
		}
	}

	return best, true, nil
}

// lookbackIntervalIDs returns the intervals whose ends fall within the
// lookback window after the post, the post's own interval included.
func (b *Builder) lookbackIntervalIDs(ctx context.Context, createdAt time.Time, postIntervalID int64) ([]int64, error) {
	intervals, err := b.store.IntervalsEndingBetween(ctx, createdAt, createdAt.Add(b.lookback))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(intervals)+1)
	for _, iv := range intervals {
		ids = append(ids, iv.ID)
	}

	if !slices.Contains(ids, postIntervalID) {
		ids = append(ids, postIntervalID)
	}

	return ids, nil
}

// engagerIDs returns every account that touched the post: listed
// engagers plus the sources of interaction events referencing it.
func (b *Builder) engagerIDs(ctx context.Context, postID string) (map[string]struct{}, error) {
	ids, err := b.store.EngagerIDsForPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	srcs, err := b.store.InteractionSrcIDsForPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	for id := range srcs {
		ids[id] = struct{}{}
	}

	return ids, nil
}

// persist caches one computed payload, replacing any earlier build for
// the same (post, timeframe).
func (b *Builder) persist(ctx context.Context, p store.Post, res Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding attribution for post %s: %w", p.ID, err)
	}

	return b.store.UpsertPostAttribution(ctx, store.PostAttribution{
		PostID:          p.ID,
		IntervalID:      res.IntervalID,
		TimeframeWindow: int64(res.TimeframeDays),
		CreatedAt:       p.CreatedAt,
		PayloadJSON:     string(payload),
		BuiltAt:         time.Now().UTC(),
	})
}

// parseMetrics reads a post's stored metrics JSON. Both the collector's
// key names and the short mock names are accepted; anything unreadable
// counts as zero.
func parseMetrics(metricsJSON string) Metrics {
	if metricsJSON == "" {
		return Metrics{}
	}

	var raw map[string]json.Number

	err := json.Unmarshal([]byte(metricsJSON), &raw)
	if err != nil {
		return Metrics{}
	}

	return Metrics{
		Likes:   metricValue(raw, "like_count", "likes"),
		Replies: metricValue(raw, "reply_count", "replies"),
		Reposts: metricValue(raw, "retweet_count", "reposts"),
		Quotes:  metricValue(raw, "quote_count", "quotes"),
	}
}

func metricValue(raw map[string]json.Number, key, alias string) int64 {
	v, ok := raw[key]
	if !ok {
		v, ok = raw[alias]
	}

	if !ok {
		return 0
	}

	n, err := v.Int64()
	if err != nil {
		return 0
	}

	return n
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})

	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}

	return out
}

func unionSorted(sets ...map[string]struct{}) []string {
	seen := make(map[string]struct{})

	for _, set := range sets {
		for id := range set {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}

	return d
}
