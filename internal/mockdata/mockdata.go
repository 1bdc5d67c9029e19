// Package mockdata seeds deterministic synthetic posts and cached
// attribution payloads so the graph UI has something to render before
// a real collection history exists. Everything it writes carries the
// mock prefixes and the is_mock payload flag, so a reseed can replace
// it without touching collected rows. Values derive from per-interval
// seeded RNGs: the same store state seeds the same posts.
package mockdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/store"
)

// PostPrefix starts the id of every seeded post, so cleanup and
// rebuilds can target them.
const PostPrefix = "mock_post_"

// Fixed ids of the synthetic author and follower accounts.
const (
	authorID      = "mock_author"
	accountPrefix = "mock_user_"
)

// accountTarget is how many accounts the store is padded up to before
// attributed followers are sampled.
const accountTarget = 80

// sampleAccounts caps how many stored accounts the sampler draws from.
const sampleAccounts = 500

var postSnippets = []string{
	"Shipping the timeline stability pass today. Clusters are locking in.",
	"Mapping new follower bursts to post waves. Early results look strong.",
	"Trying a tighter attribution window to reduce noise in the graph.",
	"Community bridges are showing up after the last post drop.",
	"New co-engagement clusters formed within the first 24 hours.",
	"Testing a lighter layout pass for smoother replay.",
	"Exploring how replies reshape the core cluster.",
	"Focusing on high-signal posts to cut the long tail.",
}

var evidencePool = []string{
	"Direct engagement within 24h window",
	"Follower delta spike in next interval",
	"Shared co-engagement cluster with post engagers",
	"Mentions and replies concentrated in same window",
	"High overlap with top engagers",
}

// Seeder writes mock posts and attributions into a store.
type Seeder struct {
	store  *store.Store
	logger *slog.Logger
}

// New returns a Seeder over the given store.
func New(st *store.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Seeder{store: st, logger: logger}
}

// Seed generates synthetic posts across the stored intervals, caches
// matching attribution payloads for the request's timeframe and
// returns them oldest first. Without stored intervals a daily ladder
// of synthetic ones stands in. Rebuild clears previously seeded rows
// first.
func (s *Seeder) Seed(ctx context.Context, req attribution.Request) ([]attribution.Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = attribution.DefaultLimit
	}

	err := s.ensureAccounts(ctx)
	if err != nil {
		return nil, err
	}

	results, err := s.generate(ctx, req.TimeframeDays, limit)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, nil
	}

	err = s.ensureAuthor(ctx)
	if err != nil {
		return nil, err
	}

	if req.Rebuild {
		err = s.clear(ctx, int64(req.TimeframeDays))
		if err != nil {
			return nil, err
		}
	}

	err = s.persist(ctx, int64(req.TimeframeDays), results)
	if err != nil {
		return nil, err
	}

	s.logger.Info("mock attributions seeded",
		"timeframe_days", req.TimeframeDays,
		"posts", len(results))

	return results, nil
}

// ensureAccounts pads the account table up to the sampling target with
// numbered synthetic profiles.
func (s *Seeder) ensureAccounts(ctx context.Context) error {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return err
	}

	if stats.TotalAccounts >= accountTarget {
		return nil
	}

	now := time.Now().UTC()
	accounts := make([]store.Account, 0, accountTarget-stats.TotalAccounts)

	for n := stats.TotalAccounts + 1; n <= accountTarget; n++ {
		accounts = append(accounts, store.Account{
			ID:         fmt.Sprintf("%s%d", accountPrefix, n),
			Handle:     fmt.Sprintf("mockuser%d", n),
			Name:       fmt.Sprintf("Mock User %d", n),
			Bio:        "Synthetic account for mock attribution previews.",
			LastSeenAt: now,
		})
	}

	return s.store.UpsertAccounts(ctx, accounts)
}

// ensureAuthor creates the synthetic author the seeded posts hang off
// of, leaving an existing row untouched.
func (s *Seeder) ensureAuthor(ctx context.Context) error {
	_, err := s.store.GetAccount(ctx, authorID)
	if err == nil {
		return nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return s.store.UpsertAccount(ctx, store.Account{
		ID:         authorID,
		Handle:     "mockdata",
		Name:       "Mock Author",
		Bio:        "Synthetic author for mock attribution previews.",
		LastSeenAt: time.Now().UTC(),
	})
}

// intervalRef is the slice of an interval the generator needs.
type intervalRef struct {
	id    int64
	endAt time.Time
}

// intervals returns the oldest stored intervals, or a synthetic daily
// ladder ending today when nothing has been collected yet.
func (s *Seeder) intervals(ctx context.Context, limit int) ([]intervalRef, error) {
	stored, err := s.store.ListIntervalsAscending(ctx, limit)
	if err != nil {
		return nil, err
	}

	if len(stored) > 0 {
		refs := make([]intervalRef, len(stored))
		for i, iv := range stored {
			refs[i] = intervalRef{id: iv.ID, endAt: iv.EndAt}
		}

		return refs, nil
	}

	count := max(6, min(limit, 12))
	now := time.Now().UTC()
	refs := make([]intervalRef, count)

	for i := range refs {
		refs[i] = intervalRef{
			id:    int64(i + 1),
			endAt: now.AddDate(0, 0, -(count - 1 - i)),
		}
	}

	return refs, nil
}

// generate builds the payloads. The first and last interval always get
// a post so a preview spans the whole timeline; the ones between post
// at random, one or occasionally two per interval.
func (s *Seeder) generate(ctx context.Context, timeframeDays, limit int) ([]attribution.Result, error) {
	refs, err := s.intervals(ctx, limit)
	if err != nil {
		return nil, err
	}

	accounts, err := s.store.ListAccounts(ctx, sampleAccounts, "")
	if err != nil {
		return nil, err
	}

	accountIDs := make([]string, len(accounts))
	for i, a := range accounts {
		accountIDs[i] = a.ID
	}

	var results []attribution.Result

	for i, ref := range refs {
		seed := ref.id*101 + int64(i)*17
		rng := rand.New(rand.NewSource(seed))

		if i != 0 && i != len(refs)-1 && rng.Float64() <= 0.55 {
			continue
		}

		postCount := 1
		if rng.Float64() > 0.7 {
			postCount = 2
		}

		for j := 0; j < postCount; j++ {
			res, err := s.mockPost(ctx, ref, j, seed, accountIDs, timeframeDays)
			if err != nil {
				return nil, err
			}

			results = append(results, res)
		}
	}

	slices.SortStableFunc(results, func(a, b attribution.Result) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return results, nil
}

// mockPost builds one payload from a post-scoped RNG, so a given
// (interval, index) pair always yields the same numbers.
func (s *Seeder) mockPost(ctx context.Context, ref intervalRef, postIndex int, seedBase int64, accountIDs []string, timeframeDays int) (attribution.Result, error) {
	rng := rand.New(rand.NewSource(seedBase + int64(postIndex)*37))

	snippet := postSnippets[(ref.id+int64(postIndex))%int64(len(postSnippets))]

	total := 6 + rng.Intn(15)
	if total > len(accountIDs) {
		total = len(accountIDs)
	}

	var high, medium int
	if total > 0 {
		high = max(1, int(float64(total)*(0.35+rng.Float64()*0.15)))
		medium = max(1, int(float64(total)*(0.35+rng.Float64()*0.15)))
	}

	low := max(total-high-medium, 0)

	attributed := pickUnique(accountIDs, total, rng)

	communityIDs, err := s.communityIDs(ctx, ref.id, attributed)
	if err != nil {
		return attribution.Result{}, err
	}

	evidenceCount := 2
	if rng.Float64() > 0.6 {
		evidenceCount = 3
	}

	evidence := pickUnique(evidencePool, evidenceCount, rng)

	createdAt := ref.endAt.Add(-time.Duration(1+rng.Intn(6)) * time.Hour)

	return attribution.Result{
		PostID:     fmt.Sprintf("%s%d_%d", PostPrefix, ref.id, postIndex),
		IntervalID: ref.id,
		CreatedAt:  createdAt,
		Text:       snippet,
		Metrics: attribution.Metrics{
			Likes:   int64(40 + rng.Intn(421)),
			Replies: int64(5 + rng.Intn(71)),
			Reposts: int64(10 + rng.Intn(111)),
			Quotes:  int64(2 + rng.Intn(23)),
		},
		Attribution:   attribution.Counts{High: high, Medium: medium, Low: low},
		Evidence:      evidence,
		FollowerDelta: max(total, 1) + rng.Intn(7),
		AttributedIDs: attributed,
		CommunityIDs:  communityIDs,
		TimeframeDays: timeframeDays,
		IsMock:        true,
	}, nil
}

// communityIDs reads the attributed accounts' communities at the
// interval; without any it hashes each account into one of five
// buckets so the preview still shows community coloring.
func (s *Seeder) communityIDs(ctx context.Context, intervalID int64, accountIDs []string) ([]int64, error) {
	if len(accountIDs) == 0 {
		return []int64{}, nil
	}

	ids, err := s.store.CommunityIDsForAccounts(ctx, intervalID, accountIDs)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		return ids, nil
	}

	seen := make(map[int64]struct{})

	for _, id := range accountIDs {
		var sum int64
		for _, b := range []byte(id) {
			sum += int64(b)
		}

		seen[sum%5] = struct{}{}
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	slices.Sort(out)

	return out, nil
}

// clear removes previously seeded rows: the timeframe's cached mock
// attributions and every mock post.
func (s *Seeder) clear(ctx context.Context, timeframe int64) error {
	attrs, err := s.store.DeleteAttributionsWithPrefix(ctx, timeframe, PostPrefix)
	if err != nil {
		return err
	}

	posts, err := s.store.DeletePostsWithPrefix(ctx, PostPrefix)
	if err != nil {
		return err
	}

	if attrs > 0 || posts > 0 {
		s.logger.Info("mock rows cleared", "attributions", attrs, "posts", posts)
	}

	return nil
}

// persist writes the post rows and caches each payload. The cache row
// only references the interval when it really exists; the synthetic
// ladder's ids stay payload-only.
func (s *Seeder) persist(ctx context.Context, timeframe int64, results []attribution.Result) error {
	now := time.Now().UTC()

	posts := make([]store.Post, len(results))

	for i, res := range results {
		metrics, err := json.Marshal(res.Metrics)
		if err != nil {
			return fmt.Errorf("encoding metrics for %s: %w", res.PostID, err)
		}

		posts[i] = store.Post{
			ID:          res.PostID,
			AuthorID:    authorID,
			CreatedAt:   res.CreatedAt,
			Text:        res.Text,
			MetricsJSON: string(metrics),
			LastSeenAt:  now,
		}
	}

	err := s.store.UpsertPosts(ctx, posts)
	if err != nil {
		return err
	}

	known := make(map[int64]bool)

	for _, res := range results {
		exists, ok := known[res.IntervalID]
		if !ok {
			_, err := s.store.GetInterval(ctx, res.IntervalID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}

			exists = err == nil
			known[res.IntervalID] = exists
		}

		rowIntervalID := res.IntervalID
		if !exists {
			rowIntervalID = 0
		}

		payload, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encoding attribution for %s: %w", res.PostID, err)
		}

		err = s.store.UpsertPostAttribution(ctx, store.PostAttribution{
			PostID:          res.PostID,
			IntervalID:      rowIntervalID,
			TimeframeWindow: timeframe,
			CreatedAt:       res.CreatedAt,
			PayloadJSON:     string(payload),
			BuiltAt:         now,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// pickUnique samples count distinct items, order decided by the rng.
func pickUnique(items []string, count int, rng *rand.Rand) []string {
	if count <= 0 || len(items) == 0 {
		return []string{}
	}

	if count > len(items) {
		count = len(items)
	}

	picked := make([]string, count)
	for i, idx := range rng.Perm(len(items))[:count] {
		picked[i] = items[idx]
	}

	return picked
}
