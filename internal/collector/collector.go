// Package collector runs full ingestion cycles against the upstream
// providers: snapshot the ego's follower and following lists, diff them
// against the previous snapshots, and sweep up the engagement events
// that later feed attribution. Every fetched page lands in the raw
// archive before it is normalized, so a crashed run can be replayed
// without re-fetching.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/internal/upstream"
	"github.com/fieldline/orbit/pkg/observability"
)

// Sentinel errors surfaced by the collector.
var (
	// ErrNoEgo is returned when a request names neither a handle nor an id.
	ErrNoEgo = errors.New("collector: no ego handle or id given")
	// ErrNoHandle is returned when an ego id cannot be resolved to a
	// handle, which the bulk listings require.
	ErrNoHandle = errors.New("collector: ego handle unknown")
)

// defaultConfigVersion stamps runs whose wiring left the version empty.
const defaultConfigVersion = "1.0.0"

// Default limits, applied when the corresponding field is zero.
const (
	defaultMaxTopPosts   = 20
	defaultMaxEngagers   = 500
	defaultCoWindowHours = 72
	defaultLookbackDays  = 7
)

// Upstream is the slice of the ingestion client the collector depends
// on. The page listings call fn once per fetched page and stop when it
// returns false.
type Upstream interface {
	UserByHandle(ctx context.Context, handle string) (upstream.User, error)
	Followers(ctx context.Context, handle string, fn upstream.PageFunc) error
	Following(ctx context.Context, handle string, fn upstream.PageFunc) error
	LastTweets(ctx context.Context, userID, handle string, fn upstream.PageFunc) error
	TweetReplies(ctx context.Context, tweetID string, window upstream.Window, fn upstream.PageFunc) error
	TweetQuotes(ctx context.Context, tweetID string, window upstream.Window, fn upstream.PageFunc) error
	TweetRetweeters(ctx context.Context, tweetID string, fn upstream.PageFunc) error
	TweetLikers(ctx context.Context, tweetID string, fn upstream.PageFunc) error
	Mentions(ctx context.Context, handle string, window upstream.Window, fn upstream.PageFunc) error
	HasFallback() bool
}

// Limits bounds one collection cycle. The values in effect are frozen
// into the run row so later analysis can tell what produced it.
type Limits struct {
	MaxTopPostsPerRun       int
	MaxEngagersPerPost      int
	CoEngagementWindowHours int
	AttributionLookbackDays int
}

// Config wires a Collector.
type Config struct {
	Store         *store.Store
	Client        Upstream
	Limits        Limits
	ConfigVersion string
	Logger        *slog.Logger
	Metrics       *observability.CollectMetrics
}

// Collector orchestrates collection runs. Safe for concurrent use; all
// mutable run state lives in per-call values.
type Collector struct {
	store   *store.Store
	client  Upstream
	limits  Limits
	version string
	logger  *slog.Logger
	metrics *observability.CollectMetrics
}

// New builds a Collector. Zero limits fall back to the defaults and a
// nil logger to slog.Default.
func New(cfg Config) *Collector {
	if cfg.Limits.MaxTopPostsPerRun <= 0 {
		cfg.Limits.MaxTopPostsPerRun = defaultMaxTopPosts
	}

	if cfg.Limits.MaxEngagersPerPost <= 0 {
		cfg.Limits.MaxEngagersPerPost = defaultMaxEngagers
	}

	if cfg.Limits.CoEngagementWindowHours <= 0 {
		cfg.Limits.CoEngagementWindowHours = defaultCoWindowHours
	}

	if cfg.Limits.AttributionLookbackDays <= 0 {
		cfg.Limits.AttributionLookbackDays = defaultLookbackDays
	}

	if cfg.ConfigVersion == "" {
		cfg.ConfigVersion = defaultConfigVersion
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Collector{
		store:   cfg.Store,
		client:  cfg.Client,
		limits:  cfg.Limits,
		version: cfg.ConfigVersion,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Request names the ego to collect. At least one of Handle and UserID
// must be set. A positive MaxPages caps every listing of the run at
// that many pages.
type Request struct {
	Handle   string
	UserID   string
	MaxPages int
}

// IntervalSummary reports one computed diff.
type IntervalSummary struct {
	IntervalID int64 `json:"interval_id"`
	New        int64 `json:"new"`
	Lost       int64 `json:"lost"`
}

// Result summarizes one collection cycle. The interval fields are nil
// on the first run, when there is no previous snapshot to diff against.
type Result struct {
	RunID               int64            `json:"run_id"`
	UserID              string           `json:"user_id"`
	FollowersSnapshotID int64            `json:"followers_snapshot_id"`
	FollowersCount      int64            `json:"followers_count"`
	FollowingSnapshotID int64            `json:"following_snapshot_id"`
	FollowingCount      int64            `json:"following_count"`
	FollowerInterval    *IntervalSummary `json:"follower_interval"`
	FollowingInterval   *IntervalSummary `json:"following_interval"`
}

// cycle is the mutable state of one collection run.
type cycle struct {
	runID    int64
	userID   string
	handle   string
	maxPages int
	stats    observability.CollectStats
}

// runConfig is the knob set frozen into each run row.
type runConfig struct {
	MaxTopPostsPerRun       int    `json:"max_top_posts_per_run"`
	MaxEngagersPerPost      int    `json:"max_engagers_per_post"`
	CoEngagementWindowHours int    `json:"co_engagement_window_hours"`
	AttributionLookbackDays int    `json:"attribution_lookback_days"`
	ConfigVersion           string `json:"config_version"`
}

// Collect runs one full cycle for the requested ego and records its
// outcome on the run row: completed, completed with degraded notes when
// engagement collection failed, or failed with the error as notes.
func (c *Collector) Collect(ctx context.Context, req Request) (Result, error) {
	if req.Handle == "" && req.UserID == "" {
		return Result{}, ErrNoEgo
	}

	frozen, err := json.Marshal(runConfig{
		MaxTopPostsPerRun:       c.limits.MaxTopPostsPerRun,
		MaxEngagersPerPost:      c.limits.MaxEngagersPerPost,
		CoEngagementWindowHours: c.limits.CoEngagementWindowHours,
		AttributionLookbackDays: c.limits.AttributionLookbackDays,
		ConfigVersion:           c.version,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding run config: %w", err)
	}

	runID, err := c.store.CreateRun(ctx, time.Now().UTC(), c.version, string(frozen))
	if err != nil {
		return Result{}, err
	}

	cy := &cycle{
		runID:    runID,
		userID:   req.UserID,
		handle:   req.Handle,
		maxPages: req.MaxPages,
	}

	res, notes, err := c.run(ctx, cy)
	if err != nil {
		c.failRun(ctx, runID, err)

		return Result{}, err
	}

	err = c.store.FinishRun(ctx, runID, store.RunStatusCompleted, notes)
	if err != nil {
		return Result{}, err
	}

	c.metrics.RecordRun(ctx, cy.stats)
	c.logger.Info("collection run finished",
		"run_id", runID,
		"user_id", cy.userID,
		"followers", res.FollowersCount,
		"following", res.FollowingCount,
		"pages", cy.stats.Pages,
		"events", cy.stats.Events,
		"degraded", notes != "")

	return res, nil
}

// run performs the cycle body. The returned notes are empty unless a
// best-effort stage degraded the run.
func (c *Collector) run(ctx context.Context, cy *cycle) (Result, string, error) {
	err := c.resolveEgo(ctx, cy)
	if err != nil {
		return Result{}, "", err
	}

	prevFollowers, hadFollowers, err := c.latestSnapshot(ctx, store.KindFollowers)
	if err != nil {
		return Result{}, "", err
	}

	prevFollowing, hadFollowing, err := c.latestSnapshot(ctx, store.KindFollowing)
	if err != nil {
		return Result{}, "", err
	}

	followers, err := c.collectSnapshot(ctx, cy, store.KindFollowers)
	if err != nil {
		return Result{}, "", err
	}

	following, err := c.collectSnapshot(ctx, cy, store.KindFollowing)
	if err != nil {
		return Result{}, "", err
	}

	var followerIv, followingIv *store.Interval

	if hadFollowers {
		iv, err := c.DiffSnapshots(ctx, prevFollowers, followers)
		if err != nil {
			return Result{}, "", err
		}

		followerIv = &iv
		cy.stats.NewFollowers = iv.NewFollowersCount
		cy.stats.LostFollowers = iv.LostFollowersCount
	}

	if hadFollowing {
		iv, err := c.DiffSnapshots(ctx, prevFollowing, following)
		if err != nil {
			return Result{}, "", err
		}

		followingIv = &iv
	}

	notes := ""

	engagementIv := followerIv
	if engagementIv == nil {
		engagementIv = followingIv
	}

	if engagementIv == nil {
		c.logger.Info("skipping engagement collection", "run_id", cy.runID, "reason", "no interval yet")
	} else {
		err = c.collectEngagement(ctx, cy, *engagementIv)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, "", err
			}

			c.logger.Warn("engagement collection failed", "run_id", cy.runID, "error", err)
			notes = fmt.Sprintf("engagement degraded: %v", err)
		}
	}

	res := Result{
		RunID:               cy.runID,
		UserID:              cy.userID,
		FollowersSnapshotID: followers.ID,
		FollowersCount:      followers.AccountCount,
		FollowingSnapshotID: following.ID,
		FollowingCount:      following.AccountCount,
		FollowerInterval:    summarize(followerIv),
		FollowingInterval:   summarize(followingIv),
	}

	return res, notes, nil
}

// failRun marks the run failed. Cancellation collapses the notes to a
// stable marker, and the write itself runs outside the cancelled
// context so the status still lands.
func (c *Collector) failRun(ctx context.Context, runID int64, cause error) {
	notes := cause.Error()
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		notes = "cancelled"
	}

	err := c.store.FinishRun(context.WithoutCancel(ctx), runID, store.RunStatusFailed, notes)
	if err != nil {
		c.logger.Warn("marking run failed", "run_id", runID, "error", err)
	}
}

// resolveEgo fills in whichever of id and handle the request omitted.
// A bare handle goes through the profile endpoint; a bare id can only
// be resolved from accounts seen on earlier runs.
func (c *Collector) resolveEgo(ctx context.Context, cy *cycle) error {
	if cy.userID == "" {
		user, err := c.client.UserByHandle(ctx, cy.handle)
		if err != nil {
			return fmt.Errorf("resolving @%s: %w", cy.handle, err)
		}

		cy.userID = user.ID
		cy.handle = user.Handle

		err = c.store.UpsertAccount(ctx, accountFromUser(user, time.Now().UTC()))
		if err != nil {
			return err
		}

		cy.stats.Accounts++

		return nil
	}

	if cy.handle != "" {
		return nil
	}

	a, err := c.store.GetAccount(ctx, cy.userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.Handle == "") {
		return fmt.Errorf("%w: account %s has not been seen before", ErrNoHandle, cy.userID)
	}

	if err != nil {
		return err
	}

	cy.handle = a.Handle

	return nil
}

// collectSnapshot captures one follower or following listing. Every
// page stores its raw payload, upserts the accounts it carried, and
// appends membership rows whose follow position increases across pages,
// position zero being the newest edge.
func (c *Collector) collectSnapshot(ctx context.Context, cy *cycle, kind string) (store.Snapshot, error) {
	snapID, err := c.store.CreateSnapshot(ctx, cy.runID, kind, time.Now().UTC())
	if err != nil {
		return store.Snapshot{}, err
	}

	list := c.client.Followers
	if kind == store.KindFollowing {
		list = c.client.Following
	}

	var (
		position int64
		pages    int
	)

	err = list(ctx, cy.handle, func(page upstream.Page) (bool, error) {
		pages++
		cy.stats.Pages++

		capped := cy.maxPages > 0 && pages >= cy.maxPages

		_, err := c.storeRawPage(ctx, cy.runID, page, capped)
		if err != nil {
			return false, err
		}

		seenAt := time.Now().UTC()
		accounts := make([]store.Account, 0, len(page.Users))
		members := make([]store.SnapshotMember, 0, len(page.Users))

		for _, u := range page.Users {
			if u.ID == "" {
				continue
			}

			accounts = append(accounts, accountFromUser(u, seenAt))
			members = append(members, store.SnapshotMember{AccountID: u.ID, FollowPosition: position})
			position++
		}

		err = c.store.UpsertAccounts(ctx, accounts)
		if err != nil {
			return false, err
		}

		err = c.store.AddSnapshotMembers(ctx, snapID, kind, members)
		if err != nil {
			return false, err
		}

		cy.stats.Accounts += int64(len(accounts))

		return !capped, nil
	})
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("collecting %s snapshot: %w", kind, err)
	}

	err = c.store.SetSnapshotAccountCount(ctx, snapID, position)
	if err != nil {
		return store.Snapshot{}, err
	}

	return c.store.GetSnapshot(ctx, snapID)
}

// latestSnapshot returns the newest snapshot of a kind, reporting
// absence instead of an error on the first run.
func (c *Collector) latestSnapshot(ctx context.Context, kind string) (store.Snapshot, bool, error) {
	snap, err := c.store.LatestSnapshot(ctx, kind)
	if errors.Is(err, store.ErrNotFound) {
		return store.Snapshot{}, false, nil
	}

	if err != nil {
		return store.Snapshot{}, false, err
	}

	return snap, true, nil
}

// storeRawPage archives one fetched page. A page is marked truncated
// when either the client's page cap or the request's cut the listing
// short while more data remained.
func (c *Collector) storeRawPage(ctx context.Context, runID int64, page upstream.Page, capped bool) (int64, error) {
	return c.store.InsertRawFetch(ctx, store.RawFetch{
		RunID:      runID,
		FetchedAt:  time.Now().UTC(),
		Endpoint:   page.Endpoint,
		ParamsHash: page.ParamsHash,
		CursorIn:   page.CursorIn,
		CursorOut:  page.CursorOut,
		Truncated:  page.Truncated || (capped && page.CursorOut != ""),
		Payload:    page.Body,
	})
}

// RefreshProfiles refetches profile fields for accounts missing an
// avatar or bio and reports how many were updated. Accounts that are
// gone or protected upstream are skipped.
func (c *Collector) RefreshProfiles(ctx context.Context, limit int) (int, error) {
	accounts, err := c.store.AccountsMissingProfile(ctx, limit)
	if err != nil {
		return 0, err
	}

	updated := 0

	for _, a := range accounts {
		if a.Handle == "" {
			continue
		}

		user, err := c.client.UserByHandle(ctx, a.Handle)
		if err != nil {
			if upstream.IsSkippable(err) || errors.Is(err, upstream.ErrUserNotFound) {
				c.logger.Warn("skipping profile refresh", "handle", a.Handle, "error", err)
				continue
			}

			return updated, fmt.Errorf("refreshing @%s: %w", a.Handle, err)
		}

		err = c.store.UpsertAccount(ctx, accountFromUser(user, time.Now().UTC()))
		if err != nil {
			return updated, err
		}

		updated++
	}

	return updated, nil
}

func summarize(iv *store.Interval) *IntervalSummary {
	if iv == nil {
		return nil
	}

	return &IntervalSummary{
		IntervalID: iv.ID,
		New:        iv.NewFollowersCount,
		Lost:       iv.LostFollowersCount,
	}
}

// accountFromUser maps the canonical upstream shape onto a storage row.
func accountFromUser(u upstream.User, seenAt time.Time) store.Account {
	return store.Account{
		ID:                u.ID,
		Handle:            u.Handle,
		Name:              u.Name,
		AvatarURL:         u.AvatarURL,
		Bio:               u.Bio,
		FollowersCount:    u.FollowersCount,
		FollowingCount:    u.FollowingCount,
		TweetCount:        u.TweetCount,
		MediaCount:        u.MediaCount,
		FavouritesCount:   u.FavouritesCount,
		IsAutomated:       u.IsAutomated,
		PossiblySensitive: u.PossiblySensitive,
		CanDM:             u.CanDM,
		CreatedAt:         u.CreatedAt,
		LastSeenAt:        seenAt,
	}
}
