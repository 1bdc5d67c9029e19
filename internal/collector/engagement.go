package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/internal/upstream"
)

// Interaction types recorded by the collector. The names flow through
// the store into edge weighting unchanged.
const (
	typeReply   = "reply"
	typeQuote   = "quote"
	typeRetweet = "retweet"
	typeLike    = "like"
	typeMention = "mention"
)

// collectEngagement ingests the ego's recent posts and the accounts
// engaging with them, attached to the given interval. Pages replayed
// from an earlier run over the same interval are deduplicated.
func (c *Collector) collectEngagement(ctx context.Context, cy *cycle, iv store.Interval) error {
	seenEvents, err := c.store.ExistingInteractionKeys(ctx, iv.ID)
	if err != nil {
		return err
	}

	seenEngagers, err := c.store.ExistingEngagerKeys(ctx, iv.ID)
	if err != nil {
		return err
	}

	rec := &recorder{
		intervalID:   iv.ID,
		egoID:        cy.userID,
		seenEvents:   seenEvents,
		seenEngagers: seenEngagers,
	}

	posts, err := c.collectPosts(ctx, cy)
	if err != nil {
		return err
	}

	window := upstream.Window{Since: iv.StartAt, Until: iv.EndAt}

	for _, post := range posts {
		err = c.collectPostEngagement(ctx, cy, rec, post, window, iv.EndAt)
		if err != nil {
			return err
		}
	}

	if cy.handle != "" {
		err = c.pageEngagement(ctx, cy, rec,
			func(fn upstream.PageFunc) error { return c.client.Mentions(ctx, cy.handle, window, fn) },
			c.mentionHandler(rec))
		if err != nil {
			return fmt.Errorf("collecting mentions: %w", err)
		}
	}

	return nil
}

// collectPosts ingests the ego's recent original posts, newest first,
// up to the configured per-run cap.
func (c *Collector) collectPosts(ctx context.Context, cy *cycle) ([]store.Post, error) {
	limit := c.limits.MaxTopPostsPerRun

	var (
		posts []store.Post
		pages int
	)

	err := c.client.LastTweets(ctx, cy.userID, cy.handle, func(page upstream.Page) (bool, error) {
		pages++
		cy.stats.Pages++

		capped := cy.maxPages > 0 && pages >= cy.maxPages

		_, err := c.storeRawPage(ctx, cy.runID, page, capped)
		if err != nil {
			return false, err
		}

		seenAt := time.Now().UTC()
		batch := make([]store.Post, 0, len(page.Tweets))

		for _, t := range page.Tweets {
			if len(posts)+len(batch) >= limit {
				break
			}

			if t.ID == "" {
				continue
			}

			p, err := postFromTweet(t, cy.userID, seenAt)
			if err != nil {
				return false, err
			}

			batch = append(batch, p)
		}

		err = c.store.UpsertPosts(ctx, batch)
		if err != nil {
			return false, err
		}

		posts = append(posts, batch...)

		return !capped && len(posts) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting posts: %w", err)
	}

	return posts, nil
}

// collectPostEngagement sweeps the four engagement listings of one
// post. Listings the upstream refuses with 403 or 404, a deleted or
// protected post usually, are skipped rather than failing the sweep.
// Likes need the fallback provider and are skipped without one.
func (c *Collector) collectPostEngagement(ctx context.Context, cy *cycle, rec *recorder, post store.Post, window upstream.Window, intervalEnd time.Time) error {
	err := c.listPostEngagement(ctx, cy, rec, "replies", post.ID,
		func(fn upstream.PageFunc) error { return c.client.TweetReplies(ctx, post.ID, window, fn) },
		c.tweetHandler(rec, post.ID, typeReply))
	if err != nil {
		return err
	}

	err = c.listPostEngagement(ctx, cy, rec, "quotes", post.ID,
		func(fn upstream.PageFunc) error { return c.client.TweetQuotes(ctx, post.ID, window, fn) },
		c.tweetHandler(rec, post.ID, typeQuote))
	if err != nil {
		return err
	}

	err = c.listPostEngagement(ctx, cy, rec, "retweeters", post.ID,
		func(fn upstream.PageFunc) error { return c.client.TweetRetweeters(ctx, post.ID, fn) },
		c.userHandler(rec, post.ID, typeRetweet, intervalEnd))
	if err != nil {
		return err
	}

	if !c.client.HasFallback() {
		return nil
	}

	return c.listPostEngagement(ctx, cy, rec, "likers", post.ID,
		func(fn upstream.PageFunc) error { return c.client.TweetLikers(ctx, post.ID, fn) },
		c.userHandler(rec, post.ID, typeLike, intervalEnd))
}

func (c *Collector) listPostEngagement(ctx context.Context, cy *cycle, rec *recorder, name, postID string, list func(upstream.PageFunc) error, handle pageHandler) error {
	err := c.pageEngagement(ctx, cy, rec, list, handle)
	if err == nil {
		return nil
	}

	if upstream.IsSkippable(err) {
		c.logger.Warn("post listing unavailable", "listing", name, "post_id", postID, "error", err)

		return nil
	}

	return fmt.Errorf("collecting %s for post %s: %w", name, postID, err)
}

// pageHandler consumes one page, recording at most remaining entries,
// and returns how many it took.
type pageHandler func(page upstream.Page, rawID int64, remaining int) int

// pageEngagement walks one listing, archiving each page and flushing
// the recorder after it. The walk stops at the per-type engager cap or
// the request's page cap, whichever comes first.
func (c *Collector) pageEngagement(ctx context.Context, cy *cycle, rec *recorder, list func(upstream.PageFunc) error, handle pageHandler) error {
	limit := c.limits.MaxEngagersPerPost

	var (
		count int
		pages int
	)

	return list(func(page upstream.Page) (bool, error) {
		pages++
		cy.stats.Pages++

		capped := cy.maxPages > 0 && pages >= cy.maxPages

		rawID, err := c.storeRawPage(ctx, cy.runID, page, capped)
		if err != nil {
			return false, err
		}

		count += handle(page, rawID, limit-count)

		err = c.flushRecorder(ctx, cy, rec)
		if err != nil {
			return false, err
		}

		return !capped && count < limit, nil
	})
}

// tweetHandler records tweet-shaped engagement: the tweet author is the
// engager and the tweet timestamp is the event time.
func (c *Collector) tweetHandler(rec *recorder, postID, typ string) pageHandler {
	return func(page upstream.Page, rawID int64, remaining int) int {
		seenAt := time.Now().UTC()
		taken := 0

		for _, t := range page.Tweets {
			if taken >= remaining {
				break
			}

			if t.Author == nil || t.Author.ID == "" {
				continue
			}

			createdAt := t.CreatedAt
			if createdAt.IsZero() {
				createdAt = seenAt
			}

			rec.account(accountFromUser(*t.Author, seenAt))
			rec.interaction(t.Author.ID, typ, postID, createdAt, rawID)
			rec.engager(postID, t.Author.ID, typ)
			taken++
		}

		return taken
	}
}

// userHandler records user-shaped engagement. Retweet and like listings
// carry no timestamps, so the interval end stands in as the event time.
func (c *Collector) userHandler(rec *recorder, postID, typ string, eventAt time.Time) pageHandler {
	return func(page upstream.Page, rawID int64, remaining int) int {
		seenAt := time.Now().UTC()

		if eventAt.IsZero() {
			eventAt = seenAt
		}

		taken := 0

		for _, u := range page.Users {
			if taken >= remaining {
				break
			}

			if u.ID == "" {
				continue
			}

			rec.account(accountFromUser(u, seenAt))
			rec.interaction(u.ID, typ, postID, eventAt, rawID)
			rec.engager(postID, u.ID, typ)
			taken++
		}

		return taken
	}
}

// mentionHandler records mentions of the ego. The referenced post is
// the mentioning tweet itself and no engager row is written, since a
// mention is not engagement with one of the ego's posts.
func (c *Collector) mentionHandler(rec *recorder) pageHandler {
	return func(page upstream.Page, rawID int64, remaining int) int {
		seenAt := time.Now().UTC()
		taken := 0

		for _, t := range page.Tweets {
			if taken >= remaining {
				break
			}

			if t.Author == nil || t.Author.ID == "" {
				continue
			}

			createdAt := t.CreatedAt
			if createdAt.IsZero() {
				createdAt = seenAt
			}

			rec.account(accountFromUser(*t.Author, seenAt))
			rec.interaction(t.Author.ID, typeMention, t.ID, createdAt, rawID)
			taken++
		}

		return taken
	}
}

// recorder accumulates rows for one interval, skipping keys already
// stored by an earlier run or an earlier page of this one.
type recorder struct {
	intervalID   int64
	egoID        string
	seenEvents   map[store.InteractionKey]struct{}
	seenEngagers map[store.EngagerKey]struct{}
	accounts     []store.Account
	events       []store.InteractionEvent
	engagers     []store.PostEngager
}

func (r *recorder) account(a store.Account) {
	r.accounts = append(r.accounts, a)
}

func (r *recorder) interaction(srcID, typ, postID string, createdAt time.Time, rawRefID int64) {
	key := store.InteractionKey{SrcID: srcID, DstID: r.egoID, Type: typ, PostID: postID}
	if _, ok := r.seenEvents[key]; ok {
		return
	}

	r.seenEvents[key] = struct{}{}
	r.events = append(r.events, store.InteractionEvent{
		IntervalID: r.intervalID,
		CreatedAt:  createdAt,
		SrcID:      srcID,
		DstID:      r.egoID,
		Type:       typ,
		PostID:     postID,
		RawRefID:   rawRefID,
	})
}

func (r *recorder) engager(postID, accountID, typ string) {
	key := store.EngagerKey{PostID: postID, AccountID: accountID, Type: typ}
	if _, ok := r.seenEngagers[key]; ok {
		return
	}

	r.seenEngagers[key] = struct{}{}
	r.engagers = append(r.engagers, store.PostEngager{
		IntervalID: r.intervalID,
		PostID:     postID,
		AccountID:  accountID,
		Type:       typ,
	})
}

// flushRecorder writes the pending rows and clears the buffers. Called
// once per fetched page so a crash loses at most one page of rows.
func (c *Collector) flushRecorder(ctx context.Context, cy *cycle, rec *recorder) error {
	err := c.store.UpsertAccounts(ctx, rec.accounts)
	if err != nil {
		return err
	}

	err = c.store.InsertInteractionEvents(ctx, rec.events)
	if err != nil {
		return err
	}

	err = c.store.InsertPostEngagers(ctx, rec.engagers)
	if err != nil {
		return err
	}

	cy.stats.Accounts += int64(len(rec.accounts))
	cy.stats.Events += int64(len(rec.events))

	rec.accounts = nil
	rec.events = nil
	rec.engagers = nil

	return nil
}

// postFromTweet maps the canonical tweet shape onto a storage row. A
// missing timestamp falls back to the observation time.
func postFromTweet(t upstream.Tweet, authorID string, seenAt time.Time) (store.Post, error) {
	metrics, err := json.Marshal(t.Metrics)
	if err != nil {
		return store.Post{}, fmt.Errorf("encoding metrics for %s: %w", t.ID, err)
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = seenAt
	}

	return store.Post{
		ID:             t.ID,
		AuthorID:       authorID,
		CreatedAt:      createdAt,
		Text:           t.Text,
		MetricsJSON:    string(metrics),
		ConversationID: t.ConversationID,
		InReplyToID:    t.InReplyToID,
		LastSeenAt:     seenAt,
	}, nil
}
