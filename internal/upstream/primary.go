package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Endpoint names recorded alongside every raw page. The primary
// provider is addressed by these exact paths.
const (
	EndpointUserInfo        = "twitter/user/info"
	EndpointFollowers       = "twitter/user/followers"
	EndpointFollowing       = "twitter/user/followings"
	EndpointLastTweets      = "twitter/user/last_tweets"
	EndpointTweetReplies    = "twitter/tweet/replies"
	EndpointTweetQuotes     = "twitter/tweet/quotes"
	EndpointTweetRetweeters = "twitter/tweet/retweeters"
	EndpointMentions        = "twitter/user/mentions"
	EndpointTweetLikers     = "x/tweets/liking_users"
)

// Primary provider wire shapes. The provider speaks camelCase JSON
// with legacy-format timestamps.
type wireUser struct {
	ID                string `json:"id"`
	UserName          string `json:"userName"`
	Name              string `json:"name"`
	ProfilePicture    string `json:"profilePicture"`
	Description       string `json:"description"`
	Followers         int64  `json:"followers"`
	Following         int64  `json:"following"`
	StatusesCount     int64  `json:"statusesCount"`
	MediaCount        int64  `json:"mediaCount"`
	FavouritesCount   int64  `json:"favouritesCount"`
	IsAutomated       bool   `json:"isAutomated"`
	PossiblySensitive bool   `json:"possiblySensitive"`
	CanDM             bool   `json:"canDm"`
	CreatedAt         string `json:"createdAt"`
}

func (w wireUser) canonical() User {
	return User{
		ID:                w.ID,
		Handle:            w.UserName,
		Name:              w.Name,
		AvatarURL:         w.ProfilePicture,
		Bio:               w.Description,
		FollowersCount:    w.Followers,
		FollowingCount:    w.Following,
		TweetCount:        w.StatusesCount,
		MediaCount:        w.MediaCount,
		FavouritesCount:   w.FavouritesCount,
		IsAutomated:       w.IsAutomated,
		PossiblySensitive: w.PossiblySensitive,
		CanDM:             w.CanDM,
		CreatedAt:         ParseTime(w.CreatedAt),
	}
}

type wireTweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	CreatedAt      string    `json:"createdAt"`
	LikeCount      int64     `json:"likeCount"`
	ReplyCount     int64     `json:"replyCount"`
	RetweetCount   int64     `json:"retweetCount"`
	QuoteCount     int64     `json:"quoteCount"`
	ViewCount      int64     `json:"viewCount"`
	ConversationID string    `json:"conversationId"`
	InReplyToID    string    `json:"inReplyToId"`
	Author         *wireUser `json:"author"`
}

func (w wireTweet) canonical() Tweet {
	t := Tweet{
		ID:        w.ID,
		CreatedAt: ParseTime(w.CreatedAt),
		Text:      w.Text,
		Metrics: TweetMetrics{
			Likes:    w.LikeCount,
			Replies:  w.ReplyCount,
			Retweets: w.RetweetCount,
			Quotes:   w.QuoteCount,
			Views:    w.ViewCount,
		},
		ConversationID: w.ConversationID,
		InReplyToID:    w.InReplyToID,
	}

	if w.Author != nil && w.Author.ID != "" {
		author := w.Author.canonical()
		t.Author = &author
	}

	return t
}

type userListing struct {
	Users       []wireUser `json:"users"`
	HasNextPage bool       `json:"has_next_page"`
	NextCursor  string     `json:"next_cursor"`
}

type tweetListing struct {
	Tweets      []wireTweet `json:"tweets"`
	HasNextPage bool        `json:"has_next_page"`
	NextCursor  string      `json:"next_cursor"`
}

// UserByHandle resolves a profile by its handle.
func (c *Client) UserByHandle(ctx context.Context, handle string) (User, error) {
	query := url.Values{"userName": {handle}}

	var envelope struct {
		Data wireUser `json:"data"`
	}

	_, err := c.primary.getJSON(ctx, EndpointUserInfo, query, &envelope)
	if err != nil {
		return User{}, err
	}

	if envelope.Data.ID == "" {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, handle)
	}

	return envelope.Data.canonical(), nil
}

// Followers streams the follower list of handle, newest first.
func (c *Client) Followers(ctx context.Context, handle string, fn PageFunc) error {
	query := url.Values{
		"userName": {handle},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}

	return c.primaryUsers(ctx, EndpointFollowers, query, fn)
}

// Following streams the accounts handle follows, newest first.
func (c *Client) Following(ctx context.Context, handle string, fn PageFunc) error {
	query := url.Values{
		"userName": {handle},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}

	return c.primaryUsers(ctx, EndpointFollowing, query, fn)
}

// LastTweets streams the user's recent original tweets, newest first.
// Replies are excluded.
func (c *Client) LastTweets(ctx context.Context, userID, handle string, fn PageFunc) error {
	query := url.Values{
		"userId":         {userID},
		"userName":       {handle},
		"includeReplies": {"false"},
	}

	return c.primaryTweets(ctx, EndpointLastTweets, query, fn)
}

// TweetReplies streams replies to a tweet inside the window.
func (c *Client) TweetReplies(ctx context.Context, tweetID string, window Window, fn PageFunc) error {
	query := url.Values{"tweetId": {tweetID}}
	window.apply(query)

	return c.primaryTweets(ctx, EndpointTweetReplies, query, fn)
}

// TweetQuotes streams quote tweets of a tweet inside the window.
func (c *Client) TweetQuotes(ctx context.Context, tweetID string, window Window, fn PageFunc) error {
	query := url.Values{
		"tweetId":        {tweetID},
		"includeReplies": {"true"},
	}
	window.apply(query)

	return c.primaryTweets(ctx, EndpointTweetQuotes, query, fn)
}

// TweetRetweeters streams the users who retweeted a tweet.
func (c *Client) TweetRetweeters(ctx context.Context, tweetID string, fn PageFunc) error {
	query := url.Values{"tweetId": {tweetID}}

	return c.primaryUsers(ctx, EndpointTweetRetweeters, query, fn)
}

// Mentions streams tweets mentioning handle inside the window.
func (c *Client) Mentions(ctx context.Context, handle string, window Window, fn PageFunc) error {
	query := url.Values{"userName": {handle}}
	window.apply(query)

	return c.primaryTweets(ctx, EndpointMentions, query, fn)
}

func (c *Client) primaryUsers(ctx context.Context, endpoint string, query url.Values, fn PageFunc) error {
	return c.paginate(ctx, c.primary, endpoint, endpoint, "cursor", query, decodeUserListing, fn)
}

func (c *Client) primaryTweets(ctx context.Context, endpoint string, query url.Values, fn PageFunc) error {
	return c.paginate(ctx, c.primary, endpoint, endpoint, "cursor", query, decodeTweetListing, fn)
}

// listing is a decoded page body.
type listing struct {
	users      []User
	tweets     []Tweet
	nextCursor string
}

type decodeFunc func(body []byte) (listing, error)

func decodeUserListing(body []byte) (listing, error) {
	var envelope userListing

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return listing{}, err
	}

	users := make([]User, 0, len(envelope.Users))
	for _, w := range envelope.Users {
		users = append(users, w.canonical())
	}

	next := envelope.NextCursor
	if !envelope.HasNextPage {
		next = ""
	}

	return listing{users: users, nextCursor: next}, nil
}

func decodeTweetListing(body []byte) (listing, error) {
	var envelope tweetListing

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return listing{}, err
	}

	tweets := make([]Tweet, 0, len(envelope.Tweets))
	for _, w := range envelope.Tweets {
		tweets = append(tweets, w.canonical())
	}

	next := envelope.NextCursor
	if !envelope.HasNextPage {
		next = ""
	}

	return listing{tweets: tweets, nextCursor: next}, nil
}

// paginate walks a cursored listing, invoking fn once per page. The
// walk ends when the cursor runs out, the page cap is reached, a page
// comes back empty, or fn reports it is done.
func (c *Client) paginate(
	ctx context.Context,
	p *provider,
	endpoint, path, cursorParam string,
	base url.Values,
	decode decodeFunc,
	fn PageFunc,
) error {
	cursor := ""

	for fetched := 1; ; fetched++ {
		query := url.Values{}
		for key, values := range base {
			query[key] = values
		}

		if cursor != "" {
			query.Set(cursorParam, cursor)
		}

		body, err := p.getJSON(ctx, path, query, nil)
		if err != nil {
			return err
		}

		decoded, err := decode(body)
		if err != nil {
			return fmt.Errorf("decoding %s page: %w", endpoint, err)
		}

		batch := len(decoded.users) + len(decoded.tweets)
		capped := c.maxPages > 0 && fetched >= c.maxPages

		cont, err := fn(Page{
			Endpoint:   endpoint,
			ParamsHash: paramsHash(query),
			CursorIn:   cursor,
			CursorOut:  decoded.nextCursor,
			Truncated:  capped && decoded.nextCursor != "",
			Body:       body,
			Users:      decoded.users,
			Tweets:     decoded.tweets,
		})
		if err != nil {
			return err
		}

		if !cont || capped || decoded.nextCursor == "" || batch == 0 {
			return nil
		}

		cursor = decoded.nextCursor
	}
}
