package upstream

import (
	"net/url"
	"strconv"
	"time"
)

// User is the canonical account shape shared by both providers.
type User struct {
	ID                string
	Handle            string
	Name              string
	AvatarURL         string
	Bio               string
	FollowersCount    int64
	FollowingCount    int64
	TweetCount        int64
	MediaCount        int64
	FavouritesCount   int64
	IsAutomated       bool
	PossiblySensitive bool
	CanDM             bool

	// CreatedAt is zero when the provider omitted or mangled it.
	CreatedAt time.Time
}

// TweetMetrics is the engagement counter block of a tweet. The JSON
// tags are the storage shape, so the names must stay stable.
type TweetMetrics struct {
	Likes    int64 `json:"like_count"`
	Replies  int64 `json:"reply_count"`
	Retweets int64 `json:"retweet_count"`
	Quotes   int64 `json:"quote_count"`
	Views    int64 `json:"view_count"`
}

// Tweet is the canonical post shape.
type Tweet struct {
	ID             string
	Author         *User // nil when the payload carried no author
	CreatedAt      time.Time
	Text           string
	Metrics        TweetMetrics
	ConversationID string
	InReplyToID    string
}

// Page is one fetched page of a paginated listing. Exactly one of
// Users and Tweets is populated, matching the endpoint. Body holds the
// verbatim response payload for archival. CursorIn is empty on the
// first page, CursorOut is empty on the last, and Truncated means the
// page cap cut the listing short while more data remained.
type Page struct {
	Endpoint   string
	ParamsHash string
	CursorIn   string
	CursorOut  string
	Truncated  bool
	Body       []byte
	Users      []User
	Tweets     []Tweet
}

// PageFunc consumes one page and reports whether pagination should
// continue. Returning an error aborts the listing.
type PageFunc func(page Page) (bool, error)

// Window bounds an engagement listing to an interval. Zero fields
// leave that side open.
type Window struct {
	Since time.Time
	Until time.Time
}

// apply adds the window bounds to a query as epoch seconds.
func (w Window) apply(query url.Values) {
	if !w.Since.IsZero() {
		query.Set("sinceTime", strconv.FormatInt(w.Since.Unix(), 10))
	}

	if !w.Until.IsZero() {
		query.Set("untilTime", strconv.FormatInt(w.Until.Unix(), 10))
	}
}

// legacyTimeLayout is the pre-v2 timestamp format the providers still
// emit for account creation dates.
const legacyTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

// ParseTime accepts RFC 3339 and the legacy timestamp format,
// normalized to UTC. Empty or unparseable input yields a zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t.UTC()
	}

	t, err = time.Parse(legacyTimeLayout, s)
	if err == nil {
		return t.UTC()
	}

	return time.Time{}
}
