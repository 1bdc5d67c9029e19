package store

import "time"

// Run statuses.
const (
	// RunStatusRunning marks a run that is still collecting.
	RunStatusRunning = "running"
	// RunStatusCompleted marks a run that finished normally.
	RunStatusCompleted = "completed"
	// RunStatusFailed marks a run that aborted; notes carry the reason.
	RunStatusFailed = "failed"
)

// Snapshot kinds.
const (
	// KindFollowers is a snapshot of accounts following the ego.
	KindFollowers = "followers"
	// KindFollowing is a snapshot of accounts the ego follows.
	KindFollowing = "following"
)

// Follow event kinds.
const (
	// FollowEventNew marks an account that appeared between two snapshots.
	FollowEventNew = "new"
	// FollowEventLost marks an account that disappeared between two snapshots.
	FollowEventLost = "lost"
)

// PositionSourceFrameBuild tags position history rows written by the
// frame builder.
const PositionSourceFrameBuild = "frame_build"

// RawFetch is one paged API response, stored verbatim for replay.
type RawFetch struct {
	ID         int64
	RunID      int64
	FetchedAt  time.Time
	Endpoint   string
	ParamsHash string
	CursorIn   string
	CursorOut  string
	Truncated  bool
	Payload    []byte
}

// Run is one collection cycle and its lifecycle status.
type Run struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time // zero until the run finishes
	Status        string
	Notes         string
	ConfigVersion string
	ConfigJSON    string
}

// Account is the canonical record for an upstream account. Later
// observations overwrite earlier ones; rows are never deleted.
type Account struct {
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
	CreatedAt         time.Time // zero when the upstream omitted it
	LastSeenAt        time.Time
}

// Post is a tweet authored by or engaging the ego.
type Post struct {
	ID             string
	AuthorID       string
	CreatedAt      time.Time
	Text           string
	MetricsJSON    string
	ConversationID string
	InReplyToID    string
	LastSeenAt     time.Time
}

// Snapshot is a point-in-time capture of followers or following.
type Snapshot struct {
	ID           int64
	RunID        int64
	CapturedAt   time.Time
	Kind         string
	AccountCount int64
}

// SnapshotMember is one membership row. FollowPosition is 0 for the
// newest account as returned by the upstream and increases monotonically
// across all pages of the snapshot.
type SnapshotMember struct {
	AccountID      string
	FollowPosition int64
}

// Interval spans two consecutive snapshots of the same kind.
type Interval struct {
	ID                 int64
	SnapshotStartID    int64
	SnapshotEndID      int64
	StartAt            time.Time
	EndAt              time.Time
	NewFollowersCount  int64
	LostFollowersCount int64
}

// FollowEvent is one account gained or lost within an interval.
type FollowEvent struct {
	ID         int64
	IntervalID int64
	AccountID  string
	Kind       string
}

// InteractionEvent is a direct interaction (reply, quote, mention,
// retweet, like) from src toward dst.
type InteractionEvent struct {
	ID         int64
	IntervalID int64
	CreatedAt  time.Time
	SrcID      string
	DstID      string
	Type       string
	PostID     string
	RawRefID   int64
}

// PostEngager records that an account engaged with a post during an
// interval.
type PostEngager struct {
	ID         int64
	IntervalID int64
	PostID     string
	AccountID  string
	Type       string
}

// Edge is a rendered graph edge for one interval.
type Edge struct {
	ID         int64
	IntervalID int64
	SrcID      string
	DstID      string
	Type       string
	Weight     float64
	MetaJSON   string
}

// Community assigns an account to a detected community for one interval.
type Community struct {
	ID          int64
	IntervalID  int64
	AccountID   string
	CommunityID int64
	Confidence  float64
}

// Position is the laid-out location of an account at one interval.
type Position struct {
	IntervalID int64
	AccountID  string
	X, Y, Z    float64
}

// PositionEntry is one append-only position history row.
type PositionEntry struct {
	IntervalID int64
	AccountID  string
	X, Y, Z    float64
	RecordedAt time.Time
	Source     string
}

// Frame is a fully built visualization frame for (interval, timeframe).
type Frame struct {
	ID              int64
	IntervalID      int64
	TimeframeWindow int64
	FrameJSON       string
	NodeCount       int64
	EdgeCount       int64
	BuildMetaJSON   string
	CreatedAt       time.Time
}

// PostAttribution caches the computed attribution payload for a post at
// one timeframe window.
type PostAttribution struct {
	ID              int64
	PostID          string
	IntervalID      int64 // zero when the post matched no interval
	TimeframeWindow int64
	CreatedAt       time.Time
	PayloadJSON     string
	BuiltAt         time.Time
}
