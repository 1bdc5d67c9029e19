package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// likerUserFields mirrors the profile fields delivered by the primary
// provider so both dialects normalize evenly.
const likerUserFields = "id,name,username,profile_image_url,description,public_metrics,created_at"

// likerPageSize is the fallback provider's cap for like listings.
const likerPageSize = 100

// Fallback provider wire shapes, the snake_case dialect.
type v2User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	Description     string `json:"description"`
	CreatedAt       string `json:"created_at"`
	PublicMetrics   struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		TweetCount     int64 `json:"tweet_count"`
		MediaCount     int64 `json:"media_count"`
	} `json:"public_metrics"`
}

func (v v2User) canonical() User {
	return User{
		ID:             v.ID,
		Handle:         v.Username,
		Name:           v.Name,
		AvatarURL:      v.ProfileImageURL,
		Bio:            v.Description,
		FollowersCount: v.PublicMetrics.FollowersCount,
		FollowingCount: v.PublicMetrics.FollowingCount,
		TweetCount:     v.PublicMetrics.TweetCount,
		MediaCount:     v.PublicMetrics.MediaCount,
		CreatedAt:      ParseTime(v.CreatedAt),
	}
}

type v2Listing struct {
	Data []v2User `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// TweetLikers streams the users who liked a tweet through the
// fallback provider. Callers should check HasFallback first; without
// one the listing fails with ErrNoFallback.
func (c *Client) TweetLikers(ctx context.Context, tweetID string, fn PageFunc) error {
	if c.fallback == nil {
		return ErrNoFallback
	}

	path := fmt.Sprintf("tweets/%s/liking_users", tweetID)
	query := url.Values{
		"user.fields": {likerUserFields},
		"max_results": {fmt.Sprint(likerPageSize)},
	}

	return c.paginate(ctx, c.fallback, EndpointTweetLikers, path, "pagination_token", query, decodeLikerListing, fn)
}

func decodeLikerListing(body []byte) (listing, error) {
	var envelope v2Listing

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return listing{}, err
	}

	users := make([]User, 0, len(envelope.Data))
	for _, v := range envelope.Data {
		users = append(users, v.canonical())
	}

	return listing{users: users, nextCursor: envelope.Meta.NextToken}, nil
}
