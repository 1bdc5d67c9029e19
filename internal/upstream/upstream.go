// Package upstream fetches the social graph from the microblogging
// APIs. Two providers are layered: the primary bulk provider serves
// profile, follow and engagement listings, and an optional fallback
// provider serves like-lists, which the primary does not expose. Both
// payload dialects are normalized into one canonical User and Tweet
// shape before they reach callers.
package upstream

import (
	"log/slog"
	"time"

	"github.com/fieldline/orbit/pkg/observability"
)

// Defaults applied by New for zero Config fields.
const (
	defaultPrimaryBaseURL  = "https://api.twitterapi.io"
	defaultFallbackBaseURL = "https://api.x.com/2"
	defaultTimeout         = 30 * time.Second
	defaultRPS             = 5.0
	defaultBurst           = 1
	defaultPageSize        = 200
)

// Config carries the knobs for building a Client.
type Config struct {
	// BearerToken authenticates against the primary provider.
	BearerToken string

	// FallbackBearerToken authenticates against the like-list provider.
	// Leave it empty to disable like collection.
	FallbackBearerToken string

	// BaseURL and FallbackBaseURL override the provider hosts.
	BaseURL         string
	FallbackBaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RPS and Burst shape the per-provider rate limiter.
	RPS   float64
	Burst int

	// MaxPages caps every paginated listing. Zero means unbounded.
	MaxPages int

	// PageSize is the batch size requested from follow listings.
	PageSize int

	Logger  *slog.Logger
	Metrics *observability.CollectMetrics
}

// Client is a rate-limited, retrying HTTP client over the upstream
// providers. Methods are safe for concurrent use.
type Client struct {
	primary  *provider
	fallback *provider
	maxPages int
	pageSize int
}

// New builds a Client from cfg, filling defaults for zero fields.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPrimaryBaseURL
	}

	if cfg.FallbackBaseURL == "" {
		cfg.FallbackBaseURL = defaultFallbackBaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}

	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	c := &Client{
		primary:  newProvider(cfg.BaseURL, cfg.BearerToken, cfg),
		maxPages: cfg.MaxPages,
		pageSize: cfg.PageSize,
	}

	if cfg.FallbackBearerToken != "" {
		c.fallback = newProvider(cfg.FallbackBaseURL, cfg.FallbackBearerToken, cfg)
	}

	return c
}

// HasFallback reports whether a like-list provider is configured.
func (c *Client) HasFallback() bool {
	return c.fallback != nil
}
