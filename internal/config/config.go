package config

import (
	"errors"
	"log/slog"
	"time"
)

// Config is the top-level configuration struct for orbit.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	DatabaseURL             string `mapstructure:"database_url"`
	TwitterBearerToken      string `mapstructure:"twitter_bearer_token"`
	XBearerToken            string `mapstructure:"x_bearer_token"`
	MaxTopPostsPerRun       int    `mapstructure:"max_top_posts_per_run"`
	MaxEngagersPerPost      int    `mapstructure:"max_engagers_per_post"`
	CoEngagementWindowHours int    `mapstructure:"co_engagement_window_hours"`
	AttributionLookbackDays int    `mapstructure:"attribution_lookback_days"`
	ConfigVersion           string `mapstructure:"config_version"`

	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Collector CollectorConfig `mapstructure:"collector"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	Environment  string  `mapstructure:"environment"`
	LogLevel     string  `mapstructure:"log_level"`
	LogJSON      bool    `mapstructure:"log_json"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// CollectorConfig holds upstream collection settings.
type CollectorConfig struct {
	MaxPages       int           `mapstructure:"max_pages"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// sampleRatioMax is the upper bound for the trace sampling ratio.
const sampleRatioMax = 1.0

// Sentinel errors for configuration validation.
var (
	// ErrMissingDatabaseURL indicates the database path is empty.
	ErrMissingDatabaseURL = errors.New("database_url must not be empty")
	// ErrInvalidMaxTopPosts indicates the top-posts cap is negative.
	ErrInvalidMaxTopPosts = errors.New("max_top_posts_per_run must be non-negative")
	// ErrInvalidMaxEngagers indicates the per-post engager cap is negative.
	ErrInvalidMaxEngagers = errors.New("max_engagers_per_post must be non-negative")
	// ErrInvalidCoEngagementWindow indicates the co-engagement window is not positive.
	ErrInvalidCoEngagementWindow = errors.New("co_engagement_window_hours must be positive")
	// ErrInvalidLookbackDays indicates the attribution lookback is not positive.
	ErrInvalidLookbackDays = errors.New("attribution_lookback_days must be positive")
	// ErrInvalidShutdownTimeout indicates the server shutdown timeout is not positive.
	ErrInvalidShutdownTimeout = errors.New("server.shutdown_timeout must be positive")
	// ErrInvalidSampleRatio indicates the trace sampling ratio is out of range.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
	// ErrInvalidLogLevel indicates an unknown log level name.
	ErrInvalidLogLevel = errors.New("telemetry.log_level must be one of debug, info, warn, error")
	// ErrInvalidMaxPages indicates the page cap is negative.
	ErrInvalidMaxPages = errors.New("collector.max_pages must be non-negative")
	// ErrInvalidRequestTimeout indicates the upstream request timeout is not positive.
	ErrInvalidRequestTimeout = errors.New("collector.request_timeout must be positive")
	// ErrInvalidRateLimitRPS indicates the rate limit is not positive.
	ErrInvalidRateLimitRPS = errors.New("collector.rate_limit_rps must be positive")
	// ErrInvalidRateLimitBurst indicates the rate limit burst is not positive.
	ErrInvalidRateLimitBurst = errors.New("collector.rate_limit_burst must be positive")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	coreErr := c.validateCore()
	if coreErr != nil {
		return coreErr
	}

	serverErr := c.validateServer()
	if serverErr != nil {
		return serverErr
	}

	return c.validateCollector()
}

func (c *Config) validateCore() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}

	if c.MaxTopPostsPerRun < 0 {
		return ErrInvalidMaxTopPosts
	}

	if c.MaxEngagersPerPost < 0 {
		return ErrInvalidMaxEngagers
	}

	if c.CoEngagementWindowHours <= 0 {
		return ErrInvalidCoEngagementWindow
	}

	if c.AttributionLookbackDays <= 0 {
		return ErrInvalidLookbackDays
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > sampleRatioMax {
		return ErrInvalidSampleRatio
	}

	_, levelErr := c.Telemetry.SlogLevel()
	if levelErr != nil {
		return levelErr
	}

	return nil
}

func (c *Config) validateCollector() error {
	if c.Collector.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.Collector.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	if c.Collector.RateLimitRPS <= 0 {
		return ErrInvalidRateLimitRPS
	}

	if c.Collector.RateLimitBurst <= 0 {
		return ErrInvalidRateLimitBurst
	}

	return nil
}

// SlogLevel resolves the configured log level name to an [slog.Level].
func (tc TelemetryConfig) SlogLevel() (slog.Level, error) {
	switch tc.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, ErrInvalidLogLevel
	}
}
