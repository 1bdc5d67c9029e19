package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// starterFileMode is the permission set for a freshly written config file.
const starterFileMode = 0o600

// ErrConfigExists indicates the target config file is already present.
var ErrConfigExists = errors.New("config file already exists")

// WriteStarterFile writes a config file populated with default values to
// path. An existing file is never overwritten.
func WriteStarterFile(path string) error {
	_, statErr := os.Stat(path)
	if statErr == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	starter := map[string]any{
		"database_url":               DefaultDatabaseURL,
		"twitter_bearer_token":       "",
		"x_bearer_token":             "",
		"max_top_posts_per_run":      DefaultMaxTopPostsPerRun,
		"max_engagers_per_post":      DefaultMaxEngagersPerPost,
		"co_engagement_window_hours": DefaultCoEngagementWindowHours,
		"attribution_lookback_days":  DefaultAttributionLookbackDays,
		"config_version":             DefaultConfigVersion,
		"server": map[string]any{
			"addr":             DefaultServerAddr,
			"shutdown_timeout": DefaultServerShutdownTimeout.String(),
		},
		"telemetry": map[string]any{
			"otlp_endpoint": "",
			"log_level":     DefaultTelemetryLogLevel,
			"log_json":      DefaultTelemetryLogJSON,
			"sample_ratio":  DefaultTelemetrySampleRatio,
		},
		"collector": map[string]any{
			"max_pages":        DefaultCollectorMaxPages,
			"request_timeout":  DefaultCollectorRequestTimeout.String(),
			"rate_limit_rps":   DefaultCollectorRateLimitRPS,
			"rate_limit_burst": DefaultCollectorRateLimitBurst,
		},
	}

	data, err := yaml.Marshal(starter)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	writeErr := os.WriteFile(path, data, starterFileMode)
	if writeErr != nil {
		return fmt.Errorf("write config: %w", writeErr)
	}

	return nil
}
