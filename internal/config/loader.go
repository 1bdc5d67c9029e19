package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".orbit"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for orbit settings.
const envPrefix = "SOCIAL_GRAPH"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("database_url", DefaultDatabaseURL)
	viperCfg.SetDefault("twitter_bearer_token", "")
	viperCfg.SetDefault("x_bearer_token", "")
	viperCfg.SetDefault("max_top_posts_per_run", DefaultMaxTopPostsPerRun)
	viperCfg.SetDefault("max_engagers_per_post", DefaultMaxEngagersPerPost)
	viperCfg.SetDefault("co_engagement_window_hours", DefaultCoEngagementWindowHours)
	viperCfg.SetDefault("attribution_lookback_days", DefaultAttributionLookbackDays)
	viperCfg.SetDefault("config_version", DefaultConfigVersion)

	viperCfg.SetDefault("server.addr", DefaultServerAddr)
	viperCfg.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.log_level", DefaultTelemetryLogLevel)
	viperCfg.SetDefault("telemetry.log_json", DefaultTelemetryLogJSON)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultTelemetrySampleRatio)

	viperCfg.SetDefault("collector.max_pages", DefaultCollectorMaxPages)
	viperCfg.SetDefault("collector.request_timeout", DefaultCollectorRequestTimeout)
	viperCfg.SetDefault("collector.rate_limit_rps", DefaultCollectorRateLimitRPS)
	viperCfg.SetDefault("collector.rate_limit_burst", DefaultCollectorRateLimitBurst)
}
