// Package config provides YAML-based configuration for orbit.
package config

import "time"

// Core collection defaults.
const (
	DefaultDatabaseURL             = "social_graph.db"
	DefaultMaxTopPostsPerRun       = 20
	DefaultMaxEngagersPerPost      = 500
	DefaultCoEngagementWindowHours = 72
	DefaultAttributionLookbackDays = 7
	DefaultConfigVersion           = "1.0.0"
)

// Server defaults.
const (
	DefaultServerAddr            = ":8000"
	DefaultServerShutdownTimeout = 10 * time.Second
)

// Telemetry defaults.
const (
	DefaultTelemetryLogLevel    = "info"
	DefaultTelemetryLogJSON     = false
	DefaultTelemetrySampleRatio = 0.0
)

// Collector defaults.
const (
	DefaultCollectorMaxPages       = 0
	DefaultCollectorRequestTimeout = 30 * time.Second
	DefaultCollectorRateLimitRPS   = 1.0
	DefaultCollectorRateLimitBurst = 2
)
