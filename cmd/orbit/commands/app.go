// Package commands implements the orbit CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/config"
	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/internal/upstream"
	"github.com/fieldline/orbit/pkg/observability"
	"github.com/fieldline/orbit/pkg/version"
)

// app bundles the resources most commands need: loaded configuration,
// observability providers, and an open store.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	store     *store.Store
}

// globalOptions reads the root command's persistent flags.
func globalOptions(cmd *cobra.Command) (configPath string, verbose, quiet bool) {
	configPath, _ = cmd.Flags().GetString("config")
	verbose, _ = cmd.Flags().GetBool("verbose")
	quiet, _ = cmd.Flags().GetBool("quiet")

	return configPath, verbose, quiet
}

// newApp loads configuration, initializes observability for the given
// mode, and opens the store (migrating the schema and repairing state
// a crashed process left behind).
func newApp(cmd *cobra.Command, mode observability.AppMode) (*app, error) {
	configPath, verbose, quiet := globalOptions(cmd)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	providers, err := initObservability(cfg, mode, verbose, quiet)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(providers.Logger)

	st, err := store.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}

		return nil, err
	}

	report, err := st.Maintain(cmd.Context())
	if err != nil {
		providers.Logger.Warn("startup maintenance failed", "error", err)
	} else if report.StaleRuns > 0 || report.EmptySnapshots > 0 {
		providers.Logger.Info("startup maintenance",
			"stale_runs", report.StaleRuns,
			"empty_snapshots", report.EmptySnapshots)
	}

	return &app{cfg: cfg, providers: providers, store: st}, nil
}

// Close releases the store and flushes telemetry. Safe on all exit
// paths.
func (a *app) Close() {
	err := a.store.Close()
	if err != nil {
		a.providers.Logger.Warn("store close failed", "error", err)
	}

	err = a.providers.Shutdown(context.Background())
	if err != nil {
		a.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// upstreamClient builds the ingestion client, or nil when no bearer
// token is configured.
func (a *app) upstreamClient(metrics *observability.CollectMetrics) *upstream.Client {
	if a.cfg.TwitterBearerToken == "" {
		return nil
	}

	return upstream.New(upstream.Config{
		BearerToken:         a.cfg.TwitterBearerToken,
		FallbackBearerToken: a.cfg.XBearerToken,
		Timeout:             a.cfg.Collector.RequestTimeout,
		RPS:                 a.cfg.Collector.RateLimitRPS,
		Burst:               a.cfg.Collector.RateLimitBurst,
		MaxPages:            a.cfg.Collector.MaxPages,
		Logger:              a.providers.Logger,
		Metrics:             metrics,
	})
}

// initObservability maps the loaded config onto observability setup
// for one application mode. OTEL_EXPORTER_* environment variables
// override the config file, matching collector deployments.
func initObservability(cfg *config.Config, mode observability.AppMode, verbose, quiet bool) (observability.Providers, error) {
	level, err := cfg.Telemetry.SlogLevel()
	if err != nil {
		return observability.Providers{}, err
	}

	if verbose {
		level = slog.LevelDebug
	}

	if quiet {
		level = slog.LevelError
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Telemetry.LogJSON

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
		obsCfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	// MCP speaks JSON-RPC on stdout; logs must stay structured on stderr.
	if mode == observability.ModeMCP {
		obsCfg.LogJSON = true
	}

	return observability.Init(obsCfg)
}

// progressf writes user-facing progress to stdout unless --quiet.
func progressf(cmd *cobra.Command, format string, args ...any) {
	_, _, quiet := globalOptions(cmd)
	if quiet {
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
