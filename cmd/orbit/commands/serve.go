package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/collector"
	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/server"
	"github.com/fieldline/orbit/pkg/observability"
)

type serveOptions struct {
	addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the read API (runs, snapshots, intervals, frames, posts) and,
when a bearer token is configured, the POST /collect trigger. The
server drains in-flight requests on SIGINT or SIGTERM.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (defaults to the configured server address)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	a, err := newApp(cmd, observability.ModeServe)
	if err != nil {
		return err
	}

	defer a.Close()

	addr := opts.addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	redMetrics, err := observability.NewREDMetrics(a.providers.Meter)
	if err != nil {
		return err
	}

	collectMetrics, err := observability.NewCollectMetrics(a.providers.Meter)
	if err != nil {
		return err
	}

	var coll *collector.Collector

	client := a.upstreamClient(collectMetrics)
	if client != nil {
		coll = collector.New(collector.Config{
			Store:  a.store,
			Client: client,
			Limits: collector.Limits{
				MaxTopPostsPerRun:       a.cfg.MaxTopPostsPerRun,
				MaxEngagersPerPost:      a.cfg.MaxEngagersPerPost,
				CoEngagementWindowHours: a.cfg.CoEngagementWindowHours,
				AttributionLookbackDays: a.cfg.AttributionLookbackDays,
			},
			ConfigVersion: a.cfg.ConfigVersion,
			Logger:        a.providers.Logger,
			Metrics:       collectMetrics,
		})
	} else {
		a.providers.Logger.Warn("no bearer token configured; POST /collect disabled")
	}

	srv := server.New(server.Config{
		Store:     a.store,
		Frames:    frames.NewBuilder(a.store, a.providers.Logger),
		Posts:     attribution.New(attribution.Config{Store: a.store, LookbackDays: a.cfg.AttributionLookbackDays, Logger: a.providers.Logger}),
		Collector: coll,
		Logger:    a.providers.Logger,
		Tracer:    a.providers.Tracer,
		Metrics:   redMetrics,
	})

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.providers.Logger.Info("http server listening", "addr", addr)

		serveErr := httpServer.ListenAndServe()
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}

		return serveErr
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		a.providers.Logger.Info("shutting down http server")

		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
