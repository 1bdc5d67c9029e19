package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/collector"
	"github.com/fieldline/orbit/pkg/observability"
)

type refreshOptions struct {
	limit int
}

// NewRefreshProfilesCommand creates the refresh-profiles command.
func NewRefreshProfilesCommand() *cobra.Command {
	opts := &refreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh-profiles",
		Short: "Backfill profile fields for accounts missing them",
		Long: `Look up accounts that were seen in follow lists but never had their
profile fetched, and fill in handle, name, avatar, and counters.
Accounts the upstream refuses to serve are skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefreshProfiles(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 100, "maximum profiles to refresh")

	return cmd
}

func runRefreshProfiles(cmd *cobra.Command, opts *refreshOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	metrics, err := observability.NewCollectMetrics(a.providers.Meter)
	if err != nil {
		return err
	}

	client := a.upstreamClient(metrics)
	if client == nil {
		return fmt.Errorf("no bearer token configured; set SOCIAL_GRAPH_TWITTER_BEARER_TOKEN or run orbit init")
	}

	coll := collector.New(collector.Config{
		Store:         a.store,
		Client:        client,
		ConfigVersion: a.cfg.ConfigVersion,
		Logger:        a.providers.Logger,
		Metrics:       metrics,
	})

	refreshed, err := coll.RefreshProfiles(cmd.Context(), opts.limit)
	if err != nil {
		return err
	}

	progressf(cmd, "refreshed %d profiles\n", refreshed)

	return nil
}
