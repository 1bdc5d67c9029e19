package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/collector"
	"github.com/fieldline/orbit/pkg/observability"
)

type collectOptions struct {
	username string
	userID   string
	maxPages int
}

// NewCollectCommand creates the collect command.
func NewCollectCommand() *cobra.Command {
	opts := &collectOptions{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle for an account",
		Long: `Fetch the current follower and following lists for an account,
store them as snapshots, and diff them against the previous snapshots
of the same kind to produce intervals. Requires a bearer token in the
config or environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "account handle to collect (without @)")
	cmd.Flags().StringVar(&opts.userID, "user-id", "", "account id to collect (skips handle resolution)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "page cap per follow list (0 uses the configured cap)")

	return cmd
}

func runCollect(cmd *cobra.Command, opts *collectOptions) error {
	if opts.username == "" && opts.userID == "" {
		return fmt.Errorf("either --username or --user-id is required")
	}

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
		Metrics:       metrics,
	})

	res, err := coll.Collect(cmd.Context(), collector.Request{
		Handle:   opts.username,
		UserID:   opts.userID,
		MaxPages: opts.maxPages,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)

	_, _ = green.Fprintf(cmd.OutOrStdout(), "run %d completed for user %s\n", res.RunID, res.UserID)
	progressf(cmd, "  followers: snapshot %d (%s accounts)\n",
		res.FollowersSnapshotID, humanize.Comma(res.FollowersCount))
	progressf(cmd, "  following: snapshot %d (%s accounts)\n",
		res.FollowingSnapshotID, humanize.Comma(res.FollowingCount))

	if res.FollowerInterval != nil {
		progressf(cmd, "  follower interval %d: +%s new, -%s lost\n",
			res.FollowerInterval.IntervalID,
			humanize.Comma(res.FollowerInterval.New),
			humanize.Comma(res.FollowerInterval.Lost))
	} else {
		progressf(cmd, "  first follower snapshot; no interval yet\n")
	}

	if res.FollowingInterval != nil {
		progressf(cmd, "  following interval %d: +%s new, -%s lost\n",
			res.FollowingInterval.IntervalID,
			humanize.Comma(res.FollowingInterval.New),
			humanize.Comma(res.FollowingInterval.Lost))
	}

	return nil
}
