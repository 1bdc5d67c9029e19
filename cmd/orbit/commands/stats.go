package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/pkg/observability"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show database totals and the latest activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"METRIC", "VALUE"})
	tw.AppendRow(table.Row{"runs", humanize.Comma(stats.TotalRuns)})
	tw.AppendRow(table.Row{"completed runs", humanize.Comma(stats.CompletedRuns)})
	tw.AppendRow(table.Row{"accounts", humanize.Comma(stats.TotalAccounts)})
	tw.AppendRow(table.Row{"snapshots", humanize.Comma(stats.TotalSnapshots)})
	tw.AppendRow(table.Row{"intervals", humanize.Comma(stats.TotalIntervals)})
	tw.AppendRow(table.Row{"posts", humanize.Comma(stats.TotalPosts)})
	tw.AppendRow(table.Row{"frames", humanize.Comma(stats.TotalFrames)})
	tw.AppendRow(table.Row{"raw pages", humanize.Comma(stats.TotalRawPages)})

	fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

	if stats.LatestRun != nil {
		progressf(cmd, "latest run: %d (%s, %s)\n",
			stats.LatestRun.ID, stats.LatestRun.Status, humanize.Time(stats.LatestRun.StartedAt))
	}

	if stats.LatestSnapshot != nil {
		progressf(cmd, "latest snapshot: %d (%s, %s accounts)\n",
			stats.LatestSnapshot.ID, stats.LatestSnapshot.Kind, humanize.Comma(stats.LatestSnapshot.AccountCount))
	}

	if stats.LatestInterval != nil {
		progressf(cmd, "latest interval: %d (+%s / -%s)\n",
			stats.LatestInterval.ID,
			humanize.Comma(stats.LatestInterval.NewFollowersCount),
			humanize.Comma(stats.LatestInterval.LostFollowersCount))
	}

	return nil
}
