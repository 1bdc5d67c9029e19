package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/pkg/observability"
)

type intervalsOptions struct {
	limit int
}

// NewIntervalsCommand creates the intervals command.
func NewIntervalsCommand() *cobra.Command {
	opts := &intervalsOptions{}

	cmd := &cobra.Command{
		Use:           "intervals",
		Short:         "List follower intervals, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIntervals(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum intervals to list")

	return cmd
}

func runIntervals(cmd *cobra.Command, opts *intervalsOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	intervals, err := a.store.ListIntervals(cmd.Context(), opts.limit)
	if err != nil {
		return err
	}

	if len(intervals) == 0 {
		progressf(cmd, "no intervals yet; two collection runs are needed for a diff\n")

		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "END", "NEW", "LOST"})

	for _, iv := range intervals {
		tw.AppendRow(table.Row{
			iv.ID,
			humanize.Time(iv.EndAt),
			fmt.Sprintf("+%s", humanize.Comma(iv.NewFollowersCount)),
			fmt.Sprintf("-%s", humanize.Comma(iv.LostFollowersCount)),
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

	return nil
}
