package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/pkg/observability"
)

type runsOptions struct {
	limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &runsOptions{}

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List collection runs, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum runs to list")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *runsOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	runs, err := a.store.ListRuns(cmd.Context(), opts.limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		progressf(cmd, "no runs yet; try orbit collect\n")

		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "STARTED", "STATUS", "NOTES"})

	for _, run := range runs {
		tw.AppendRow(table.Row{
			run.ID,
			humanize.Time(run.StartedAt),
			run.Status,
			run.Notes,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

	return nil
}
