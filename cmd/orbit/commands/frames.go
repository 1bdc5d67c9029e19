package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/pkg/observability"
)

type framesBuildOptions struct {
	intervalID int64
	timeframe  int
	egoID      string
}

// NewFramesCommand creates the frames command and its subcommands.
func NewFramesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "frames",
		Short:         "Build and inspect graph frames",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newFramesBuildCommand())

	return cmd
}

func newFramesBuildCommand() *cobra.Command {
	opts := &framesBuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a frame for an interval",
		Long: `Compute a laid-out graph frame for one interval: edge weights over
the timeframe, node tiers, communities, and 3-D positions seeded from
the previous frame. With no --interval the latest interval is used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFramesBuild(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.intervalID, "interval", 0, "interval id to build (0 builds the latest)")
	cmd.Flags().IntVar(&opts.timeframe, "timeframe", frames.DefaultTimeframeDays, "edge-decay timeframe in days")
	cmd.Flags().StringVar(&opts.egoID, "ego", "", "ego account id (defaults to the run's subject)")

	return cmd
}

func runFramesBuild(cmd *cobra.Command, opts *framesBuildOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	builder := frames.NewBuilder(a.store, a.providers.Logger)

	res, err := builder.Build(cmd.Context(), frames.BuildRequest{
		IntervalID:    opts.intervalID,
		TimeframeDays: opts.timeframe,
		EgoID:         opts.egoID,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)

	_, _ = green.Fprintf(cmd.OutOrStdout(), "frame %d built for interval %d\n", res.Row.ID, res.Row.IntervalID)
	progressf(cmd, "  nodes: %d  edges: %d  communities: %d  timeframe: %dd\n",
		len(res.Frame.Nodes), len(res.Frame.Edges), len(res.Frame.Communities), res.Frame.TimeframeDays)

	return nil
}
