package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/render"
	"github.com/fieldline/orbit/pkg/graph"
	"github.com/fieldline/orbit/pkg/observability"
)

type renderOptions struct {
	intervalID int64
	timeframe  int
	output     string
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a built frame as a standalone HTML page",
		Long: `Write a self-contained HTML page showing a built frame with its
stored layout, one color per community. With no --interval the latest
built frame for the timeframe is rendered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.intervalID, "interval", 0, "interval id to render (0 renders the latest frame)")
	cmd.Flags().IntVar(&opts.timeframe, "timeframe", frames.DefaultTimeframeDays, "timeframe in days the frame was built with")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "frame.html", "output file path")

	return cmd
}

func runRender(cmd *cobra.Command, opts *renderOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	builder := frames.NewBuilder(a.store, a.providers.Logger)

	var frame *graph.Frame

	if opts.intervalID > 0 {
		frame, err = builder.Frame(cmd.Context(), opts.intervalID, opts.timeframe)
	} else {
		frame, err = builder.Latest(cmd.Context(), opts.timeframe)
	}

	if err != nil {
		return err
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return err
	}

	err = render.WriteHTML(out, frame)
	if err != nil {
		_ = out.Close()

		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	progressf(cmd, "wrote %s (%d nodes, %d edges)\n", opts.output, len(frame.Nodes), len(frame.Edges))

	return nil
}
