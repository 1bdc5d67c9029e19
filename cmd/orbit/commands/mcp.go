package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/mcp"
	"github.com/fieldline/orbit/pkg/observability"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Expose the graph, post attributions, and run history as MCP tools
over stdio JSON-RPC. Logs go to stderr so stdout stays clean for the
protocol stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, observability.ModeMCP)
	if err != nil {
		return err
	}

	defer a.Close()

	metrics, err := observability.NewREDMetrics(a.providers.Meter)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(mcp.ServerDeps{
		Store:  a.store,
		Frames: frames.NewBuilder(a.store, a.providers.Logger),
		Posts: attribution.New(attribution.Config{
			Store:        a.store,
			LookbackDays: a.cfg.AttributionLookbackDays,
			Logger:       a.providers.Logger,
		}),
		Logger:  a.providers.Logger,
		Metrics: metrics,
		Tracer:  a.providers.Tracer,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.providers.Logger.Info("mcp server starting", "tools", srv.ListToolNames())

	return srv.Run(ctx)
}
