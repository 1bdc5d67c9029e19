// Package main provides the entry point for the orbit CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/cmd/orbit/commands"
	"github.com/fieldline/orbit/pkg/version"
)

var (
	configPath string
	verbose    bool
	quiet      bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "orbit",
		Short: "Orbit - temporal social graph observatory",
		Long: `Orbit observes one account's follower network over time and turns
periodic snapshots into scrubbable 3-D graph frames.

Commands:
  collect   Run one collection cycle against the upstream
  serve     Serve the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default .orbit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	// Add commands.
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewCollectCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewFramesCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewIntervalsCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewPostsCommand())
	rootCmd.AddCommand(commands.NewRefreshProfilesCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "orbit %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
