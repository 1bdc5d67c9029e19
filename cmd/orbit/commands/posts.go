package commands

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/mockdata"
	"github.com/fieldline/orbit/pkg/observability"
)

type postsOptions struct {
	timeframe int
	limit     int
	rebuild   bool
	seedMock  bool
	asJSON    bool
}

// NewPostsCommand creates the posts command.
func NewPostsCommand() *cobra.Command {
	opts := &postsOptions{}

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Score posts and attribute follower gains to them",
		Long: `Attribute new followers within each interval to the ego's posts by
engagement evidence and timing, bucketed by confidence. Results are
cached per timeframe; --rebuild discards the cache first. --seed-mock
generates a demo dataset when no upstream data is available.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPosts(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.timeframe, "timeframe", 0, "only score posts from the last N days (0 scores all)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum posts to score, newest first (0 uses the default)")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "discard cached attribution before computing")
	cmd.Flags().BoolVar(&opts.seedMock, "seed-mock", false, "seed deterministic mock posts and engagements first")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "emit the full attribution payload as JSON")

	return cmd
}

func runPosts(cmd *cobra.Command, opts *postsOptions) error {
	a, err := newApp(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer a.Close()

	req := attribution.Request{
		TimeframeDays: opts.timeframe,
		Limit:         opts.limit,
		Rebuild:       opts.rebuild,
	}

	var results []attribution.Result

	if opts.seedMock {
		seeder := mockdata.New(a.store, a.providers.Logger)

		results, err = seeder.Seed(cmd.Context(), req)
	} else {
		posts := attribution.New(attribution.Config{
			Store:        a.store,
			LookbackDays: a.cfg.AttributionLookbackDays,
			Logger:       a.providers.Logger,
		})

		results, err = posts.Build(cmd.Context(), req)
	}

	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(results)
	}

	if len(results) == 0 {
		progressf(cmd, "no posts to score; collect first or pass --seed-mock\n")

		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"POST", "CREATED", "LIKES", "DELTA", "HIGH", "MED", "LOW"})

	for _, res := range results {
		tw.AppendRow(table.Row{
			res.PostID,
			humanize.Time(res.CreatedAt),
			humanize.Comma(res.Metrics.Likes),
			res.FollowerDelta,
			res.Attribution.High,
			res.Attribution.Medium,
			res.Attribution.Low,
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

	return nil
}
