package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/feed"
)

func runRebuild(args []string) int {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	limit := fs.Int("limit", 25, "Maximum clusters to print")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "rebuild does not accept positional arguments")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel, pool, err := connectPool(cfg, *timeout)
	if err != nil {
		logger.Error().Err(err).Msg("rebuild failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	cache := feed.NewCache()
	rebuilder := feed.NewRebuilder(pool, cache, logger, cfg.FeedWindow())

	snapshot, err := rebuilder.Rebuild(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("rebuild failed")
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		return 1
	}

	clusters := snapshot.Clusters
	if *limit > 0 && *limit < len(clusters) {
		clusters = clusters[:*limit]
	}

	type printedCluster struct {
		Title   string        `json:"title"`
		Link    string        `json:"link,omitempty"`
		Score   float64       `json:"score"`
		Sources []feed.Source `json:"sources"`
		Related int           `json:"related"`
	}

	printed := make([]printedCluster, 0, len(clusters))
	for _, cluster := range clusters {
		printed = append(printed, printedCluster{
			Title:   cluster.DisplayName,
			Link:    cluster.BestLink,
			Score:   cluster.Score,
			Sources: cluster.Sources,
			Related: len(cluster.Related),
		})
	}

	if err := printJSON(map[string]any{
		"built_at": snapshot.BuiltAt,
		"total":    len(snapshot.Clusters),
		"clusters": printed,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
