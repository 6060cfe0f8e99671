package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/digest"
)

func runDigest(args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	force := fs.Bool("force", false, "Skip the recently-covered topic filter")
	dryRun := fs.Bool("dry-run", false, "Curate and print without publishing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "digest does not accept positional arguments")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	textClient := summarizerClient(cfg)
	if textClient == nil {
		fmt.Fprintln(os.Stderr, "PULSE_SUMMARIZER_BASE_URL is required for digest")
		return 2
	}

	ctx, cancel, pool, err := connectPool(cfg, *timeout)
	if err != nil {
		logger.Error().Err(err).Msg("digest failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	curator := digest.NewCurator(pool, pool, textClient, logger, digest.Options{})

	result, err := curator.Curate(ctx, *force)
	if err != nil {
		if errors.Is(err, digest.ErrNoEligibleClusters) {
			fmt.Fprintln(os.Stderr, "No eligible clusters; nothing to publish")
			return 1
		}
		logger.Error().Err(err).Msg("digest curation failed")
		fmt.Fprintf(os.Stderr, "Digest curation failed: %v\n", err)
		return 1
	}

	if !*dryRun {
		sink := digestSink(cfg, logger)
		if err := sink.Publish(ctx, result); err != nil {
			logger.Error().Err(err).Msg("digest publish failed")
			fmt.Fprintf(os.Stderr, "Digest publish failed: %v\n", err)
			return 1
		}
	}

	type printedEntry struct {
		Title string  `json:"title"`
		Link  string  `json:"link,omitempty"`
		Score float64 `json:"score"`
	}
	entries := make([]printedEntry, 0, len(result.Clusters))
	for _, cluster := range result.Clusters {
		entries = append(entries, printedEntry{
			Title: cluster.DisplayName,
			Link:  cluster.BestLink,
			Score: cluster.Score,
		})
	}

	if err := printJSON(map[string]any{
		"narrative": result.Content.Text,
		"entries":   entries,
		"published": !*dryRun,
		"force":     *force,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
