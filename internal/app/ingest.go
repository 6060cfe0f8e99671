package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/ingest"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	embed := fs.Bool("embed", false, "Backfill embeddings after ingesting")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "ingest requires at least one payload JSON file")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	textClient := summarizerClient(cfg)
	if *embed && textClient == nil {
		fmt.Fprintln(os.Stderr, "PULSE_SUMMARIZER_BASE_URL is required for --embed")
		return 2
	}

	ctx, cancel, pool, err := connectPool(cfg, *timeout)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	var embedder ingest.Embedder
	if textClient != nil {
		embedder = textClient
	}
	service := ingest.NewService(pool, nil, embedder, cfg.EmbeddingModel, logger)

	ingested := 0
	failed := 0
	for _, path := range fs.Args() {
		payload, err := os.ReadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		if _, err := service.IngestPayload(ctx, payload); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		ingested++
	}

	embedded := 0
	if *embed {
		embedded, err = service.EmbedPending(ctx, ingest.DefaultEmbedLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embedding backfill failed: %v\n", err)
		}
	}

	fmt.Printf("ingested=%d failed=%d embedded=%d\n", ingested, failed, embedded)
	if failed > 0 && ingested == 0 {
		return 1
	}
	return 0
}
