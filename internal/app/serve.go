package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/httpapi"
	"horse.fit/pulse/internal/ingest"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8080, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	_, dbCancel, pool, err := connectPool(cfg, 10*time.Second)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer dbCancel()
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	cache := feed.NewCache()
	rebuilder := feed.NewRebuilder(pool, cache, logger, cfg.FeedWindow())

	textClient := summarizerClient(cfg)

	var refresher feed.Refresher
	if textClient != nil {
		refresher = ingest.NewService(pool, nil, textClient, cfg.EmbeddingModel, logger)
	}

	scheduler := feed.NewScheduler(rebuilder, refresher, logger, cfg.RebuildInterval(), cfg.RefreshInterval())
	scheduler.Start(ctx)

	var curator httpapi.Curator
	if textClient != nil {
		curator = digest.NewCurator(pool, pool, textClient, logger, digest.Options{})
	}

	srv := httpapi.NewServer(cache, scheduler, curator, digestSink(cfg, logger), logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
