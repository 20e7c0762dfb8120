// SPDX-License-Identifier: MIT

// Command daemon runs the vodhub upload and playback service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/streamloft/vodhub/internal/api"
	"github.com/streamloft/vodhub/internal/assemble"
	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/config"
	vlog "github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/transcode"
	"github.com/streamloft/vodhub/internal/upload"
	"github.com/streamloft/vodhub/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vodhub %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	vlog.Configure(vlog.Config{
		Level:   "info",
		Service: "vodhub",
		Version: version.Version,
	})
	logger := vlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	if path := strings.TrimSpace(*configPath); path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			logger.Fatal().Err(err).Str("config_path", path).Msg("failed to load configuration")
		}
		logger.Info().Str("event", "config.loaded").Str("path", path).Msg("loaded configuration from file")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage directories")
	}

	vlog.SetLevel(cfg.LogLevel)

	if cfg.APIToken == "" {
		logger.Warn().Str("event", "auth.disabled").Msg("VODHUB_API_TOKEN not set, API is unauthenticated")
	}

	sessions, err := upload.OpenStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn().Err(err).Msg("close session store")
		}
	}()

	store, err := catalog.NewStore(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open catalog database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close catalog database")
		}
	}()

	var counters catalog.Counters
	if cfg.RedisAddr != "" {
		rc, err := catalog.NewRedisCounters(cfg.RedisAddr, store)
		if err != nil {
			logger.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		defer func() {
			if err := rc.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis client")
			}
		}()
		go rc.FlushLoop(ctx, 30*time.Second)
		counters = rc
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("buffering view/like counters in redis")
	} else {
		counters = catalog.NewSQLCounters(store)
	}

	tracker := upload.NewTracker(sessions, upload.TrackerConfig{
		RequireInit: cfg.RequireInit,
		MaxFileSize: cfg.MaxFileSize,
		MinDiskFree: cfg.MinDiskFree,
		ChunkDir:    cfg.ChunkDir,
	})
	receiver := upload.NewReceiver(tracker, cfg.MinDiskFree)

	scheduler := transcode.NewScheduler(transcode.Config{
		Workers:         cfg.Workers,
		QueueDepth:      cfg.QueueDepth,
		FFmpegPath:      cfg.FFmpegPath,
		FFprobePath:     cfg.FFprobePath,
		HLSDir:          cfg.HLSDir,
		SegmentDuration: cfg.SegmentDuration,
		Qualities:       cfg.Qualities,
	}, transcode.ExecRunner{}, store)
	scheduler.Start(ctx)

	assembler := assemble.New(tracker, receiver, store, scheduler, cfg.MediaDir)

	// Background sweep of abandoned upload sessions.
	go func() {
		ticker := time.NewTicker(cfg.SweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := tracker.Sweep(ctx, cfg.SessionTTL); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn().Err(err).Msg("session sweep failed")
				}
			}
		}
	}()

	server := api.New(&cfg, tracker, receiver, assembler, scheduler, store, counters)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", cfg.Listen).
			Str("version", version.Version).
			Msg("vodhub listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}

	// Cancel the workers; in-flight encodes abort and queued jobs are
	// marked failed so nothing is silently dropped.
	stop()
	scheduler.Stop()
	logger.Info().Msg("vodhub stopped")
}
