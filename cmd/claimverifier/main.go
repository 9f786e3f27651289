// Package main wires together the claim verification service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sedamusic/claim-verifier/internal/api"
	"github.com/sedamusic/claim-verifier/internal/app"
	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/clock/system"
	"github.com/sedamusic/claim-verifier/internal/code"
	"github.com/sedamusic/claim-verifier/internal/config"
	"github.com/sedamusic/claim-verifier/internal/dispatcher"
	headlessfetcher "github.com/sedamusic/claim-verifier/internal/fetcher/headless"
	probefetcher "github.com/sedamusic/claim-verifier/internal/fetcher/probe"
	"github.com/sedamusic/claim-verifier/internal/id/uuid"
	"github.com/sedamusic/claim-verifier/internal/logging"
	"github.com/sedamusic/claim-verifier/internal/metrics"
	"github.com/sedamusic/claim-verifier/internal/policy/quota"
	"github.com/sedamusic/claim-verifier/internal/policy/ratelimit"
	queuememory "github.com/sedamusic/claim-verifier/internal/queue/memory"
	"github.com/sedamusic/claim-verifier/internal/service"
	"github.com/sedamusic/claim-verifier/internal/sweeper"
	"github.com/sedamusic/claim-verifier/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	services, err := app.New(ctx, cfg, logger.Named("app"))
	if err != nil {
		logger.Fatal("service init failed", zap.Error(err))
	}
	defer services.Close()

	clock := system.New()
	queue := queuememory.NewQueue(cfg.Crawler.QueueDepth)

	verifier := service.New(
		services.Requests,
		services.Profiles,
		services.Notifier,
		queue,
		quota.New(services.Requests, clock, quota.Config{DailyLimit: cfg.Claims.DailyLimit}),
		code.New(),
		uuid.New(),
		clock,
		service.Config{
			RequestTTL:       cfg.RequestTTL(),
			MinDenyReasonLen: cfg.Claims.MinDenyReasonLen,
		},
		logger.Named("verifier"),
	)

	// The crawl queue does not survive a restart, so crawling rows from a
	// previous process have no worker coming for them.
	if recovered, err := verifier.RecoverStalled(ctx); err != nil {
		logger.Fatal("stalled crawl recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logger.Warn("escalated stalled crawls from previous run", zap.Int("count", recovered))
	}

	probe := probefetcher.New(probefetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.AttemptTimeout(),
	})
	headless, err := headlessfetcher.New(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("headless fetcher init failed", zap.Error(err))
	}
	defer headless.Close()

	pacer := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.HostRPS,
		DefaultBurst: cfg.Crawler.HostBurst,
	})
	retry := claims.NewRetryPolicy(
		cfg.Crawler.MaxAttempts,
		time.Duration(cfg.Crawler.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Crawler.BackoffMaxMs)*time.Millisecond,
	)
	workerCfg := worker.Config{
		SnapshotPrefix: cfg.Storage.Prefix,
		CacheTTL:       cfg.CacheTTL(),
		AttemptTimeout: cfg.AttemptTimeout(),
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			services.Cache,
			services.Snapshots,
			verifier,
			probe,
			headless,
			pacer,
			retry,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	sweep, err := sweeper.New(verifier, sweeper.Config{Schedule: cfg.Sweep.Schedule}, logger.Named("sweeper"))
	if err != nil {
		logger.Fatal("sweeper init failed", zap.Error(err))
	}

	apiServer := api.NewServer(verifier, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawler.Concurrency))
		dispatch.Run(ctx)
	}()
	sweep.Start()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sweep.Stop()
	queue.Close()
	logger.Info("shutdown complete")
}
