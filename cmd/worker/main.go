package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeline-archive/internal/archive"
	"timeline-archive/internal/config"
	"timeline-archive/internal/db"
	"timeline-archive/internal/logging"
	"timeline-archive/internal/metrics"
	"timeline-archive/internal/pipeline"
	"timeline-archive/internal/queue"
	"timeline-archive/internal/ratelimit"
	"timeline-archive/internal/redis"
	"timeline-archive/internal/scheduler"
	"timeline-archive/internal/store"
	"timeline-archive/internal/twitter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker", "service", "timeline-archive-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL (with retry)
	var dbConn *db.DB
	for i := 0; i < 5; i++ {
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err == nil {
			break
		}
		logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, cfg.DBDSN); err != nil {
		logger.Error("migrations_failed", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	metrics.StartServer(cfg.MetricsAddr)

	accounts := store.NewAccounts(dbConn, logger)
	posts := store.NewPosts(dbConn, logger)

	jobQueue := queue.New(logger, redisClient)

	limiter := ratelimit.New(logger, redisClient)
	scraper := twitter.NewScraper(logger, cfg.ScraperBase)

	// Authenticated access is a static configuration decision: with no bearer
	// token the scraper carries profile resolution and hydration is skipped.
	var profileSource pipeline.ProfileSource = scraper
	var apiClient *twitter.Client
	if cfg.TwitterBearerToken != "" {
		apiClient = twitter.NewClient(logger, cfg.TwitterAPIBase, cfg.TwitterBearerToken, limiter)
		profileSource = apiClient
		logger.Info("authenticated_api_enabled")
	} else {
		logger.Info("scraper_only_mode")
	}

	// Archive client (S3/R2 or simulator)
	var archiver pipeline.Archiver
	if cfg.ArchiveEndpoint != "" && cfg.ArchiveBucket != "" {
		var keys map[string]string
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &keys); err == nil {
			s3Client, err := archive.NewS3Client(archive.S3Config{
				Endpoint:        cfg.ArchiveEndpoint,
				AccessKeyID:     keys["access_key_id"],
				SecretAccessKey: keys["secret_access_key"],
				Bucket:          cfg.ArchiveBucket,
				Region:          "auto",
			})
			if err == nil {
				archiver = s3Client
				logger.Info("using_s3_archive", "endpoint", cfg.ArchiveEndpoint)
			}
		}
	}
	if archiver == nil {
		archiver = archive.NewSimulator(cfg.ArchiveBucket, cfg.ArchiveEndpoint)
		logger.Info("using_archive_simulator")
	}

	profileSync := pipeline.NewProfileSync(logger, accounts, profileSource)

	var timelineSource pipeline.TimelineSource = scraper
	if apiClient != nil {
		timelineSource = apiClient
	}
	timelineSync := pipeline.NewTimelineSync(logger, accounts, posts, timelineSource)

	backfill := pipeline.NewBackfill(logger, accounts, posts, scraper).WithArchiver(archiver)
	if apiClient != nil {
		backfill = backfill.WithHydrator(apiClient)
	}

	orch := pipeline.NewOrchestrator(logger, profileSync, timelineSync, backfill, accounts, jobQueue)

	consumer := queue.NewConsumer(logger, jobQueue, orch.Handle)
	consumer.Start(cfg.WorkerCount)

	sched := scheduler.New(logger, jobQueue)
	if err := sched.Start(cfg.RefreshSchedule); err != nil {
		logger.Error("scheduler_start_failed", "error", err)
		os.Exit(1)
	}

	logger.Info("worker_started", "workers", cfg.WorkerCount)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	sched.Stop()

	logger.Info("stopping_queue_workers")
	consumer.Stop()
	logger.Info("queue_workers_stopped")

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("worker_stopped")
}
