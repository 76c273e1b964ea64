package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Chudetat/moodlight/internal/ai"
	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/logging"
	"github.com/Chudetat/moodlight/internal/services"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	logger.Info("Starting alert pipeline")

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Redis only accelerates the cooldown gate; run without it if down.
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, cooldown checks fall back to the database")
		redis = nil
	} else {
		defer redis.Close()
	}

	pool := db.Pool
	alerts := database.NewAlertRepository(pool)
	snapshots := database.NewSnapshotRepository(pool)
	records := database.NewRecordsRepository(pool)
	watchlists := database.NewWatchlistRepository(pool)
	thresholds := database.NewThresholdRepository(pool)
	feedback := database.NewFeedbackRepository(pool)
	competitive := database.NewCompetitiveRepository(pool)
	runs := database.NewPipelineRunRepository(pool)

	generator := ai.NewClient(cfg, logger)
	trends := services.NewTrendAnalyzer(cfg, snapshots, logger)

	pipeline := services.NewPipeline(cfg, services.PipelineDeps{
		Records:     records,
		Watchlists:  watchlists,
		Thresholds:  thresholds,
		Alerts:      alerts,
		Snapshots:   snapshots,
		Competitive: competitive,
		Runs:        runs,

		SnapshotSvc: services.NewSnapshotService(snapshots, logger),
		Predictive:  services.NewPredictiveDetector(trends, logger),
		Correlator:  services.NewCorrelator(generator, logger),
		Cooldown:    services.NewCooldownService(cfg, redis, alerts, logger),
		Chain:       services.NewChainService(cfg, generator, alerts, snapshots, logger),
		Tuner:       services.NewAdaptiveTuner(cfg, alerts, feedback, thresholds, logger),
		Cleanup:     services.NewCleanupService(pool, logger),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Pipeline run failed")
	}
	logger.WithFields(map[string]interface{}{
		"stored":    summary.Stored,
		"snapshots": summary.SnapshotsCaptured,
	}).Info("Pipeline run finished")
}
