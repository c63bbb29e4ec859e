package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"carbon-scribe/sequestration-backend/internal/app"
	"carbon-scribe/sequestration-backend/internal/carbon"
	"carbon-scribe/sequestration-backend/internal/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single recalculation pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := app.OpenDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	components, err := app.NewCarbon(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to initialize carbon module", zap.Error(err))
	}
	defer components.Close()

	scheduler, err := carbon.NewScheduler(components.Service, components.Repository, carbon.SchedulerConfig{
		CronExpression: cfg.Scheduler.Cron,
		MaxConcurrent:  cfg.Scheduler.Concurrency,
		LookbackDays:   cfg.Scheduler.LookbackDays,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}

	if *once {
		if _, err := scheduler.RunOnce(ctx); err != nil {
			logger.Fatal("Recalculation failed", zap.Error(err))
		}
		return
	}

	if !cfg.Scheduler.Enabled {
		logger.Warn("Scheduler disabled; set RECALC_ENABLED=true or scheduler.enabled to run it")
		return
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	logger.Info("Recalculation worker started", zap.Time("next_run", scheduler.NextRun()))

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	scheduler.Stop()
	logger.Info("Recalculation worker stopped")
}
