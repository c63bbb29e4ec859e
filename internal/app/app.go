// Package app wires configuration into the shared components used by the
// API server and the recalculation worker.
package app

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"carbon-scribe/sequestration-backend/internal/carbon"
	"carbon-scribe/sequestration-backend/internal/config"
	"carbon-scribe/sequestration-backend/internal/sequestration"
	"carbon-scribe/sequestration-backend/pkg/storage"
)

// NewLogger builds a logger for level. "development" gives the human-readable
// development logger; anything else is a production logger at that level.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "development") {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// OpenDatabase connects to PostgreSQL and applies the pool settings
func OpenDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	return db, nil
}

// NewEngine creates the sequestration engine from the estimation settings
func NewEngine(cfg config.EstimationConfig, logger *zap.Logger) (*sequestration.Engine, error) {
	opts := []sequestration.Option{
		sequestration.WithIterations(cfg.Iterations),
		sequestration.WithDefaultUncertainty(cfg.DefaultNDVIStd),
		sequestration.WithPercentiles(cfg.IntervalPercentile[0], cfg.IntervalPercentile[1]),
		sequestration.WithLogger(logger),
	}
	if cfg.Workers > 0 {
		opts = append(opts, sequestration.WithWorkers(cfg.Workers))
	}
	if cfg.Seed != nil {
		opts = append(opts, sequestration.WithSeed(*cfg.Seed))
	}

	engine, err := sequestration.NewEngine(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequestration engine: %w", err)
	}
	return engine, nil
}

// Components are the pieces built by NewCarbon
type Components struct {
	Repository *carbon.GormRepository
	Service    *carbon.Service
	Ingestion  *carbon.Ingestion
	Farms      *carbon.FarmService
	Cache      *carbon.ReportCache
}

// Close stops background goroutines
func (c *Components) Close() {
	c.Cache.Stop()
}

// NewCarbon builds the carbon service with its repository, cache, S3 store
// and SNS notifier. Storage and notifications are optional.
func NewCarbon(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Components, error) {
	engine, err := NewEngine(cfg.Estimation, logger)
	if err != nil {
		return nil, err
	}

	var store storage.S3Client
	if cfg.Storage.Enabled() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Client
		logger.Info("Report exports will be uploaded", zap.String("bucket", cfg.Storage.Bucket))
	}

	var notifier carbon.Notifier = carbon.NopNotifier{}
	if cfg.Notifications.TopicARN != "" {
		region := cfg.Notifications.Region
		if region == "" {
			region = cfg.Storage.Region
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
		}
		notifier = carbon.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.Notifications.TopicARN, logger)
		logger.Info("Estimate events will be published", zap.String("topic_arn", cfg.Notifications.TopicARN))
	}

	repo := carbon.NewRepository(db)
	cache := carbon.NewReportCache(cfg.Cache.TTL)
	service := carbon.NewService(repo, engine, cache, notifier, store, carbon.ServiceConfig{
		Timeout:       cfg.Estimation.Timeout,
		MaxRangeYears: cfg.Estimation.MaxRangeYears,
		Bucket:        cfg.Storage.Bucket,
		Prefix:        cfg.Storage.Prefix,
		PresignTTL:    cfg.Storage.PresignTTL,
	}, logger)

	ingestion := carbon.NewIngestion(repo, cache, engine.Catalog(), cfg.Estimation.MaxCloudCover, logger)

	farms := carbon.NewFarmService(repo, cache, logger)

	return &Components{
		Repository: repo,
		Service:    service,
		Ingestion:  ingestion,
		Farms:      farms,
		Cache:      cache,
	}, nil
}
