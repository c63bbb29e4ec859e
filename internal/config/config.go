package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Estimation    EstimationConfig    `json:"estimation"`
	Storage       StorageConfig       `json:"storage"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Cache         CacheConfig         `json:"cache"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// EstimationConfig tunes the sequestration engine
type EstimationConfig struct {
	Iterations         int           `json:"iterations"`
	DefaultNDVIStd     float64       `json:"default_ndvi_std"`
	Workers            int           `json:"workers"` // 0 uses GOMAXPROCS
	Seed               *uint64       `json:"seed,omitempty"`
	Timeout            time.Duration `json:"timeout"`
	MaxRangeYears      int           `json:"max_range_years"`
	IntervalPercentile [2]float64    `json:"interval_percentiles"`
	MaxCloudCover      float64       `json:"max_cloud_cover"` // percent; cloudier observations are not ingested
}

// StorageConfig configures the S3 bucket used for report exports
type StorageConfig struct {
	Bucket          string        `json:"bucket"`
	Region          string        `json:"region"`
	Endpoint        string        `json:"endpoint,omitempty"` // S3-compatible endpoint, e.g. MinIO
	AccessKeyID     string        `json:"access_key_id,omitempty"`
	SecretAccessKey string        `json:"secret_access_key,omitempty"`
	Prefix          string        `json:"prefix"`
	PresignTTL      time.Duration `json:"presign_ttl"`
}

// Enabled reports whether exports should be uploaded
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// NotificationsConfig configures SNS publishing
type NotificationsConfig struct {
	TopicARN string `json:"topic_arn"`
	Region   string `json:"region"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"` // development, debug, info, warn, error
}

// CacheConfig
type CacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// SchedulerConfig configures scheduled recalculation
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	Cron         string `json:"cron"`
	Concurrency  int    `json:"concurrency"`
	LookbackDays int    `json:"lookback_days"`
}

// LoadConfig loads configuration from .env, the JSON file and environment
// variables, in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbonscribe_sequestration",
			SSLMode:        "disable",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    time.Hour,
		},
		Estimation: EstimationConfig{
			Iterations:         10000,
			DefaultNDVIStd:     0.05,
			Timeout:            2 * time.Minute,
			MaxRangeYears:      5,
			IntervalPercentile: [2]float64{2.5, 97.5},
			MaxCloudCover:      60,
		},
		Storage: StorageConfig{
			Region:     "us-east-1",
			Prefix:     "reports/carbon",
			PresignTTL: 15 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Cache:   CacheConfig{TTL: 30 * time.Minute},
		Scheduler: SchedulerConfig{
			Cron:         "0 2 * * *",
			Concurrency:  4,
			LookbackDays: 365,
		},
	}
}

func overrideWithEnv(config *Config) error {
	strings := map[string]*string{
		"SERVER_HOST":           &config.Server.Host,
		"DATABASE_HOST":         &config.Database.Host,
		"DATABASE_USER":         &config.Database.User,
		"DATABASE_PASSWORD":     &config.Database.Password,
		"DATABASE_DBNAME":       &config.Database.DBName,
		"DATABASE_SSLMODE":      &config.Database.SSLMode,
		"S3_BUCKET":             &config.Storage.Bucket,
		"S3_REGION":             &config.Storage.Region,
		"S3_ENDPOINT":           &config.Storage.Endpoint,
		"AWS_ACCESS_KEY_ID":     &config.Storage.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &config.Storage.SecretAccessKey,
		"SNS_TOPIC_ARN":         &config.Notifications.TopicARN,
		"SNS_REGION":            &config.Notifications.Region,
		"JWT_SECRET":            &config.Security.JWTSecret,
		"LOG_LEVEL":             &config.Logging.Level,
		"RECALC_CRON":           &config.Scheduler.Cron,
	}
	for key, target := range strings {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":          &config.Server.Port,
		"DATABASE_PORT":        &config.Database.Port,
		"MC_ITERATIONS":        &config.Estimation.Iterations,
		"MC_WORKERS":           &config.Estimation.Workers,
		"MAX_RANGE_YEARS":      &config.Estimation.MaxRangeYears,
		"RECALC_CONCURRENCY":   &config.Scheduler.Concurrency,
		"RECALC_LOOKBACK_DAYS": &config.Scheduler.LookbackDays,
	}
	for key, target := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*target = n
		}
	}

	durations := map[string]*time.Duration{
		"ESTIMATE_TIMEOUT": &config.Estimation.Timeout,
		"CACHE_TTL":        &config.Cache.TTL,
		"S3_PRESIGN_TTL":   &config.Storage.PresignTTL,
	}
	for key, target := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*target = d
		}
	}

	if v := os.Getenv("DEFAULT_NDVI_STD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid DEFAULT_NDVI_STD: %w", err)
		}
		config.Estimation.DefaultNDVIStd = f
	}
	if v := os.Getenv("MAX_CLOUD_COVER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_CLOUD_COVER: %w", err)
		}
		config.Estimation.MaxCloudCover = f
	}
	if v := os.Getenv("MC_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MC_SEED: %w", err)
		}
		config.Estimation.Seed = &seed
	}
	if v := os.Getenv("RECALC_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RECALC_ENABLED: %w", err)
		}
		config.Scheduler.Enabled = enabled
	}

	return nil
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Estimation.Iterations < 2 {
		return fmt.Errorf("estimation iterations must be at least 2")
	}
	if c.Estimation.DefaultNDVIStd < 0 {
		return fmt.Errorf("default NDVI std must be non-negative")
	}
	if c.Estimation.MaxCloudCover < 0 || c.Estimation.MaxCloudCover > 100 {
		return fmt.Errorf("max cloud cover must be between 0 and 100")
	}
	if c.Estimation.MaxRangeYears <= 0 {
		return fmt.Errorf("max range years must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler enabled without a cron expression")
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
