// Package config loads moai-rank configuration from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Database holds connection settings for the relational store.
type Database struct {
	URL          string        `envconfig:"DATABASE_URL" default:"file:moai-rank.db"`
	AuthToken    string        `envconfig:"DATABASE_AUTH_TOKEN"`
	MaxOpenConns int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"5"`
	ConnLifetime time.Duration `envconfig:"DATABASE_CONN_LIFETIME" default:"5m"`
}

// Redis holds settings for the distributed cache. An empty URL disables it.
type Redis struct {
	URL       string `envconfig:"REDIS_URL"`
	Namespace string `envconfig:"REDIS_NAMESPACE" default:"moai-rank"`
}

// Metrics holds OTEL exporter settings.
type Metrics struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"false"`
}

// Log holds logger settings.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Ingest holds session ingestion settings.
type Ingest struct {
	ReplayWindow   time.Duration `envconfig:"INGEST_REPLAY_WINDOW" default:"300s"`
	RateLimit      int           `envconfig:"INGEST_RATE_LIMIT" default:"100"`
	RateWindow     time.Duration `envconfig:"INGEST_RATE_WINDOW" default:"1m"`
	MaxBodyBytes   int64         `envconfig:"INGEST_MAX_BODY_BYTES" default:"1048576"`
	MaxBatchedSize int           `envconfig:"INGEST_MAX_BATCH" default:"100"`
}

// Ranking holds ranking batch settings.
type Ranking struct {
	BatchSize  int           `envconfig:"RANKING_BATCH_SIZE" default:"100"`
	Timeout    time.Duration `envconfig:"RANKING_TIMEOUT" default:"5m"`
	StreakDays int           `envconfig:"RANKING_STREAK_DAYS" default:"30"`
}

// Retention holds the retention sweep horizons.
type Retention struct {
	UsageDays       int `envconfig:"RETENTION_USAGE_DAYS" default:"90"`
	DailyRankDays   int `envconfig:"RETENTION_DAILY_RANKING_DAYS" default:"30"`
	ActivityLogDays int `envconfig:"RETENTION_ACTIVITY_DAYS" default:"90"`
}

// Config is the full service configuration.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CronSecret      string        `envconfig:"CRON_SECRET"`

	Database  Database
	Redis     Redis
	Metrics   Metrics
	Log       Log
	Ingest    Ingest
	Ranking   Ranking
	Retention Retention
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
