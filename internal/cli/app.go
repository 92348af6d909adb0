package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/adapters/cache"
	"github.com/modu-ai/moai-rank/internal/adapters/otel"
	"github.com/modu-ai/moai-rank/internal/adapters/ratelimit"
	"github.com/modu-ai/moai-rank/internal/adapters/sqldb"
	"github.com/modu-ai/moai-rank/internal/config"
	"github.com/modu-ai/moai-rank/internal/ingest"
	"github.com/modu-ai/moai-rank/internal/leaderboard"
	"github.com/modu-ai/moai-rank/internal/logging"
	"github.com/modu-ai/moai-rank/internal/migrate"
	"github.com/modu-ai/moai-rank/internal/ports"
	"github.com/modu-ai/moai-rank/internal/ranking"
	"github.com/modu-ai/moai-rank/internal/retention"
	"github.com/modu-ai/moai-rank/internal/users"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *sqldb.DB
	Repos   *sqldb.Repositories
	Cache   ports.Cache
	Limiter ports.RateLimiter
	Metrics ports.MetricsExporter

	redis *redis.Client
}

// NewAppContext loads configuration and opens every backing service. When
// autoMigrate is set, pending migrations are applied before returning.
func NewAppContext(ctx context.Context, autoMigrate bool) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newAppContext(ctx, cfg, autoMigrate)
}

func newAppContext(ctx context.Context, cfg *config.Config, autoMigrate bool) (*AppContext, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := sqldb.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &AppContext{Config: cfg, Log: log, DB: db, Repos: sqldb.NewRepositories(db)}

	if autoMigrate {
		if err := migrate.RunAll(ctx, db, log); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a.setupCache(ctx)

	a.Metrics = otel.NewNoOpExporter()
	if cfg.Metrics.Enabled {
		exporter, err := otel.NewExporter(ctx, cfg.Metrics)
		if err != nil {
			log.Warn("metrics disabled", zap.Error(err))
		} else {
			a.Metrics = exporter
		}
	}
	return a, nil
}

// setupCache connects Redis when configured. Without it, or when it cannot
// be reached at startup, the in-process cache and limiter are used.
func (a *AppContext) setupCache(ctx context.Context) {
	memoryLimiter := ratelimit.NewMemory()
	a.Cache = cache.NewMemory()
	a.Limiter = memoryLimiter

	if a.Config.Redis.URL == "" {
		a.Log.Info("redis not configured, using in-memory cache")
		return
	}
	client, err := cache.NewClient(ctx, a.Config.Redis.URL)
	if err != nil {
		a.Log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		return
	}

	a.redis = client
	ns := a.Config.Redis.Namespace
	a.Cache = cache.NewBreaker(cache.NewRedis(client, ns), cache.BreakerSettings("leaderboard-cache", a.Log))
	a.Limiter = ratelimit.NewFallback(ratelimit.NewRedis(client, ns), memoryLimiter, a.Log)
}

func (a *AppContext) IngestService() *ingest.Service {
	return ingest.NewService(a.Repos.Users, a.Repos.Usage, a.Metrics, a.Log, ingest.Options{
		ReplayWindow: a.Config.Ingest.ReplayWindow,
		MaxBatch:     a.Config.Ingest.MaxBatchedSize,
	})
}

func (a *AppContext) LeaderboardService() *leaderboard.Service {
	return leaderboard.NewService(a.Repos.Rankings, a.Repos.Usage, a.Cache, a.Metrics, a.Log)
}

func (a *AppContext) RankingService() *ranking.Service {
	return ranking.NewService(a.Repos.Usage, a.Repos.Rankings, a.Cache, a.Metrics, a.Log, ranking.Options{
		BatchSize:  a.Config.Ranking.BatchSize,
		StreakDays: a.Config.Ranking.StreakDays,
		Timeout:    a.Config.Ranking.Timeout,
	})
}

func (a *AppContext) RetentionService() *retention.Service {
	return retention.NewService(a.Repos.Usage, a.Repos.Rankings, a.Repos.Activities, a.Log, retention.Options{
		UsageDays:       a.Config.Retention.UsageDays,
		DailyRankDays:   a.Config.Retention.DailyRankDays,
		ActivityLogDays: a.Config.Retention.ActivityLogDays,
	})
}

func (a *AppContext) UserService() *users.Service {
	return users.NewService(a.Repos.Users, a.Repos.Activities, a.Log)
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close(ctx context.Context) error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return errors.Join(errs...)
}
