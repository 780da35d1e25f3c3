// Package app wires configuration into the stores, data source and pipeline
// shared by the server and the pipeline CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/config"
	"github.com/propsight/prediction-api/internal/engine"
	"github.com/propsight/prediction-api/internal/features"
	"github.com/propsight/prediction-api/internal/handlers"
	"github.com/propsight/prediction-api/internal/logic"
	"github.com/propsight/prediction-api/internal/pipeline"
	"github.com/propsight/prediction-api/internal/source"
	"github.com/propsight/prediction-api/internal/store"
)

const cachePrefix = "sportradar:"

// App holds the wired components.
type App struct {
	Config      *config.Config
	Store       store.Store
	Pipeline    *pipeline.Pipeline
	Predictions logic.PredictionService
	Checks      map[string]handlers.HealthCheck

	logger  *zap.Logger
	closers []func()
}

// NewLogger returns a development logger in development and a production
// logger everywhere else.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Build connects every configured backend. Optional backends (Redis,
// ClickHouse) are skipped when their URL is empty. On error everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config: cfg,
		Checks: make(map[string]handlers.HealthCheck),
		logger: logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	sugar := logger.Sugar()

	// Prediction store
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, perr := pgxpool.New(ctx, cfg.PostgresURL)
		if perr != nil {
			return nil, fmt.Errorf("connect postgres: %w", perr)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := store.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		a.Store = store.NewPostgresStore(pool, logger, time.Now)
		sugar.Infow("Using postgres prediction store")
	default:
		a.Store = store.NewMemoryStore(time.Now)
		sugar.Warnw("Using in-memory prediction store, data is lost on restart")
	}
	a.Checks["store"] = a.Store.Ping

	// Redis backs the run lock and the source cache
	var lock store.RunLock
	var cache source.Cache
	if cfg.RedisURL != "" {
		opts, rerr := redis.ParseURL(cfg.RedisURL)
		if rerr != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", rerr)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		lock = store.NewRedisRunLock(client)
		cache = source.NewRedisCache(client, cachePrefix)
		a.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// ClickHouse keeps the per-run prediction history
	var history store.HistorySink
	if cfg.ClickHouseURL != "" {
		opts, cerr := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if cerr != nil {
			return nil, fmt.Errorf("parse CLICKHOUSE_URL: %w", cerr)
		}
		conn, cerr := clickhouse.Open(opts)
		if cerr != nil {
			return nil, fmt.Errorf("connect clickhouse: %w", cerr)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		ch := store.NewClickHouseHistory(conn, logger)
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		history = ch
		a.Checks["clickhouse"] = conn.Ping
	}

	src, err := newSource(cfg, cache, logger)
	if err != nil {
		return nil, err
	}

	params, err := cfg.EngineParams()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(params, cfg.LineAdjuster())
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = pipeline.New(pipeline.Config{
		Source:        src,
		Extractor:     features.NewExtractor(features.DefaultCatalog(), cfg.RecentGames),
		Engine:        eng,
		Store:         a.Store,
		History:       history,
		Lock:          lock,
		Sports:        cfg.Sports,
		DaysAhead:     cfg.DaysAhead,
		FetchTimeout:  cfg.FetchTimeout,
		LockTTL:       cfg.RunLockTTL,
		RetentionDays: cfg.RetentionDays,
		WorkerCount:   cfg.WorkerCount,
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	a.Predictions = logic.NewPredictionService(a.Store, logger)

	return a, nil
}

// newSource prefers the live feed, then a fixture file, then the embedded sample.
func newSource(cfg *config.Config, cache source.Cache, logger *zap.Logger) (source.DataSource, error) {
	switch {
	case cfg.SportradarAPIKey != "":
		logger.Info("Using Sportradar data source", zap.Bool("cached", cache != nil))
		return source.NewSportradarClient(source.SportradarConfig{
			APIKey:            cfg.SportradarAPIKey,
			BaseURL:           cfg.SportradarBaseURL,
			Timeout:           cfg.FetchTimeout,
			RequestsPerSecond: cfg.SourceRPS,
			MaxRetries:        uint64(max(cfg.SourceMaxRetries, 0)),
			CacheTTLs:         cfg.CacheTTLs,
			Cache:             cache,
			Logger:            logger,
		}), nil
	case cfg.FixturePath != "":
		logger.Info("Using fixture data source", zap.String("path", cfg.FixturePath))
		return source.LoadFixtureFile(cfg.FixturePath, time.Now)
	default:
		logger.Warn("SPORTRADAR_API_KEY not set, using embedded sample data")
		return source.NewSampleSource(time.Now), nil
	}
}

// Handler builds the HTTP handler over the wired components.
func (a *App) Handler() *handlers.Handler {
	return handlers.New(handlers.Config{
		Predictions:    a.Predictions,
		Pipeline:       a.Pipeline,
		Actuals:        a.Store,
		Checks:         a.Checks,
		AllowedOrigins: a.Config.AllowedOrigins,
		Logger:         a.logger,
	})
}

// Scheduler registers the configured cron jobs against the pipeline.
func (a *App) Scheduler(ctx context.Context) (*pipeline.Scheduler, error) {
	return pipeline.NewScheduler(ctx, a.Pipeline, pipeline.Schedules{
		Run:     a.Config.PipelineSchedule,
		Actuals: a.Config.ActualsSchedule,
		Purge:   a.Config.PurgeSchedule,
	}, a.logger)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
