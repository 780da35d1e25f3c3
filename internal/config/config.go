package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/propsight/prediction-api/internal/engine"
	"github.com/propsight/prediction-api/internal/features"
	"github.com/propsight/prediction-api/internal/source"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Stores
	StoreDriver   string
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Source
	SportradarAPIKey  string
	SportradarBaseURL string
	FixturePath       string
	FetchTimeout      time.Duration
	SourceRPS         float64
	SourceMaxRetries  int
	CacheTTLs         source.CacheTTLs

	// Pipeline
	Sports        []string
	DaysAhead     int
	RecentGames   int
	RunLockTTL    time.Duration
	RetentionDays int

	PipelineSchedule string
	ActualsSchedule  string
	PurgeSchedule    string
	RunOnStart       bool

	// Worker pool
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	// Engine
	Engine              engine.Params
	SyntheticLineSeed   int64
	SyntheticLineSpread float64
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	ttls := source.DefaultCacheTTLs()
	defaults := engine.DefaultParams()

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		PostgresURL:   os.Getenv("POSTGRES_URL"),
		ClickHouseURL: os.Getenv("CLICKHOUSE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),

		SportradarAPIKey:  os.Getenv("SPORTRADAR_API_KEY"),
		SportradarBaseURL: os.Getenv("SPORTRADAR_BASE_URL"),
		FixturePath:       os.Getenv("FIXTURE_PATH"),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 2*time.Minute),
		SourceRPS:         getEnvFloat("SOURCE_RPS", 1),
		SourceMaxRetries:  getEnvInt("SOURCE_MAX_RETRIES", 3),
		CacheTTLs: source.CacheTTLs{
			Schedule:  getEnvDuration("CACHE_TTL_SCHEDULE", ttls.Schedule),
			Roster:    getEnvDuration("CACHE_TTL_ROSTER", ttls.Roster),
			Stats:     getEnvDuration("CACHE_TTL_STATS", ttls.Stats),
			Summary:   getEnvDuration("CACHE_TTL_SUMMARY", ttls.Summary),
			Standings: getEnvDuration("CACHE_TTL_STANDINGS", ttls.Standings),
		},

		Sports:        getEnvList("SPORTS", features.DefaultCatalog().Sports()),
		DaysAhead:     getEnvInt("DAYS_AHEAD", 7),
		RecentGames:   getEnvInt("RECENT_GAMES", 5),
		RunLockTTL:    getEnvDuration("RUN_LOCK_TTL", 30*time.Minute),
		RetentionDays: getEnvInt("RETENTION_DAYS", 30),

		PipelineSchedule: getEnv("PIPELINE_SCHEDULE", "0 */6 * * *"),
		ActualsSchedule:  getEnv("ACTUALS_SCHEDULE", "*/30 * * * *"),
		PurgeSchedule:    getEnv("PURGE_SCHEDULE", "0 3 * * *"),
		RunOnStart:       getEnvBool("RUN_ON_START", false),

		WorkerCount:   getEnvInt("WORKER_COUNT", 8),
		QueueSize:     getEnvInt("QUEUE_SIZE", 10000),
		BatchSize:     getEnvInt("BATCH_SIZE", 500),
		FlushInterval: getEnvDuration("FLUSH_INTERVAL", 1*time.Second),

		Engine: engine.Params{
			SeasonWeight:    getEnvFloat("ENGINE_SEASON_WEIGHT", defaults.SeasonWeight),
			RecentWeight:    getEnvFloat("ENGINE_RECENT_WEIGHT", defaults.RecentWeight),
			OpponentWeight:  getEnvFloat("ENGINE_OPPONENT_WEIGHT", defaults.OpponentWeight),
			HomeBoost:       getEnvFloat("ENGINE_HOME_BOOST", defaults.HomeBoost),
			RestWeight:      getEnvFloat("ENGINE_REST_WEIGHT", defaults.RestWeight),
			NeutralRestDays: defaults.NeutralRestDays,
			MaxRestDays:     defaults.MaxRestDays,
			BenchPenalty:    getEnvFloat("ENGINE_BENCH_PENALTY", defaults.BenchPenalty),
			VolatilityRatio: getEnvFloat("ENGINE_VOLATILITY_RATIO", defaults.VolatilityRatio),
			MinVolatility:   getEnvFloat("ENGINE_MIN_VOLATILITY", defaults.MinVolatility),
			Steepness:       getEnvFloat("ENGINE_STEEPNESS", defaults.Steepness),
			LineAdjustment:  getEnvFloat("ENGINE_LINE_ADJUSTMENT", defaults.LineAdjustment),
			HighThreshold:   getEnvFloat("CONFIDENCE_HIGH", defaults.HighThreshold),
			MediumThreshold: getEnvFloat("CONFIDENCE_MEDIUM", defaults.MediumThreshold),
			TopFactors:      getEnvInt("TOP_FACTORS", defaults.TopFactors),
		},
		SyntheticLineSeed:   int64(getEnvInt("ENGINE_SYNTHETIC_LINE_SEED", 0)),
		SyntheticLineSpread: getEnvFloat("ENGINE_SYNTHETIC_LINE_SPREAD", 0),
	}

	// CORS
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	// Store driver defaults to postgres when a URL is configured
	fallbackDriver := StoreMemory
	if cfg.PostgresURL != "" {
		fallbackDriver = StorePostgres
	}
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", fallbackDriver))

	// Critical configuration - fail if missing
	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		var err error
		if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreMemory, StorePostgres)
	}

	catalog := features.DefaultCatalog()
	for _, sport := range cfg.Sports {
		if _, ok := catalog[sport]; !ok {
			return nil, fmt.Errorf("SPORTS: unsupported sport %q", sport)
		}
	}
	if _, err := cfg.EngineParams(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EngineParams returns the validated engine parameter set.
func (c *Config) EngineParams() (engine.Params, error) {
	if err := c.Engine.Validate(); err != nil {
		return engine.Params{}, err
	}
	return c.Engine, nil
}

// LineAdjuster selects how lines are derived when no market line exists:
// a seeded synthetic offset when a spread is configured, else the fixed
// ENGINE_LINE_ADJUSTMENT.
func (c *Config) LineAdjuster() engine.LineAdjuster {
	if c.SyntheticLineSpread > 0 {
		return engine.SyntheticLines{Seed: c.SyntheticLineSeed, Spread: c.SyntheticLineSpread}
	}
	return engine.FixedAdjustment(c.Engine.LineAdjustment)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
