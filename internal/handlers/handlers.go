package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/logic"
	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/pipeline"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// PipelineRunner triggers batch work and reads the upstream schedule.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error)
	CollectActuals(ctx context.Context, sport string) (*pipeline.CollectResult, error)
	UpcomingGames(ctx context.Context, sport string, days int) (*pipeline.UpcomingResult, error)
}

// ActualsWriter stores reported actual results.
type ActualsWriter interface {
	UpsertActuals(ctx context.Context, actuals []models.ActualResult) (int, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Predictions logic.PredictionService
	Pipeline    PipelineRunner
	Actuals     ActualsWriter
	// Checks are run by the readiness endpoint, keyed by dependency name.
	Checks         map[string]HealthCheck
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Handler struct {
	predictions    logic.PredictionService
	pipeline       PipelineRunner
	actuals        ActualsWriter
	checks         map[string]HealthCheck
	allowedOrigins []string
	logger         *zap.SugaredLogger
	validator      *validator.Validate
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		predictions:    cfg.Predictions,
		pipeline:       cfg.Pipeline,
		actuals:        cfg.Actuals,
		checks:         cfg.Checks,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         cfg.Logger.Sugar(),
		validator:      validator.New(),
	}
}
