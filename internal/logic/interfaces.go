package logic

import (
	"context"
	"time"

	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/reconcile"
)

// PredictionReader is the read side of the prediction and actual stores.
type PredictionReader interface {
	Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error)
	Get(ctx context.Context, key models.PredictionKey) (*models.Prediction, error)
	ActualsFor(ctx context.Context, keys []models.PredictionKey) ([]models.ActualResult, error)
	Sports(ctx context.Context) ([]string, error)
	GameDates(ctx context.Context, sport string) ([]time.Time, error)
}

// PredictionService is the query surface over stored predictions.
type PredictionService interface {
	ListPredictions(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error)
	GetPrediction(ctx context.Context, key models.PredictionKey) (*models.Prediction, error)
	AccuracyReport(ctx context.Context, filter models.PredictionFilter) (*reconcile.Report, error)
	// ListSports returns the sports that have stored predictions.
	ListSports(ctx context.Context) ([]string, error)
	// ListGameDates returns the YYYY-MM-DD game dates that have stored
	// predictions, newest first.
	ListGameDates(ctx context.Context, sport string) ([]string, error)
}
