// Package store persists predictions and actual results.
//
// Predictions are keyed by (player_id, game_id, stat_type). Upserts replace
// value fields in place and never touch created_at, so repeating a pipeline
// run is safe. Every implementation applies a batch atomically.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/propsight/prediction-api/internal/models"
)

// PredictionStore owns the lifecycle of prediction records.
type PredictionStore interface {
	Upsert(ctx context.Context, p *models.Prediction) error
	// UpsertBatch writes all predictions in one transaction and returns the number written.
	UpsertBatch(ctx context.Context, preds []*models.Prediction) (int, error)
	Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error)
	Get(ctx context.Context, key models.PredictionKey) (*models.Prediction, error)
	// PurgeOlderThan deletes every prediction with game_date < cutoff, all or nothing.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Sports lists the distinct sports that have predictions, sorted.
	Sports(ctx context.Context) ([]string, error)
	// GameDates lists the distinct UTC game dates that have predictions,
	// newest first. An empty sport matches every sport.
	GameDates(ctx context.Context, sport string) ([]time.Time, error)
	Ping(ctx context.Context) error
}

// ActualStore holds observed results. Results are joined to predictions by key
// at read time; nothing references a prediction at write time.
type ActualStore interface {
	UpsertActuals(ctx context.Context, actuals []models.ActualResult) (int, error)
	ActualsFor(ctx context.Context, keys []models.PredictionKey) ([]models.ActualResult, error)
	// PendingGames lists games scheduled before the cutoff that have
	// predictions but no results. An empty sport matches every sport.
	PendingGames(ctx context.Context, sport string, before time.Time) ([]models.PendingGame, error)
}

// Store is the full persistence boundary.
type Store interface {
	PredictionStore
	ActualStore
}

// HistorySink receives every prediction a run generates, for offline analysis.
type HistorySink interface {
	Record(ctx context.Context, runID string, preds []*models.Prediction) error
}

// Clock returns the current time. Stores take one so tests can control timestamps.
type Clock func() time.Time

// sortPredictions applies the stable query order: game date, then player
// name, then key.
func sortPredictions(preds []*models.Prediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		a, b := preds[i], preds[j]
		if !a.GameDate.Equal(b.GameDate) {
			return a.GameDate.Before(b.GameDate)
		}
		if a.PlayerName != b.PlayerName {
			return a.PlayerName < b.PlayerName
		}
		return a.Key().String() < b.Key().String()
	})
}

func clonePrediction(p *models.Prediction) *models.Prediction {
	c := *p
	if p.Factors != nil {
		c.Factors = append([]string(nil), p.Factors...)
	}
	return &c
}
