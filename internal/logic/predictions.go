package logic

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/reconcile"
)

const dateLayout = "2006-01-02"

// actualsChunk bounds the number of keys per actual-results lookup.
const actualsChunk = 500

type predictionService struct {
	store  PredictionReader
	logger *zap.SugaredLogger
}

func NewPredictionService(store PredictionReader, logger *zap.Logger) PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &predictionService{store: store, logger: logger.Sugar()}
}

func (s *predictionService) ListPredictions(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	preds, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	if preds == nil {
		preds = []*models.Prediction{}
	}
	return preds, nil
}

func (s *predictionService) GetPrediction(ctx context.Context, key models.PredictionKey) (*models.Prediction, error) {
	if !key.Valid() {
		return nil, models.ErrNotFound
	}
	return s.store.Get(ctx, key)
}

// AccuracyReport grades every prediction matching filter against the stored
// actual results. Paging fields of the filter are ignored.
func (s *predictionService) AccuracyReport(ctx context.Context, filter models.PredictionFilter) (*reconcile.Report, error) {
	filter.Limit, filter.Offset = 0, 0
	preds, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}

	keys := make([]models.PredictionKey, len(preds))
	for i, p := range preds {
		keys[i] = p.Key()
	}

	chunks := make([][]models.ActualResult, (len(keys)+actualsChunk-1)/actualsChunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range chunks {
		i := i
		lo := i * actualsChunk
		hi := min(lo+actualsChunk, len(keys))
		g.Go(func() error {
			actuals, err := s.store.ActualsFor(gctx, keys[lo:hi])
			if err != nil {
				return err
			}
			chunks[i] = actuals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load actual results: %w", err)
	}

	var actuals []models.ActualResult
	for _, c := range chunks {
		actuals = append(actuals, c...)
	}

	report := reconcile.Reconcile(preds, actuals)
	s.logger.Debugw("Accuracy report built",
		"sport", filter.Sport,
		"predictions", len(preds),
		"graded", report.Total,
		"accuracy", report.Accuracy,
	)
	return report, nil
}

func (s *predictionService) ListSports(ctx context.Context) ([]string, error) {
	sports, err := s.store.Sports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sports: %w", err)
	}
	if sports == nil {
		sports = []string{}
	}
	return sports, nil
}

func (s *predictionService) ListGameDates(ctx context.Context, sport string) ([]string, error) {
	days, err := s.store.GameDates(ctx, sport)
	if err != nil {
		return nil, fmt.Errorf("list game dates: %w", err)
	}
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.UTC().Format(dateLayout)
	}
	return out, nil
}
