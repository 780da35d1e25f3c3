package logic

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/prediction-api/internal/models"
	"github.com/propsight/prediction-api/internal/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(func() time.Time { return now })

	preds := []*models.Prediction{
		{PlayerID: "p1", PlayerName: "A", GameID: "g1", Sport: "nba", StatType: "points", GameDate: now, OverProbability: 0.7, Line: 20.5, Confidence: models.ConfidenceHigh},
		{PlayerID: "p2", PlayerName: "B", GameID: "g1", Sport: "nba", StatType: "points", GameDate: now, OverProbability: 0.3, Line: 10.5, Confidence: models.ConfidenceMedium},
		{PlayerID: "p3", PlayerName: "C", GameID: "g2", Sport: "nhl", StatType: "goals", GameDate: now, OverProbability: 0.6, Line: 0.5, Confidence: models.ConfidenceLow},
	}
	_, err := s.UpsertBatch(context.Background(), preds)
	require.NoError(t, err)

	_, err = s.UpsertActuals(context.Background(), []models.ActualResult{
		{PlayerID: "p1", GameID: "g1", StatType: "points", ActualValue: 25},
		{PlayerID: "p2", GameID: "g1", StatType: "points", ActualValue: 14},
	})
	require.NoError(t, err)
	return s
}

func TestListPredictions(t *testing.T) {
	svc := NewPredictionService(seededStore(t), nil)

	all, err := svc.ListPredictions(context.Background(), models.PredictionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	nhl, err := svc.ListPredictions(context.Background(), models.PredictionFilter{Sport: "nhl"})
	require.NoError(t, err)
	require.Len(t, nhl, 1)
	assert.Equal(t, "p3", nhl[0].PlayerID)

	none, err := svc.ListPredictions(context.Background(), models.PredictionFilter{Sport: "mlb"})
	require.NoError(t, err)
	assert.NotNil(t, none, "empty result encodes as []")
	assert.Empty(t, none)
}

func TestGetPrediction(t *testing.T) {
	svc := NewPredictionService(seededStore(t), nil)

	p, err := svc.GetPrediction(context.Background(), models.PredictionKey{PlayerID: "p1", GameID: "g1", StatType: "points"})
	require.NoError(t, err)
	assert.Equal(t, "A", p.PlayerName)

	_, err = svc.GetPrediction(context.Background(), models.PredictionKey{PlayerID: "p1"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccuracyReport(t *testing.T) {
	svc := NewPredictionService(seededStore(t), nil)

	report, err := svc.AccuracyReport(context.Background(), models.PredictionFilter{Limit: 1})
	require.NoError(t, err)

	// p1 over 20.5 with 25: correct. p2 under 10.5 with 14: incorrect. p3 unmatched.
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Correct)
	assert.Equal(t, 50.0, report.Accuracy)
	assert.Equal(t, 1, report.Unmatched)
}

type failingReader struct {
	PredictionReader
	err error
}

func (f *failingReader) ActualsFor(ctx context.Context, keys []models.PredictionKey) ([]models.ActualResult, error) {
	return nil, f.err
}

func TestAccuracyReportManyKeys(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(func() time.Time { return now })
	var preds []*models.Prediction
	var actuals []models.ActualResult
	for i := 0; i < 1200; i++ {
		id := fmt.Sprintf("p%04d", i)
		preds = append(preds, &models.Prediction{PlayerID: id, GameID: "g", Sport: "nba", StatType: "points", GameDate: now, OverProbability: 0.8, Line: 10.5, Confidence: models.ConfidenceHigh})
		actuals = append(actuals, models.ActualResult{PlayerID: id, GameID: "g", StatType: "points", ActualValue: 12})
	}
	_, err := s.UpsertBatch(context.Background(), preds)
	require.NoError(t, err)
	_, err = s.UpsertActuals(context.Background(), actuals)
	require.NoError(t, err)

	report, err := NewPredictionService(s, nil).AccuracyReport(context.Background(), models.PredictionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1200, report.Total)
	assert.Equal(t, 100.0, report.Accuracy)

	boom := errors.New("db down")
	_, err = NewPredictionService(&failingReader{PredictionReader: s, err: boom}, nil).AccuracyReport(context.Background(), models.PredictionFilter{})
	assert.ErrorIs(t, err, boom)
}

func TestListSportsAndDates(t *testing.T) {
	s := seededStore(t)
	late := time.Date(2024, 1, 12, 1, 0, 0, 0, time.UTC)
	_, err := s.UpsertBatch(context.Background(), []*models.Prediction{
		{PlayerID: "p4", PlayerName: "D", GameID: "g3", Sport: "nba", StatType: "points", GameDate: late, OverProbability: 0.55, Line: 9.5, Confidence: models.ConfidenceLow},
	})
	require.NoError(t, err)
	svc := NewPredictionService(s, nil)

	sports, err := svc.ListSports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nba", "nhl"}, sports)

	dates, err := svc.ListGameDates(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-12", "2024-01-10"}, dates)

	dates, err = svc.ListGameDates(context.Background(), "nhl")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10"}, dates)

	empty := NewPredictionService(store.NewMemoryStore(nil), nil)
	sports, err = empty.ListSports(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sports, "empty result encodes as []")
	dates, err = empty.ListGameDates(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, dates)
}
