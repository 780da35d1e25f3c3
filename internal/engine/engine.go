// Package engine turns feature vectors into over/under predictions.
//
// The engine is deterministic: the same vector, line and parameters always
// yield the same prediction. It does not touch the clock; timestamps are the
// store's job.
package engine

import (
	"math"

	"github.com/propsight/prediction-api/internal/models"
)

// Engine applies a validated parameter set.
type Engine struct {
	params   Params
	adjuster LineAdjuster
}

// New validates params. A nil adjuster uses FixedAdjustment(params.LineAdjustment).
func New(params Params, adjuster LineAdjuster) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if adjuster == nil {
		adjuster = FixedAdjustment(params.LineAdjustment)
	}
	return &Engine{params: params, adjuster: adjuster}, nil
}

// Params returns the engine's parameter set.
func (e *Engine) Params() Params {
	return e.params
}

// breakdown holds the intermediate terms of the weighting function.
type breakdown struct {
	base      float64
	oppAdj    float64
	homeAdj   float64
	restAdj   float64
	benchAdj  float64
	predicted float64
}

func (e *Engine) evaluate(fv models.FeatureVector) breakdown {
	p := e.params
	v := fv.Values

	var b breakdown
	b.base = p.SeasonWeight*v[models.FeatureSeasonAvg] + p.RecentWeight*v[models.FeatureLast5Avg]

	mid := float64(fv.LeagueSize+1) / 2
	b.oppAdj = p.OpponentWeight * (v[models.FeatureOppRank] - mid) / float64(fv.LeagueSize-1)

	if v[models.FeatureIsHome] >= 0.5 {
		b.homeAdj = p.HomeBoost
	}
	rest := math.Min(v[models.FeatureRestDays], p.MaxRestDays)
	b.restAdj = p.RestWeight * (rest - p.NeutralRestDays)
	if v[models.FeatureIsStarter] < 0.5 {
		b.benchAdj = -p.BenchPenalty
	}

	b.predicted = math.Max(0, b.base*(1+b.oppAdj+b.homeAdj+b.restAdj+b.benchAdj))
	return b
}

// PredictedValue applies the weighting function to a valid vector.
func (e *Engine) PredictedValue(fv models.FeatureVector) (float64, error) {
	if err := fv.Validate(); err != nil {
		return 0, err
	}
	return e.evaluate(fv).predicted, nil
}

// Predict produces a prediction for fv. A nil line derives one from the predicted value.
// Invalid vectors fail with *models.InvalidFeaturesError.
func (e *Engine) Predict(fv models.FeatureVector, line *float64) (*models.Prediction, error) {
	if err := fv.Validate(); err != nil {
		return nil, err
	}
	if line != nil && (math.IsNaN(*line) || math.IsInf(*line, 0)) {
		return nil, &models.InvalidFeaturesError{Feature: "line", Reason: "not finite"}
	}

	b := e.evaluate(fv)
	key := models.PredictionKey{PlayerID: fv.PlayerID, GameID: fv.GameID, StatType: fv.Statistic}

	var resolved float64
	lineSource := models.LineSourceMarket
	if line != nil {
		resolved = *line
	} else {
		resolved = DeriveLine(b.predicted, e.adjuster, key)
		lineSource = e.adjuster.Source()
	}

	prob := e.params.OverProbability(b.predicted, resolved)
	score := e.params.ConfidenceScore(prob, fv.Completeness())
	sigma := e.params.Volatility(resolved)

	pred := &models.Prediction{
		PlayerID:        fv.PlayerID,
		PlayerName:      fv.PlayerName,
		Team:            fv.Team,
		Opponent:        fv.Opponent,
		GameID:          fv.GameID,
		GameDate:        fv.GameDate,
		Sport:           fv.Sport,
		StatType:        fv.Statistic,
		PredictedValue:  b.predicted,
		OverProbability: prob,
		Line:            resolved,
		LineSource:      lineSource,
		Confidence:      e.params.Tier(score),
		ConfidenceScore: score,
		Factors:         rankFactors(e.contributions(fv, b), e.params.TopFactors),
		RangeLow:        math.Max(0, b.predicted-sigma),
		RangeHigh:       b.predicted + sigma,
		ModelVersion:    ModelVersion,
	}
	return pred, nil
}

// contributions expresses every weighted feature's effect in predicted-value units
// relative to a neutral baseline (league-average player, neutral context).
func (e *Engine) contributions(fv models.FeatureVector, b breakdown) []contribution {
	p := e.params
	v := fv.Values
	return []contribution{
		{feature: models.FeatureSeasonAvg, value: p.SeasonWeight * (v[models.FeatureSeasonAvg] - fv.LeagueMean)},
		{feature: models.FeatureLast5Avg, value: p.RecentWeight * (v[models.FeatureLast5Avg] - fv.LeagueMean)},
		{feature: models.FeatureOppRank, value: b.base * b.oppAdj},
		{feature: models.FeatureIsHome, value: homeContribution(b, v[models.FeatureIsHome] >= 0.5, p.HomeBoost)},
		{feature: models.FeatureRestDays, value: b.base * b.restAdj},
		{feature: models.FeatureIsStarter, value: b.base * b.benchAdj},
	}
}

// Away games are reported as the boost forgone.
func homeContribution(b breakdown, home bool, boost float64) float64 {
	if home {
		return b.base * boost
	}
	return -b.base * boost
}
