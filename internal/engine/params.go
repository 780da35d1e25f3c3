package engine

import (
	"fmt"
	"math"
)

// ModelVersion identifies the weighting function below. Bump it whenever the
// formula changes, not when parameters are retuned.
const ModelVersion = "heuristic-v1"

// MaxTopFactors bounds the factor list of a prediction.
const MaxTopFactors = 4

// Params is the tunable parameter set of the weighting function.
//
//	base      = SeasonWeight*season_avg + RecentWeight*last5_avg
//	opp_adj   = OpponentWeight * (opp_rank - (L+1)/2) / (L-1)
//	home_adj  = HomeBoost if home
//	rest_adj  = RestWeight * (min(rest_days, MaxRestDays) - NeutralRestDays)
//	bench_adj = -BenchPenalty if not a starter
//	predicted = max(0, base * (1 + opp_adj + home_adj + rest_adj + bench_adj))
type Params struct {
	SeasonWeight    float64
	RecentWeight    float64
	OpponentWeight  float64
	HomeBoost       float64
	RestWeight      float64
	NeutralRestDays float64
	MaxRestDays     float64
	BenchPenalty    float64

	// sigma = max(MinVolatility, VolatilityRatio*|line|)
	VolatilityRatio float64
	MinVolatility   float64
	// Steepness scales the normalized gap before the logistic transform.
	Steepness float64

	// LineAdjustment is added to the predicted value before rounding a derived line.
	LineAdjustment float64

	// Confidence tier thresholds on the 0-100 score.
	HighThreshold   float64
	MediumThreshold float64

	TopFactors int
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	return Params{
		SeasonWeight:    0.4,
		RecentWeight:    0.6,
		OpponentWeight:  0.10,
		HomeBoost:       0.03,
		RestWeight:      0.01,
		NeutralRestDays: 2,
		MaxRestDays:     4,
		BenchPenalty:    0.25,
		VolatilityRatio: 0.25,
		MinVolatility:   0.5,
		Steepness:       1.7,
		LineAdjustment:  0,
		HighThreshold:   80,
		MediumThreshold: 60,
		TopFactors:      3,
	}
}

// Validate rejects parameter sets that would break the engine's invariants.
func (p Params) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"season weight", p.SeasonWeight},
		{"recent weight", p.RecentWeight},
		{"opponent weight", p.OpponentWeight},
		{"home boost", p.HomeBoost},
		{"rest weight", p.RestWeight},
		{"neutral rest days", p.NeutralRestDays},
		{"max rest days", p.MaxRestDays},
		{"bench penalty", p.BenchPenalty},
		{"volatility ratio", p.VolatilityRatio},
		{"min volatility", p.MinVolatility},
		{"steepness", p.Steepness},
		{"line adjustment", p.LineAdjustment},
		{"high threshold", p.HighThreshold},
		{"medium threshold", p.MediumThreshold},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("engine: %s must be finite, got %v", f.name, f.value)
		}
	}
	if p.SeasonWeight < 0 || p.RecentWeight < 0 {
		return fmt.Errorf("engine: blend weights must be non-negative")
	}
	if math.Abs(p.SeasonWeight+p.RecentWeight-1) > 1e-9 {
		return fmt.Errorf("engine: season and recent weights must sum to 1, got %.4f", p.SeasonWeight+p.RecentWeight)
	}
	if p.MinVolatility <= 0 {
		return fmt.Errorf("engine: min volatility must be positive")
	}
	if p.VolatilityRatio < 0 {
		return fmt.Errorf("engine: volatility ratio must be non-negative")
	}
	if p.Steepness <= 0 {
		return fmt.Errorf("engine: steepness must be positive")
	}
	if p.MaxRestDays < 0 || p.NeutralRestDays < 0 {
		return fmt.Errorf("engine: rest day bounds must be non-negative")
	}
	if p.MediumThreshold <= 0 || p.HighThreshold <= p.MediumThreshold || p.HighThreshold > 100 {
		return fmt.Errorf("engine: thresholds must satisfy 0 < medium < high <= 100, got medium=%.1f high=%.1f", p.MediumThreshold, p.HighThreshold)
	}
	if p.TopFactors < 1 || p.TopFactors > MaxTopFactors {
		return fmt.Errorf("engine: top factors must be in [1,%d], got %d", MaxTopFactors, p.TopFactors)
	}
	return nil
}
