package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/propsight/prediction-api/internal/models"
)

// LineAdjuster supplies the offset added to a predicted value before a
// fallback line is rounded. Implementations must be deterministic per key.
type LineAdjuster interface {
	Adjustment(key models.PredictionKey) float64
	Source() string
}

// FixedAdjustment applies the same offset to every derived line.
type FixedAdjustment float64

func (f FixedAdjustment) Adjustment(models.PredictionKey) float64 { return float64(f) }

func (f FixedAdjustment) Source() string { return models.LineSourceDerived }

// SyntheticLines stands in for a market feed when none is configured. Each
// key gets a uniform offset in [-Spread, Spread] seeded from (Seed, key), so
// a run is reproducible and independent of worker scheduling.
type SyntheticLines struct {
	Seed   int64
	Spread float64
}

func (s SyntheticLines) Adjustment(key models.PredictionKey) float64 {
	if s.Spread <= 0 {
		return 0
	}
	h := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(s.Seed))
	h.Write(seed[:])
	h.Write([]byte(key.String()))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	return (r.Float64()*2 - 1) * s.Spread
}

func (s SyntheticLines) Source() string { return models.LineSourceSynthetic }

// RoundHalf rounds to the nearest half unit, halves away from zero.
func RoundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

// DeriveLine produces the fallback line for a prediction without a market line.
// Lines are never negative.
func DeriveLine(predicted float64, adj LineAdjuster, key models.PredictionKey) float64 {
	line := RoundHalf(predicted + adj.Adjustment(key))
	if line < 0 {
		return 0
	}
	return line
}
