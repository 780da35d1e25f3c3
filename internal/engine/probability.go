package engine

import (
	"math"

	"github.com/propsight/prediction-api/internal/models"
)

// maxZ keeps the logistic output strictly inside (0,1) in float64.
const maxZ = 30

// edgeSaturation is the |p-0.5| at which the edge component of the score saturates.
// An edge of 0.30 with complete data maps to a score of 80.
const edgeSaturation = 0.375

// Volatility is the spread used to normalize the gap between prediction and line.
// It depends on the line only, so probability is monotonic in the predicted value.
func (p Params) Volatility(line float64) float64 {
	return math.Max(p.MinVolatility, p.VolatilityRatio*math.Abs(line))
}

// OverProbability maps the signed gap (predicted - line) to (0,1).
// It is exactly 0.5 only when predicted == line, otherwise strictly on the
// side of the gap, and non-decreasing in predicted.
func (p Params) OverProbability(predicted, line float64) float64 {
	gap := predicted - line
	if gap == 0 {
		return 0.5
	}
	z := p.Steepness * gap / p.Volatility(line)
	if z > maxZ {
		z = maxZ
	} else if z < -maxZ {
		z = -maxZ
	}
	prob := 1 / (1 + math.Exp(-z))
	// A gap too small to move the logistic still picks a side.
	if prob == 0.5 {
		if gap > 0 {
			return math.Nextafter(0.5, 1)
		}
		return math.Nextafter(0.5, 0)
	}
	return prob
}

// ConfidenceScore combines the probability edge with data completeness on a 0-100 scale.
func (p Params) ConfidenceScore(overProbability, completeness float64) float64 {
	edge := math.Min(1, math.Abs(overProbability-0.5)/edgeSaturation)
	completeness = math.Max(0, math.Min(1, completeness))
	score := 100 * edge * (0.5 + 0.5*completeness)
	return math.Max(0, math.Min(100, score))
}

// Tier maps a confidence score to its tier. Every real score maps to exactly one tier.
func (p Params) Tier(score float64) models.ConfidenceTier {
	switch {
	case score >= p.HighThreshold:
		return models.ConfidenceHigh
	case score >= p.MediumThreshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
