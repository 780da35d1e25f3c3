package engine

import (
	"math"
	"sort"

	"github.com/propsight/prediction-api/internal/models"
)

// contribution is one weighted feature's pull on the predicted value,
// expressed in the statistic's own units.
type contribution struct {
	feature string
	value   float64
}

func (c contribution) label() string {
	above := c.value >= 0
	switch c.feature {
	case models.FeatureSeasonAvg:
		return pick(above, "Season average above league average", "Season average below league average")
	case models.FeatureLast5Avg:
		return pick(above, "Recent form above league average", "Recent form below league average")
	case models.FeatureOppRank:
		return pick(above, "Favorable opponent matchup", "Tough opponent matchup")
	case models.FeatureIsHome:
		return pick(above, "Home court advantage", "Playing away")
	case models.FeatureRestDays:
		return pick(above, "Well rested", "Short rest")
	case models.FeatureIsStarter:
		return pick(above, "Starting role", "Bench role")
	}
	return c.feature
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// rankFactors orders contributions by magnitude, breaking ties by feature
// name, and returns the labels of the top k.
func rankFactors(contribs []contribution, k int) []string {
	sorted := make([]contribution, len(contribs))
	copy(sorted, contribs)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, mj := math.Abs(sorted[i].value), math.Abs(sorted[j].value)
		if mi != mj {
			return mi > mj
		}
		return sorted[i].feature < sorted[j].feature
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	labels := make([]string, 0, k)
	for _, c := range sorted[:k] {
		labels = append(labels, c.label())
	}
	return labels
}
