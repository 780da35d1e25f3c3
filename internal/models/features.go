package models

import (
	"math"
	"sort"
	"time"
)

// Feature names. The order of FeatureNames is the stable tie-break order.
const (
	FeatureSeasonAvg    = "season_avg"
	FeatureLast5Avg     = "last5_avg"
	FeatureOppRank      = "opp_rank"
	FeatureRestDays     = "rest_days"
	FeatureIsHome       = "is_home"
	FeatureIsStarter    = "is_starter"
	FeaturePlayerAge    = "player_age"
	FeaturePlayerHeight = "player_height"
	FeaturePlayerWeight = "player_weight"
)

// FeatureNames lists every feature a vector carries, sorted by name.
var FeatureNames = func() []string {
	names := []string{
		FeatureSeasonAvg, FeatureLast5Avg, FeatureOppRank, FeatureRestDays,
		FeatureIsHome, FeatureIsStarter, FeaturePlayerAge, FeaturePlayerHeight, FeaturePlayerWeight,
	}
	sort.Strings(names)
	return names
}()

// FeatureVector is the model input for one (player, statistic, game).
type FeatureVector struct {
	PlayerID   string
	PlayerName string
	Team       string
	Opponent   string
	GameID     string
	GameDate   time.Time
	Sport      string
	Statistic  string
	// LeagueSize bounds opp_rank.
	LeagueSize int
	// LeagueMean is the sport-wide mean of Statistic, the neutral baseline.
	LeagueMean float64

	Values    map[string]float64
	Defaulted map[string]bool
}

// Get returns a feature value and whether it is present.
func (v FeatureVector) Get(name string) (float64, bool) {
	val, ok := v.Values[name]
	return val, ok
}

// Completeness is the share of features observed rather than defaulted, in [0,1].
func (v FeatureVector) Completeness() float64 {
	if len(v.Values) == 0 {
		return 0
	}
	observed := 0
	for name := range v.Values {
		if !v.Defaulted[name] {
			observed++
		}
	}
	return float64(observed) / float64(len(v.Values))
}

// Validate checks that every required feature is present and finite.
func (v FeatureVector) Validate() error {
	for _, name := range FeatureNames {
		val, ok := v.Values[name]
		if !ok {
			return &InvalidFeaturesError{Feature: name, Reason: "missing"}
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return &InvalidFeaturesError{Feature: name, Reason: "not finite"}
		}
	}
	if v.LeagueSize < 2 {
		return &InvalidFeaturesError{Feature: FeatureOppRank, Reason: "league size below 2"}
	}
	rank := v.Values[FeatureOppRank]
	if rank < 1 || rank > float64(v.LeagueSize) {
		return &InvalidFeaturesError{Feature: FeatureOppRank, Reason: "out of range"}
	}
	if v.Values[FeatureRestDays] < 0 {
		return &InvalidFeaturesError{Feature: FeatureRestDays, Reason: "negative"}
	}
	if v.Values[FeatureSeasonAvg] < 0 || v.Values[FeatureLast5Avg] < 0 {
		return &InvalidFeaturesError{Feature: FeatureSeasonAvg, Reason: "negative average"}
	}
	return nil
}
