// Package features turns adapted roster and stat-history data into the
// per-(player, statistic, game) feature vectors consumed by the engine.
//
// Missing upstream data is never left absent: every feature gets a value and
// features filled from defaults are flagged so the engine can discount them.
package features

import (
	"fmt"
	"time"

	"github.com/propsight/prediction-api/internal/models"
)

// Documented defaults for missing upstream data.
const (
	DefaultAge         = 25
	DefaultHeight      = 72  // inches
	DefaultWeight      = 200 // pounds
	DefaultRestDays    = 2
	DefaultRecentGames = 5
)

// Extractor computes feature vectors. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	catalog     Catalog
	recentGames int
}

// NewExtractor builds an extractor over catalog using a trailing window of
// recentGames games for the recent-form average.
func NewExtractor(catalog Catalog, recentGames int) *Extractor {
	if recentGames <= 0 {
		recentGames = DefaultRecentGames
	}
	return &Extractor{catalog: catalog, recentGames: recentGames}
}

// Catalog returns the sport catalog the extractor was built with.
func (e *Extractor) Catalog() Catalog {
	return e.catalog
}

// Extract derives the feature vector for one player and statistic. history may be nil.
func (e *Extractor) Extract(player models.RawPlayer, history *models.StatHistory, gc models.GameContext, statistic string) (models.FeatureVector, error) {
	sport := gc.Game.Sport
	sportDef, ok := e.catalog[sport]
	if !ok {
		return models.FeatureVector{}, &models.FeatureExtractionError{PlayerID: player.ID, Statistic: statistic, Reason: fmt.Sprintf("unsupported sport %q", sport)}
	}
	stat, ok := e.catalog.Stat(sport, statistic)
	if !ok {
		return models.FeatureVector{}, &models.FeatureExtractionError{PlayerID: player.ID, Statistic: statistic, Reason: "unknown statistic"}
	}
	if player.ID == "" {
		return models.FeatureVector{}, &models.FeatureExtractionError{Statistic: statistic, Reason: "player has no id"}
	}

	fv := models.FeatureVector{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Team:       gc.TeamName,
		Opponent:   gc.OpponentName,
		GameID:     gc.Game.ID,
		GameDate:   gc.Game.Scheduled,
		Sport:      sport,
		Statistic:  statistic,
		LeagueSize: sportDef.LeagueSize,
		LeagueMean: stat.LeagueMean,
		Values:     make(map[string]float64, len(models.FeatureNames)),
		Defaulted:  make(map[string]bool),
	}
	set := func(name string, v float64, defaulted bool) {
		fv.Values[name] = v
		if defaulted {
			fv.Defaulted[name] = true
		}
	}

	season, seasonObserved := seasonAverage(history, stat)
	if !seasonObserved {
		season = stat.LeagueMean
	}
	set(models.FeatureSeasonAvg, clampNonNegative(season), !seasonObserved)

	recent, recentObserved := trailingAverage(history, stat, e.recentGames)
	if !recentObserved {
		recent = season
	}
	set(models.FeatureLast5Avg, clampNonNegative(recent), !recentObserved)

	rank, rankObserved := opponentRank(gc.OpponentRank, sportDef.LeagueSize)
	set(models.FeatureOppRank, float64(rank), !rankObserved)

	rest, restObserved := restDays(history, gc.Game.Scheduled)
	set(models.FeatureRestDays, float64(rest), !restObserved)

	set(models.FeatureIsHome, boolFeature(gc.Side == models.SideHome), gc.Side == "")

	defaulted := make(map[string]bool, len(player.Defaulted))
	for _, f := range player.Defaulted {
		defaulted[f] = true
	}
	set(models.FeatureIsStarter, boolFeature(player.IsStarter), defaulted["is_starter"])
	set(models.FeaturePlayerAge, orDefault(player.Age, DefaultAge), defaulted["age"] || player.Age <= 0)
	set(models.FeaturePlayerHeight, orDefault(player.Height, DefaultHeight), defaulted["height"] || player.Height <= 0)
	set(models.FeaturePlayerWeight, orDefault(player.Weight, DefaultWeight), defaulted["weight"] || player.Weight <= 0)

	if err := fv.Validate(); err != nil {
		return models.FeatureVector{}, &models.FeatureExtractionError{PlayerID: player.ID, Statistic: statistic, Reason: err.Error()}
	}
	return fv, nil
}

func lookupStat(stats map[string]float64, stat StatDef) (float64, bool) {
	if v, ok := stats[stat.Name]; ok {
		return v, true
	}
	for _, alias := range stat.Aliases {
		if v, ok := stats[alias]; ok {
			return v, true
		}
	}
	return 0, false
}

// seasonAverage prefers the provider's season average and falls back to the
// mean of the game log.
func seasonAverage(h *models.StatHistory, stat StatDef) (float64, bool) {
	if h == nil {
		return 0, false
	}
	if v, ok := lookupStat(h.SeasonAverages, stat); ok {
		return v, true
	}
	return trailingAverage(h, stat, len(h.Games))
}

func trailingAverage(h *models.StatHistory, stat StatDef, n int) (float64, bool) {
	if h == nil || n <= 0 {
		return 0, false
	}
	var sum float64
	count := 0
	for _, g := range h.Games {
		if count == n {
			break
		}
		v, ok := lookupStat(g.Stats, stat)
		if !ok {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func opponentRank(rank, leagueSize int) (int, bool) {
	if rank <= 0 {
		return (leagueSize + 1) / 2, false
	}
	if rank > leagueSize {
		return leagueSize, true
	}
	return rank, true
}

// restDays counts full calendar days between the player's last game and this one.
func restDays(h *models.StatHistory, scheduled time.Time) (int, bool) {
	if h == nil || scheduled.IsZero() {
		return DefaultRestDays, false
	}
	gameDay := truncateDay(scheduled)
	for _, g := range h.Games {
		if g.Date.IsZero() {
			continue
		}
		last := truncateDay(g.Date)
		if !last.Before(gameDay) {
			continue
		}
		days := int(gameDay.Sub(last).Hours()/24) - 1
		if days < 0 {
			days = 0
		}
		return days, true
	}
	return DefaultRestDays, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func orDefault(v, def int) float64 {
	if v <= 0 {
		return float64(def)
	}
	return float64(v)
}
