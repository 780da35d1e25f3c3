package models

import (
	"fmt"
	"strings"
	"time"
)

// ConfidenceTier is the coarse bucket derived from a prediction's confidence score.
type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "Low"
	ConfidenceMedium ConfidenceTier = "Medium"
	ConfidenceHigh   ConfidenceTier = "High"
)

// ConfidenceTiers lists every tier, lowest first.
var ConfidenceTiers = []ConfidenceTier{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}

// ParseConfidenceTier accepts the tier name case-insensitively.
func ParseConfidenceTier(s string) (ConfidenceTier, error) {
	for _, tier := range ConfidenceTiers {
		if strings.EqualFold(s, string(tier)) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown confidence tier: %q", s)
}

// Line sources
const (
	LineSourceMarket    = "market"
	LineSourceDerived   = "derived"
	LineSourceSynthetic = "synthetic"
)

// PredictionKey is the identity of a Prediction and of an ActualResult.
type PredictionKey struct {
	PlayerID string `json:"player_id"`
	GameID   string `json:"game_id"`
	StatType string `json:"stat_type"`
}

func (k PredictionKey) String() string {
	return k.PlayerID + "/" + k.GameID + "/" + k.StatType
}

// Valid reports whether every key part is present.
func (k PredictionKey) Valid() bool {
	return k.PlayerID != "" && k.GameID != "" && k.StatType != ""
}

// Prediction is an over/under forecast for one (player, game, statistic).
type Prediction struct {
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Team       string    `json:"team"`
	Opponent   string    `json:"opponent"`
	GameID     string    `json:"game_id"`
	GameDate   time.Time `json:"game_date"`
	Sport      string    `json:"sport"`
	StatType   string    `json:"stat_type"`

	PredictedValue  float64        `json:"predicted_value"`
	OverProbability float64        `json:"over_probability"`
	Line            float64        `json:"line"`
	LineSource      string         `json:"line_source"`
	Confidence      ConfidenceTier `json:"confidence"`
	ConfidenceScore float64        `json:"confidence_score"`
	Factors         []string       `json:"top_factors"`
	RangeLow        float64        `json:"range_low"`
	RangeHigh       float64        `json:"range_high"`
	ModelVersion    string         `json:"model_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the identity key.
func (p *Prediction) Key() PredictionKey {
	return PredictionKey{PlayerID: p.PlayerID, GameID: p.GameID, StatType: p.StatType}
}

// PredictsOver reports the predicted direction. A coin-flip probability is "under".
func (p *Prediction) PredictsOver() bool {
	return p.OverProbability > 0.5
}

// ActualResult is the observed value of a statistic after the game.
type ActualResult struct {
	PlayerID    string    `json:"player_id" validate:"required"`
	PlayerName  string    `json:"player_name,omitempty"`
	GameID      string    `json:"game_id" validate:"required"`
	Sport       string    `json:"sport,omitempty"`
	StatType    string    `json:"stat_type" validate:"required"`
	ActualValue float64   `json:"actual_value" validate:"gte=0"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the identity key.
func (a *ActualResult) Key() PredictionKey {
	return PredictionKey{PlayerID: a.PlayerID, GameID: a.GameID, StatType: a.StatType}
}

// PredictionFilter holds the conjunctive filters of a prediction query.
// Zero values mean "no filter".
type PredictionFilter struct {
	Sport      string
	DateFrom   time.Time
	DateTo     time.Time
	Confidence ConfidenceTier
	PlayerID   string
	GameID     string
	Limit      int
	Offset     int
}

// Matches applies the filter to a single prediction. DateTo is inclusive.
func (f PredictionFilter) Matches(p *Prediction) bool {
	if f.Sport != "" && p.Sport != f.Sport {
		return false
	}
	if !f.DateFrom.IsZero() && p.GameDate.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && p.GameDate.After(f.DateTo) {
		return false
	}
	if f.Confidence != "" && p.Confidence != f.Confidence {
		return false
	}
	if f.PlayerID != "" && p.PlayerID != f.PlayerID {
		return false
	}
	if f.GameID != "" && p.GameID != f.GameID {
		return false
	}
	return true
}

// PendingGame is a game with stored predictions but no actual results yet.
type PendingGame struct {
	Sport    string    `json:"sport"`
	GameID   string    `json:"game_id"`
	GameDate time.Time `json:"game_date"`
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID        string        `json:"run_id"`
	Scope        string        `json:"scope"`
	Games        int           `json:"games"`
	Generated    int           `json:"generated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	SportsFailed []string      `json:"sports_failed,omitempty"`
	Duration     time.Duration `json:"duration"`
}
