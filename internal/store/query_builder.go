package store

import (
	"fmt"
	"strings"

	"github.com/propsight/prediction-api/internal/models"
)

// MaxQueryLimit caps a single page of predictions.
const MaxQueryLimit = 1000

// predictionColumns is the scan order used by scanPrediction.
const predictionColumns = `player_id, player_name, team, opponent, game_id, game_date, sport, stat_type,
	predicted_value, over_probability, line, line_source, confidence, confidence_score,
	factors, range_low, range_high, model_version, created_at, updated_at`

func validateFilter(f models.PredictionFilter) error {
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("invalid filter: negative limit or offset")
	}
	if f.Limit > MaxQueryLimit {
		return fmt.Errorf("invalid filter: limit %d exceeds %d", f.Limit, MaxQueryLimit)
	}
	if f.Confidence != "" {
		if _, err := models.ParseConfidenceTier(string(f.Confidence)); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return fmt.Errorf("invalid filter: date_from after date_to")
	}
	return nil
}

// BuildPredictionQuery constructs a parameterized Postgres query for filter.
// A zero Limit returns every matching row.
func BuildPredictionQuery(filter models.PredictionFilter) (string, []any, error) {
	if err := validateFilter(filter); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT ")
	sb.WriteString(predictionColumns)
	sb.WriteString(" FROM predictions WHERE 1=1")

	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND %s $%d", clause, len(args))
	}
	if filter.Sport != "" {
		add("sport =", filter.Sport)
	}
	if !filter.DateFrom.IsZero() {
		add("game_date >=", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		add("game_date <=", filter.DateTo)
	}
	if filter.Confidence != "" {
		add("confidence =", string(filter.Confidence))
	}
	if filter.PlayerID != "" {
		add("player_id =", filter.PlayerID)
	}
	if filter.GameID != "" {
		add("game_id =", filter.GameID)
	}

	sb.WriteString(" ORDER BY game_date ASC, player_name ASC, player_id ASC, game_id ASC, stat_type ASC")

	if filter.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", filter.Offset)
	}
	return sb.String(), args, nil
}
