package store

import (
	"context"
	"fmt"
)

// migrations are applied in order on startup. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		player_id        TEXT NOT NULL,
		player_name      TEXT NOT NULL DEFAULT '',
		team             TEXT NOT NULL DEFAULT '',
		opponent         TEXT NOT NULL DEFAULT '',
		game_id          TEXT NOT NULL,
		game_date        TIMESTAMPTZ NOT NULL,
		sport            TEXT NOT NULL,
		stat_type        TEXT NOT NULL,
		predicted_value  DOUBLE PRECISION NOT NULL,
		over_probability DOUBLE PRECISION NOT NULL CHECK (over_probability > 0 AND over_probability < 1),
		line             DOUBLE PRECISION NOT NULL,
		line_source      TEXT NOT NULL,
		confidence       TEXT NOT NULL CHECK (confidence IN ('Low', 'Medium', 'High')),
		confidence_score DOUBLE PRECISION NOT NULL,
		factors          TEXT[] NOT NULL,
		range_low        DOUBLE PRECISION NOT NULL,
		range_high       DOUBLE PRECISION NOT NULL,
		model_version    TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (player_id, game_id, stat_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_sport_date ON predictions (sport, game_date)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_game_date ON predictions (game_date, player_name)`,
	`CREATE TABLE IF NOT EXISTS actual_results (
		player_id    TEXT NOT NULL,
		player_name  TEXT NOT NULL DEFAULT '',
		game_id      TEXT NOT NULL,
		sport        TEXT NOT NULL DEFAULT '',
		stat_type    TEXT NOT NULL,
		actual_value DOUBLE PRECISION NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (player_id, game_id, stat_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actual_results_game ON actual_results (game_id)`,
}

// Migrate creates the prediction and actual-result tables.
func Migrate(ctx context.Context, pool PgPool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
