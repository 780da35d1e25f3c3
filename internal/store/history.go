package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

const createHistoryTableSQL = `
	CREATE TABLE IF NOT EXISTS prediction_history (
		run_id           String,
		recorded_at      DateTime64(3),
		player_id        String,
		player_name      String,
		game_id          String,
		game_date        DateTime64(3),
		sport            LowCardinality(String),
		stat_type        LowCardinality(String),
		predicted_value  Float64,
		over_probability Float64,
		line             Float64,
		line_source      LowCardinality(String),
		confidence       LowCardinality(String),
		confidence_score Float64,
		factors          Array(String),
		model_version    LowCardinality(String)
	) ENGINE = MergeTree
	ORDER BY (sport, game_date, player_id, stat_type, recorded_at)`

// ClickHouseHistory appends every generated prediction to prediction_history.
// Postgres keeps only the latest version of a prediction; this table keeps
// each run's output. A nil *ClickHouseHistory records nothing.
type ClickHouseHistory struct {
	conn   driver.Conn
	logger *zap.SugaredLogger
	now    Clock
}

func NewClickHouseHistory(conn driver.Conn, logger *zap.Logger) *ClickHouseHistory {
	return &ClickHouseHistory{conn: conn, logger: logger.Sugar(), now: time.Now}
}

// EnsureSchema creates the history table.
func (h *ClickHouseHistory) EnsureSchema(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}
	return h.conn.Exec(ctx, createHistoryTableSQL)
}

func (h *ClickHouseHistory) Record(ctx context.Context, runID string, preds []*models.Prediction) error {
	if h == nil || h.conn == nil || len(preds) == 0 {
		return nil
	}

	batch, err := h.conn.PrepareBatch(ctx, `
		INSERT INTO prediction_history (
			run_id, recorded_at, player_id, player_name, game_id, game_date, sport, stat_type,
			predicted_value, over_probability, line, line_source, confidence, confidence_score,
			factors, model_version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare history batch: %w", err)
	}

	recordedAt := h.now().UTC()
	for _, p := range preds {
		if err := batch.Append(
			runID, recordedAt, p.PlayerID, p.PlayerName, p.GameID, p.GameDate, p.Sport, p.StatType,
			p.PredictedValue, p.OverProbability, p.Line, p.LineSource, string(p.Confidence), p.ConfidenceScore,
			p.Factors, p.ModelVersion,
		); err != nil {
			h.logger.Warnw("Failed to append prediction to history batch", "key", p.Key().String(), "error", err)
			continue
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send history batch: %w", err)
	}
	return nil
}
