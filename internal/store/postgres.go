package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

// PgPool defines the subset of *pgxpool.Pool the store needs.
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

const upsertPredictionSQL = `
	INSERT INTO predictions (
		player_id, player_name, team, opponent, game_id, game_date, sport, stat_type,
		predicted_value, over_probability, line, line_source, confidence, confidence_score,
		factors, range_low, range_high, model_version, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
	ON CONFLICT (player_id, game_id, stat_type) DO UPDATE SET
		player_name = EXCLUDED.player_name,
		team = EXCLUDED.team,
		opponent = EXCLUDED.opponent,
		game_date = EXCLUDED.game_date,
		sport = EXCLUDED.sport,
		predicted_value = EXCLUDED.predicted_value,
		over_probability = EXCLUDED.over_probability,
		line = EXCLUDED.line,
		line_source = EXCLUDED.line_source,
		confidence = EXCLUDED.confidence,
		confidence_score = EXCLUDED.confidence_score,
		factors = EXCLUDED.factors,
		range_low = EXCLUDED.range_low,
		range_high = EXCLUDED.range_high,
		model_version = EXCLUDED.model_version,
		updated_at = EXCLUDED.updated_at`

const upsertActualSQL = `
	INSERT INTO actual_results (player_id, player_name, game_id, sport, stat_type, actual_value, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (player_id, game_id, stat_type) DO UPDATE SET
		player_name = EXCLUDED.player_name,
		sport = EXCLUDED.sport,
		actual_value = EXCLUDED.actual_value`

// PostgresStore is the durable Store. Each batch is one transaction; a
// serialization failure or deadlock is retried once and then surfaced as
// *models.StoreConflictError.
type PostgresStore struct {
	pool   PgPool
	logger *zap.SugaredLogger
	now    Clock
}

// NewPostgresStore wraps a connection pool. A nil clock uses time.Now.
func NewPostgresStore(pool PgPool, logger *zap.Logger, clock Clock) *PostgresStore {
	if clock == nil {
		clock = time.Now
	}
	return &PostgresStore{pool: pool, logger: logger.Sugar(), now: clock}
}

func (s *PostgresStore) Upsert(ctx context.Context, p *models.Prediction) error {
	_, err := s.UpsertBatch(ctx, []*models.Prediction{p})
	return err
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, preds []*models.Prediction) (int, error) {
	if len(preds) == 0 {
		return 0, nil
	}
	for _, p := range preds {
		if p == nil || !p.Key().Valid() {
			return 0, fmt.Errorf("upsert: incomplete prediction key")
		}
	}

	err := s.retryConflict(ctx, preds[0].Key().String(), func(tx pgx.Tx) error {
		now := s.now().UTC()
		for _, p := range preds {
			_, err := tx.Exec(ctx, upsertPredictionSQL,
				p.PlayerID, p.PlayerName, p.Team, p.Opponent, p.GameID, p.GameDate, p.Sport, p.StatType,
				p.PredictedValue, p.OverProbability, p.Line, p.LineSource, string(p.Confidence), p.ConfidenceScore,
				p.Factors, p.RangeLow, p.RangeHigh, p.ModelVersion, now,
			)
			if err != nil {
				return classify(p.Key().String(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(preds), nil
}

func (s *PostgresStore) Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	sql, args, err := BuildPredictionQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, key models.PredictionKey) (*models.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+predictionColumns+" FROM predictions WHERE player_id = $1 AND game_id = $2 AND stat_type = $3",
		key.PlayerID, key.GameID, key.StatType)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM predictions WHERE game_date < $1", cutoff)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge predictions: %w", err)
	}
	s.logger.Infow("Purged predictions", "cutoff", cutoff, "removed", removed)
	return removed, nil
}

func (s *PostgresStore) Sports(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT sport FROM predictions ORDER BY sport")
	if err != nil {
		return nil, fmt.Errorf("query sports: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var sport string
		if err := rows.Scan(&sport); err != nil {
			return nil, err
		}
		out = append(out, sport)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GameDates(ctx context.Context, sport string) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT (game_date AT TIME ZONE 'UTC')::date AS day
		FROM predictions
		WHERE ($1 = '' OR sport = $1)
		ORDER BY day DESC
	`, sport)
	if err != nil {
		return nil, fmt.Errorf("query game dates: %w", err)
	}
	defer rows.Close()

	out := make([]time.Time, 0)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		out = append(out, day.UTC())
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) UpsertActuals(ctx context.Context, actuals []models.ActualResult) (int, error) {
	if len(actuals) == 0 {
		return 0, nil
	}
	for _, a := range actuals {
		if !a.Key().Valid() {
			return 0, fmt.Errorf("upsert actuals: incomplete key %q", a.Key())
		}
	}

	err := s.retryConflict(ctx, actuals[0].Key().String(), func(tx pgx.Tx) error {
		now := s.now().UTC()
		for _, a := range actuals {
			if _, err := tx.Exec(ctx, upsertActualSQL,
				a.PlayerID, a.PlayerName, a.GameID, a.Sport, a.StatType, a.ActualValue, now,
			); err != nil {
				return classify(a.Key().String(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(actuals), nil
}

func (s *PostgresStore) ActualsFor(ctx context.Context, keys []models.PredictionKey) ([]models.ActualResult, error) {
	if len(keys) == 0 {
		return []models.ActualResult{}, nil
	}
	players := make([]string, len(keys))
	games := make([]string, len(keys))
	stats := make([]string, len(keys))
	for i, k := range keys {
		players[i], games[i], stats[i] = k.PlayerID, k.GameID, k.StatType
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.player_id, a.player_name, a.game_id, a.sport, a.stat_type, a.actual_value, a.created_at
		FROM actual_results a
		JOIN unnest($1::text[], $2::text[], $3::text[]) AS k(player_id, game_id, stat_type)
			USING (player_id, game_id, stat_type)
	`, players, games, stats)
	if err != nil {
		return nil, fmt.Errorf("query actual results: %w", err)
	}
	defer rows.Close()

	out := make([]models.ActualResult, 0, len(keys))
	for rows.Next() {
		var a models.ActualResult
		if err := rows.Scan(&a.PlayerID, &a.PlayerName, &a.GameID, &a.Sport, &a.StatType, &a.ActualValue, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PendingGames(ctx context.Context, sport string, before time.Time) ([]models.PendingGame, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.sport, p.game_id, p.game_date
		FROM predictions p
		WHERE p.game_date < $1
			AND ($2 = '' OR p.sport = $2)
			AND NOT EXISTS (SELECT 1 FROM actual_results a WHERE a.game_id = p.game_id)
		ORDER BY p.game_date, p.game_id
	`, before, sport)
	if err != nil {
		return nil, fmt.Errorf("query pending games: %w", err)
	}
	defer rows.Close()

	var out []models.PendingGame
	for rows.Next() {
		var g models.PendingGame
		if err := rows.Scan(&g.Sport, &g.GameID, &g.GameDate); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// retryConflict runs fn in a transaction, retrying once on StoreConflictError.
func (s *PostgresStore) retryConflict(ctx context.Context, key string, fn func(pgx.Tx) error) error {
	err := s.inTx(ctx, fn)
	var conflict *models.StoreConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	s.logger.Warnw("Store conflict, retrying batch", "key", key, "error", err)
	return s.inTx(ctx, fn)
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("", err)
	}
	return nil
}

// classify maps serialization failures and deadlocks to StoreConflictError.
func classify(key string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return &models.StoreConflictError{Key: key, Err: err}
	}
	return err
}

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	var p models.Prediction
	var confidence string
	err := row.Scan(
		&p.PlayerID, &p.PlayerName, &p.Team, &p.Opponent, &p.GameID, &p.GameDate, &p.Sport, &p.StatType,
		&p.PredictedValue, &p.OverProbability, &p.Line, &p.LineSource, &confidence, &p.ConfidenceScore,
		&p.Factors, &p.RangeLow, &p.RangeHigh, &p.ModelVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Confidence = models.ConfidenceTier(confidence)
	return &p, nil
}
