package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

// MockTx implements pgx.Tx for testing
type MockTx struct {
	pgx.Tx
	ExecFunc   func(sql string, args ...any) (pgconn.CommandTag, error)
	CommitErr  error
	Execs      []string
	Committed  bool
	RolledBack bool
}

func (m *MockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.Execs = append(m.Execs, sql)
	if m.ExecFunc != nil {
		return m.ExecFunc(sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *MockTx) Commit(ctx context.Context) error {
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.Committed = true
	return nil
}

func (m *MockTx) Rollback(ctx context.Context) error {
	if !m.Committed {
		m.RolledBack = true
	}
	return nil
}

// MockPgPool implements PgPool, handing out one MockTx per Begin.
type MockPgPool struct {
	Txs     []*MockTx
	Begins  int
	Queries []string
	Args    [][]any
	PingErr error
}

func (m *MockPgPool) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.Begins >= len(m.Txs) {
		return nil, errors.New("no more transactions")
	}
	tx := m.Txs[m.Begins]
	m.Begins++
	return tx, nil
}

func (m *MockPgPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.Queries = append(m.Queries, sql)
	m.Args = append(m.Args, args)
	return nil, errors.New("query not supported by mock")
}

func (m *MockPgPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.Queries = append(m.Queries, sql)
	return noRow{}
}

func (m *MockPgPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.Queries = append(m.Queries, sql)
	return pgconn.CommandTag{}, nil
}

func (m *MockPgPool) Ping(ctx context.Context) error { return m.PingErr }

type noRow struct{}

func (noRow) Scan(dest ...any) error { return pgx.ErrNoRows }

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

func TestPostgresUpsertBatchSingleTransaction(t *testing.T) {
	tx := &MockTx{}
	pool := &MockPgPool{Txs: []*MockTx{tx}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)
	d := time.Now()

	n, err := s.UpsertBatch(context.Background(), []*models.Prediction{
		samplePrediction("p1", "g1", "points", d),
		samplePrediction("p2", "g1", "points", d),
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if n != 2 {
		t.Errorf("UpsertBatch() = %d, want 2", n)
	}
	if pool.Begins != 1 || !tx.Committed {
		t.Errorf("expected one committed transaction, begins=%d committed=%v", pool.Begins, tx.Committed)
	}
	if len(tx.Execs) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(tx.Execs))
	}
	stmt := tx.Execs[0]
	if !strings.Contains(stmt, "ON CONFLICT (player_id, game_id, stat_type) DO UPDATE") {
		t.Errorf("upsert statement lacks conflict clause: %s", stmt)
	}
	setClause := stmt[strings.Index(stmt, "DO UPDATE"):]
	if strings.Contains(setClause, "created_at") {
		t.Error("upsert must not overwrite created_at")
	}
}

func TestPostgresUpsertRetriesConflictOnce(t *testing.T) {
	failing := &MockTx{ExecFunc: func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, serializationFailure()
	}}
	ok := &MockTx{}
	pool := &MockPgPool{Txs: []*MockTx{failing, ok}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)

	if err := s.Upsert(context.Background(), samplePrediction("p1", "g1", "points", time.Now())); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if pool.Begins != 2 {
		t.Errorf("Begins = %d, want 2", pool.Begins)
	}
	if !failing.RolledBack || !ok.Committed {
		t.Error("expected first transaction rolled back and second committed")
	}
}

func TestPostgresUpsertSurfacesRepeatedConflict(t *testing.T) {
	fail := func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	}
	pool := &MockPgPool{Txs: []*MockTx{{ExecFunc: fail}, {ExecFunc: fail}, {}}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)

	err := s.Upsert(context.Background(), samplePrediction("p1", "g1", "points", time.Now()))
	var conflict *models.StoreConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Upsert() error = %v, want StoreConflictError", err)
	}
	if pool.Begins != 2 {
		t.Errorf("Begins = %d, want exactly one retry", pool.Begins)
	}
}

func TestPostgresUpsertDoesNotRetryOtherErrors(t *testing.T) {
	pool := &MockPgPool{Txs: []*MockTx{{ExecFunc: func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23502", Message: "not null violation"}
	}}, {}}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)

	if err := s.Upsert(context.Background(), samplePrediction("p1", "g1", "points", time.Now())); err == nil {
		t.Fatal("expected error")
	}
	if pool.Begins != 1 {
		t.Errorf("Begins = %d, want 1", pool.Begins)
	}
}

func TestPostgresPurgeIsTransactional(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var gotArgs []any
	tx := &MockTx{ExecFunc: func(sql string, args ...any) (pgconn.CommandTag, error) {
		gotArgs = args
		return pgconn.NewCommandTag("DELETE 7"), nil
	}}
	pool := &MockPgPool{Txs: []*MockTx{tx}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)

	removed, err := s.PurgeOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeOlderThan() error = %v", err)
	}
	if removed != 7 {
		t.Errorf("removed = %d, want 7", removed)
	}
	if !tx.Committed {
		t.Error("purge not committed")
	}
	if !strings.Contains(tx.Execs[0], "game_date < $1") {
		t.Errorf("unexpected purge statement: %s", tx.Execs[0])
	}
	if len(gotArgs) != 1 || gotArgs[0] != cutoff {
		t.Errorf("purge args = %v", gotArgs)
	}
}

func TestPostgresDistinctQueries(t *testing.T) {
	pool := &MockPgPool{}
	s := NewPostgresStore(pool, zap.NewNop(), nil)
	ctx := context.Background()

	if _, err := s.Sports(ctx); err == nil {
		t.Fatal("expected query error from mock")
	}
	if _, err := s.GameDates(ctx, "nba"); err == nil {
		t.Fatal("expected query error from mock")
	}
	if len(pool.Queries) != 2 {
		t.Fatalf("ran %d queries, want 2", len(pool.Queries))
	}
	if !strings.Contains(pool.Queries[0], "SELECT DISTINCT sport FROM predictions") {
		t.Errorf("unexpected sports query: %s", pool.Queries[0])
	}
	if !strings.Contains(pool.Queries[1], "(game_date AT TIME ZONE 'UTC')::date") || !strings.Contains(pool.Queries[1], "ORDER BY day DESC") {
		t.Errorf("unexpected dates query: %s", pool.Queries[1])
	}
	if len(pool.Args[1]) != 1 || pool.Args[1][0] != "nba" {
		t.Errorf("dates args = %v, want [nba]", pool.Args[1])
	}
}

func TestPostgresPurgeRollsBackOnCommitFailure(t *testing.T) {
	tx := &MockTx{CommitErr: errors.New("connection reset")}
	pool := &MockPgPool{Txs: []*MockTx{tx}}
	s := NewPostgresStore(pool, zap.NewNop(), nil)

	if _, err := s.PurgeOlderThan(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if !tx.RolledBack {
		t.Error("expected rollback")
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	s := NewPostgresStore(&MockPgPool{}, zap.NewNop(), nil)

	_, err := s.Get(context.Background(), models.PredictionKey{PlayerID: "p", GameID: "g", StatType: "points"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMigrate(t *testing.T) {
	pool := &MockPgPool{}
	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(pool.Queries) != len(migrations) {
		t.Errorf("ran %d statements, want %d", len(pool.Queries), len(migrations))
	}
	if !strings.Contains(pool.Queries[0], "PRIMARY KEY (player_id, game_id, stat_type)") {
		t.Error("predictions table lacks identity key")
	}
}
