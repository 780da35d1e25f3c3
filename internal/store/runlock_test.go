package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propsight/prediction-api/internal/models"
)

// fakeRedis implements RedisLocker over a map.
type fakeRedis struct {
	values map[string]string
	evals  int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.evals++
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisRunLock(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	lock := NewRedisRunLock(rdb)

	token, err := lock.Acquire(ctx, "nba", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := lock.Acquire(ctx, "nba", time.Minute); !errors.Is(err, models.ErrRunInProgress) {
		t.Errorf("second Acquire() error = %v, want ErrRunInProgress", err)
	}
	if _, err := lock.Acquire(ctx, "nfl", time.Minute); err != nil {
		t.Errorf("other scope should be free: %v", err)
	}

	if err := lock.Release(ctx, "nba", "not-the-token"); err != nil {
		t.Fatal(err)
	}
	if _, ok := rdb.values[runLockPrefix+"nba"]; !ok {
		t.Error("release with the wrong token must not free the lock")
	}

	if err := lock.Release(ctx, "nba", token); err != nil {
		t.Fatal(err)
	}
	if _, err := lock.Acquire(ctx, "nba", time.Minute); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestMemoryRunLockExpires(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	lock := NewMemoryRunLock(clock.Now)

	if _, err := lock.Acquire(ctx, "all", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := lock.Acquire(ctx, "all", time.Minute); !errors.Is(err, models.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	token, err := lock.Acquire(ctx, "all", time.Minute)
	if err != nil {
		t.Fatalf("expired lock not reclaimed: %v", err)
	}
	if err := lock.Release(ctx, "all", token); err != nil {
		t.Fatal(err)
	}
	if _, err := lock.Acquire(ctx, "all", time.Minute); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}
