package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/propsight/prediction-api/internal/models"
)

// RunLock admits at most one pipeline run per scope. Acquire returns a token
// that must be presented to Release; a lock held past its TTL expires so a
// crashed run cannot block the scope forever.
type RunLock interface {
	Acquire(ctx context.Context, scope string, ttl time.Duration) (string, error)
	Release(ctx context.Context, scope, token string) error
}

const runLockPrefix = "pipeline:lock:"

// releaseScript deletes the key only if it still holds the caller's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker is the subset of *redis.Client used by RedisRunLock.
type RedisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisRunLock shares the run lock between server and CLI processes.
type RedisRunLock struct {
	client RedisLocker
}

func NewRedisRunLock(client RedisLocker) *RedisRunLock {
	return &RedisRunLock{client: client}
}

func (l *RedisRunLock) Acquire(ctx context.Context, scope string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, runLockPrefix+scope, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire run lock %s: %w", scope, err)
	}
	if !ok {
		return "", models.ErrRunInProgress
	}
	return token, nil
}

func (l *RedisRunLock) Release(ctx context.Context, scope, token string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{runLockPrefix + scope}, token).Err(); err != nil {
		return fmt.Errorf("release run lock %s: %w", scope, err)
	}
	return nil
}

type heldLock struct {
	token   string
	expires time.Time
}

// MemoryRunLock is a process-local RunLock.
type MemoryRunLock struct {
	mu   sync.Mutex
	held map[string]heldLock
	now  Clock
}

// NewMemoryRunLock creates a lock table. A nil clock uses time.Now.
func NewMemoryRunLock(clock Clock) *MemoryRunLock {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRunLock{held: make(map[string]heldLock), now: clock}
}

func (l *MemoryRunLock) Acquire(ctx context.Context, scope string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[scope]; ok && now.Before(h.expires) {
		return "", models.ErrRunInProgress
	}
	token := uuid.NewString()
	l.held[scope] = heldLock{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *MemoryRunLock) Release(ctx context.Context, scope, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[scope]; ok && h.token == token {
		delete(l.held, scope)
	}
	return nil
}
