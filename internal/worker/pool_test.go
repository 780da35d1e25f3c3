package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

// recordingFlusher captures every flushed batch.
type recordingFlusher struct {
	mu      sync.Mutex
	batches [][]*models.Prediction
	err     error
}

func (r *recordingFlusher) Flush(ctx context.Context, batch []*models.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := make([]*models.Prediction, len(batch))
	copy(cp, batch)
	r.batches = append(r.batches, cp)
	return nil
}

func (r *recordingFlusher) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func twoPredictions(ctx context.Context, job Job) Result {
	var preds []*models.Prediction
	for _, stat := range []string{"points", "rebounds"} {
		preds = append(preds, &models.Prediction{PlayerID: job.Player.ID, GameID: job.Game.Game.ID, StatType: stat})
	}
	return Result{Predictions: preds, Skipped: 1}
}

func job(i int) Job {
	return Job{
		Game:   models.GameContext{Game: models.RawGame{ID: "g1", Sport: "nba"}},
		Player: models.RawPlayer{ID: fmt.Sprintf("p%d", i)},
	}
}

func TestPoolProcessesAllJobs(t *testing.T) {
	flusher := &recordingFlusher{}
	pool := NewPool(PoolConfig{
		WorkerCount:   4,
		QueueSize:     8,
		BatchSize:     5,
		FlushInterval: 10 * time.Millisecond,
		Handler:       twoPredictions,
		Flush:         flusher.Flush,
		Logger:        zap.NewNop(),
	})
	pool.Start(context.Background())

	for i := 0; i < 50; i++ {
		if !pool.Enqueue(job(i)) {
			t.Fatalf("Enqueue(%d) returned false", i)
		}
	}
	stats := pool.Stop()

	if stats.Jobs != 50 {
		t.Errorf("Jobs = %d, want 50", stats.Jobs)
	}
	if stats.Generated != 100 {
		t.Errorf("Generated = %d, want 100", stats.Generated)
	}
	if stats.Skipped != 50 {
		t.Errorf("Skipped = %d, want 50", stats.Skipped)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", stats.Failed)
	}
	if got := flusher.total(); got != 100 {
		t.Errorf("flushed %d predictions, want 100", got)
	}
	for _, b := range flusher.batches {
		if len(b) > 6 {
			t.Errorf("batch of %d exceeds batch size plus one job", len(b))
		}
	}
}

func TestPoolFlushFailureCountsFailed(t *testing.T) {
	flusher := &recordingFlusher{err: errors.New("database unavailable")}
	pool := NewPool(PoolConfig{
		WorkerCount: 2,
		BatchSize:   3,
		Handler:     twoPredictions,
		Flush:       flusher.Flush,
		Logger:      zap.NewNop(),
	})
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		pool.Enqueue(job(i))
	}
	stats := pool.Stop()

	if stats.Generated != 0 {
		t.Errorf("Generated = %d, want 0", stats.Generated)
	}
	if stats.Failed != 20 {
		t.Errorf("Failed = %d, want 20", stats.Failed)
	}
}

func TestPoolContainsHandlerPanic(t *testing.T) {
	flusher := &recordingFlusher{}
	pool := NewPool(PoolConfig{
		WorkerCount: 1,
		Handler: func(ctx context.Context, j Job) Result {
			if j.Player.ID == "p3" {
				panic("bad roster entry")
			}
			return twoPredictions(ctx, j)
		},
		Flush:  flusher.Flush,
		Logger: zap.NewNop(),
	})
	pool.Start(context.Background())

	for i := 0; i < 5; i++ {
		pool.Enqueue(job(i))
	}
	stats := pool.Stop()

	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Generated != 8 {
		t.Errorf("Generated = %d, want 8", stats.Generated)
	}
}

func TestEnqueueCanceled(t *testing.T) {
	// Create a pool manually so no worker drains the queue
	cfg := PoolConfig{
		QueueSize: 1,
		Logger:    zap.NewNop(),
	}

	pool := &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.ctx = ctx
	pool.cancel = cancel

	if !pool.Enqueue(job(1)) {
		t.Fatal("Failed to enqueue first job")
	}

	done := make(chan bool)
	go func() { done <- pool.Enqueue(job(2)) }()

	select {
	case <-done:
		t.Fatal("Enqueue should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case enqueued := <-done:
		if enqueued {
			t.Error("Enqueue should return false once the run is canceled")
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue did not return after cancel")
	}
	if pool.QueueDepth() != 1 {
		t.Errorf("QueueDepth() = %d, want 1", pool.QueueDepth())
	}
}
