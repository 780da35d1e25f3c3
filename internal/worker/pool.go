// Package worker implements the bounded worker pool that processes one
// pipeline run. Each job is a (game, player) pair; workers turn jobs into
// predictions and flush them to the store in batches:
// - Backpressure: Enqueue blocks while the queue is full
// - Batch upserts, one transaction per flush
// - Graceful shutdown: Stop drains the queue and flushes every worker's batch

package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

// Prometheus metrics
var (
	predictionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictions_generated_total",
		Help: "Total number of predictions written to the store",
	})

	predictionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictions_skipped_total",
		Help: "Total number of (player, statistic) pairs skipped for invalid or missing features",
	})

	predictionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictions_failed_total",
		Help: "Total number of predictions lost to job or store failures",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prediction_worker_queue_depth",
		Help: "Current depth of the worker queue",
	})

	batchUpsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prediction_batch_upsert_duration_seconds",
		Help:    "Duration of batch upserts to the prediction store",
		Buckets: prometheus.DefBuckets,
	})
)

// Job is one player in one game.
type Job struct {
	Game      models.GameContext
	Player    models.RawPlayer
	Timestamp time.Time
}

// Result is what a Handler produced for one job.
type Result struct {
	Predictions []*models.Prediction
	Skipped     int
	Failed      int
}

// Handler turns a job into predictions. It must be safe for concurrent use.
type Handler func(ctx context.Context, job Job) Result

// Flusher persists a batch of predictions. A returned error fails the whole batch.
type Flusher func(ctx context.Context, batch []*models.Prediction) error

// Stats are the counts of a finished pool.
type Stats struct {
	Jobs      int64
	Generated int64
	Skipped   int64
	Failed    int64
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Handler       Handler
	Flush         Flusher
	Logger        *zap.Logger
}

// Pool runs a fixed number of workers over a bounded queue. A pool serves a
// single run: Start, Enqueue every job, then Stop.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger

	jobs      atomic.Int64
	generated atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Debugw("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop closes the queue, waits for workers to drain it and returns the
// run's counts. Enqueue must not be called after Stop.
func (p *Pool) Stop() Stats {
	close(p.jobQueue)
	p.wg.Wait()
	p.cancel()
	p.logger.Debugw("Worker pool stopped", "stats", p.Stats())
	return p.Stats()
}

// Enqueue adds a job to the queue. Blocks if the queue is full and returns
// false only when the run's context is canceled.
func (p *Pool) Enqueue(job Job) bool {
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}

	select {
	case p.jobQueue <- job:
		p.jobs.Add(1)
		return true
	case <-p.ctx.Done():
		p.logger.Warnw("Run canceled, dropping job", "game", job.Game.Game.ID, "player", job.Player.ID)
		return false
	}
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// Stats returns the counts so far.
func (p *Pool) Stats() Stats {
	return Stats{
		Jobs:      p.jobs.Load(),
		Generated: p.generated.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
	}
}

// worker processes jobs from the queue, batching their predictions
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	batch := make([]*models.Prediction, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		// Flushes run on a detached context so a canceled run still persists
		// what it already computed.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 30*time.Second)
		err := p.config.Flush(ctx, batch)
		cancel()
		batchUpsertDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			p.logger.Errorw("Batch upsert failed",
				"worker", id,
				"batchSize", len(batch),
				"error", err,
			)
			p.failed.Add(int64(len(batch)))
			predictionsFailed.Add(float64(len(batch)))
		} else {
			p.generated.Add(int64(len(batch)))
			predictionsGenerated.Add(float64(len(batch)))
		}

		batch = make([]*models.Prediction, 0, p.config.BatchSize)
	}

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				flush()
				return
			}

			res := p.process(id, job)
			if res.Skipped > 0 {
				p.skipped.Add(int64(res.Skipped))
				predictionsSkipped.Add(float64(res.Skipped))
			}
			if res.Failed > 0 {
				p.failed.Add(int64(res.Failed))
				predictionsFailed.Add(float64(res.Failed))
			}
			batch = append(batch, res.Predictions...)
			if len(batch) >= p.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// process runs the handler, containing a panic to the single job.
func (p *Pool) process(id int, job Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Job handler panic",
				"worker", id,
				"game", job.Game.Game.ID,
				"player", job.Player.ID,
				"error", r,
			)
			res = Result{Failed: 1}
		}
	}()

	if p.ctx.Err() != nil {
		return Result{Failed: 1}
	}
	return p.config.Handler(p.ctx, job)
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			queueDepth.Set(0)
			return
		}
	}
}
