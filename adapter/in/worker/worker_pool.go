package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int           // concurrent pipeline workers
	BatchSize      int           // go-pkgz batch size
	WorkerChanSize int           // per-worker channel buffer
	JobTimeout     time.Duration // per-item processing deadline
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        8,
		BatchSize:      10,
		WorkerChanSize: 100,
		JobTimeout:     2 * time.Minute,
	}
}

// PoolMetrics holds pool counters for the stats endpoint.
type PoolMetrics struct {
	JobsProcessed  int64 `json:"jobs_processed"`
	JobsFailed     int64 `json:"jobs_failed"`
	AvgProcessTime int64 `json:"avg_process_time_ms"`
}

// Pool fans messages out to pipeline workers using go-pkgz/pool.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics PoolMetrics
	log     zerolog.Logger

	started bool
	mu      sync.RWMutex
}

// messageWorker implements pool.Worker for Message processing.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

// NewPool creates a worker pool.
func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Dur("job_timeout", p.config.JobTimeout).
		Msg("worker pool started")
	return nil
}

// Stop drains in-flight items and stops the pool.
func (p *Pool) Stop() {
	// The write lock waits out any in-flight Submit; once started is false no
	// new submit can reach the group, so closing it below is safe.
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.pool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing pool")
	}
	p.cancel()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit hands one message to the pool. Blocks when all workers are busy,
// which is the backpressure that throttles stream fetching. The read lock is
// held across the submit: Stop takes the write lock before closing the group,
// so a racing submit can never hit a closed pool.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.pool == nil {
		return false
	}
	p.pool.Submit(msg)
	return true
}

func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	jobCtx := ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.handler.Process(jobCtx, msg)
	elapsed := time.Since(start)

	if err != nil {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		p.log.Warn().Err(err).
			Str("job_id", msg.ID).
			Dur("elapsed", elapsed).
			Msg("job failed, left pending for redelivery")
		return err
	}

	// Durable outcome reached; ack removes the entry from the pending list.
	if ackErr := msg.Ack(ctx); ackErr != nil {
		// The outcome is durable and idempotent, so redelivery after a
		// failed ack rewrites the same result.
		p.log.Warn().Err(ackErr).Str("job_id", msg.ID).Msg("ack failed")
	}

	atomic.AddInt64(&p.metrics.JobsProcessed, 1)
	p.updateAvgProcessTime(elapsed.Milliseconds())
	return nil
}

func (p *Pool) updateAvgProcessTime(elapsedMs int64) {
	processed := atomic.LoadInt64(&p.metrics.JobsProcessed)
	if processed <= 0 {
		return
	}
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	atomic.StoreInt64(&p.metrics.AvgProcessTime, current+(elapsedMs-current)/processed)
}

// GetMetrics returns a copy of the pool counters.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
	}
}
