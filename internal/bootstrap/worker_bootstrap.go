package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"triage_worker/adapter/in/worker"
	"triage_worker/config"
	"triage_worker/internal/stream"
)

// Worker is the running triage worker: consumer, pool and dependencies.
type Worker struct {
	pool     *worker.Pool
	consumer *stream.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
}

// NewWorker wires the full worker from config. The returned cleanup closes
// the infrastructure clients and must run after Stop.
func NewWorker(cfg *config.Config, log zerolog.Logger) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	processor := worker.NewTriageProcessor(deps.Orchestrator, log)
	handler := worker.NewHandler(processor, log)

	pool := worker.NewPool(handler, &worker.PoolConfig{
		Workers:        cfg.Workers,
		BatchSize:      10,
		WorkerChanSize: 100,
		JobTimeout:     cfg.JobTimeout(),
	}, log)

	consumer := stream.NewConsumer(deps.Stream, pool, cfg.WorkerID, stream.ConsumerConfig{
		FetchCount:   int64(cfg.FetchCount),
		BlockTime:    cfg.BlockTime(),
		ReclaimIdle:  cfg.ReclaimIdle(),
		ReclaimEvery: cfg.ReclaimEvery(),
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		pool:     pool,
		consumer: consumer,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "worker").Logger(),
	}, cleanup, nil
}

// Deps exposes the wired dependencies for the API surface.
func (w *Worker) Deps() *Dependencies { return w.deps }

// Pool exposes the worker pool for the stats endpoint.
func (w *Worker) Pool() *worker.Pool { return w.pool }

// Start launches the pool and the stream consumer. Non-blocking.
func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return err
	}
	if err := w.consumer.Start(w.ctx); err != nil {
		w.pool.Stop()
		return err
	}
	w.log.Info().Str("worker_id", w.deps.Cfg.WorkerID).Msg("worker started")
	return nil
}

// Stop drains in-flight items and stops consuming. Unacked entries stay
// pending and are reclaimed by the next worker.
func (w *Worker) Stop() {
	w.cancel()
	w.pool.Stop()
	w.log.Info().Msg("worker stopped")
}
