package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/metered-finance/internal/metrics"
)

// JobFunc is a unit of fire-and-forget work. It receives a context bounded by the
// queue's job timeout, detached from the request that submitted it.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	run  JobFunc
}

// WorkQueue runs background jobs on a fixed pool of workers. Submit never blocks:
// when the buffer is full the job is dropped and counted.
type WorkQueue struct {
	jobs       chan job
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewWorkQueue creates a queue with the given worker count and buffer size
func NewWorkQueue(logger *slog.Logger, workers, queueSize int, jobTimeout time.Duration) *WorkQueue {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Second
	}
	return &WorkQueue{
		jobs:       make(chan job, queueSize),
		logger:     logger.With(slog.String("component", "background")),
		workers:    workers,
		jobTimeout: jobTimeout,
	}
}

// Start launches the workers. Calling Start more than once has no effect.
func (q *WorkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("background work queue started",
		slog.Int("workers", q.workers),
		slog.Int("queue_size", cap(q.jobs)),
	)
}

// Submit enqueues a job and reports whether it was accepted
func (q *WorkQueue) Submit(name string, fn JobFunc) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordJob(name, metrics.JobDropped)
		q.logger.Warn("background job dropped: queue stopped", slog.String("job", name))
		return false
	}

	select {
	case q.jobs <- job{name: name, run: fn}:
		metrics.BackgroundQueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		metrics.RecordJob(name, metrics.JobDropped)
		q.logger.Warn("background job dropped: queue full", slog.String("job", name))
		return false
	}
}

// Stop refuses new jobs and waits for queued jobs to finish or ctx to expire
func (q *WorkQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("background work queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background work queue did not drain: %w", ctx.Err())
	}
}

func (q *WorkQueue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		metrics.BackgroundQueueDepth.Set(float64(len(q.jobs)))
		q.execute(j)
	}
}

func (q *WorkQueue) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			metrics.RecordJob(j.name, metrics.JobFailed)
			q.logger.Warn("background job panicked",
				slog.String("job", j.name),
				slog.Any("panic", p),
			)
		}
	}()

	if err := j.run(ctx); err != nil {
		metrics.RecordJob(j.name, metrics.JobFailed)
		q.logger.Warn("background job failed",
			slog.String("job", j.name),
			slog.Any("error", err),
		)
		return
	}

	metrics.RecordJob(j.name, metrics.JobOK)
}
