package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"webbuilder/internal/metrics"
)

var (
	ErrQueueFull    = errors.New("job queue full")
	ErrQueueStopped = errors.New("job queue stopped")
)

type queuedJob struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan error
}

// Queue runs submitted jobs one at a time, in submission order, on a single
// goroutine. Every mutation of shared agent state goes through it.
type Queue struct {
	jobs   chan queuedJob
	stopCh chan struct{}

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewQueue(size int, log zerolog.Logger, m *metrics.Metrics) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		jobs:    make(chan queuedJob, size),
		stopCh:  make(chan struct{}),
		log:     log,
		metrics: m,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues fn without blocking and waits until it has run. A job whose
// context is already done when it reaches the front is skipped and Submit
// returns the context error.
func (q *Queue) Submit(ctx context.Context, fn func(context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	job := queuedJob{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		q.metrics.SetQueueDepth(len(q.jobs))
	default:
		q.mu.RUnlock()
		q.log.Warn().Int("capacity", cap(q.jobs)).Msg("job queue full")
		return ErrQueueFull
	}
	q.mu.RUnlock()

	return <-job.done
}

// Stop halts the worker. Jobs still waiting are released with ErrQueueStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			q.drain()
			q.log.Info().Msg("job queue stopped")
			return
		case job := <-q.jobs:
			q.metrics.SetQueueDepth(len(q.jobs))
			q.handle(job)
		}
	}
}

func (q *Queue) handle(job queuedJob) {
	if err := job.ctx.Err(); err != nil {
		q.log.Debug().Err(err).Msg("skip cancelled job")
		job.done <- err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("job panicked")
			job.done <- errors.New("job panicked")
		}
	}()
	job.fn(job.ctx)
	job.done <- nil
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.done <- ErrQueueStopped
		default:
			q.metrics.SetQueueDepth(0)
			return
		}
	}
}
