package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-engine/internal/jobs"
)

const (
	defaultWorkers      = 4
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
	maxRetryDelay       = time.Minute
)

var errQueueClosed = errors.New("queue is closed")

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs do not survive a restart.
type Queue struct {
	jobChan   chan *jobs.LedgerRunJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	retryWG   sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers      int
	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers started by Start.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithMaxRetries sets the retry budget given to jobs that do not carry one.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts. The delay doubles
// with each retry and is jittered.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) {
		q.retryBackoff = d
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishLedgerRun blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:      make(chan *jobs.LedgerRunJob, bufferSize),
		closeChan:    make(chan struct{}),
		store:        store,
		workers:      defaultWorkers,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishLedgerRun implements the Publisher interface.
// It enqueues a ledger run for asynchronous processing. Defaults are filled
// in on job, but workers receive a copy, so the caller may keep reading it.
func (q *Queue) PublishLedgerRun(ctx context.Context, job *jobs.LedgerRunJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return errQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job.Clone():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return errQueueClosed
	}
}

// Start implements the Consumer interface.
// It starts the configured number of workers, each calling handler per job.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job. Failures are retried with backoff until
// the budget runs out, except permanent ones which fail immediately.
// The worker owns job; retries are scheduled on a copy.
func (q *Queue) processJob(ctx context.Context, job *jobs.LedgerRunJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case !jobs.IsPermanent(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if retry {
		next := job.Clone()
		next.Status = jobs.JobStatusPending
		next.StartedAt = nil
		next.CompletedAt = nil

		q.retryWG.Add(1)
		go q.requeue(ctx, next, q.retryDelay(job.RetryCount))
	}
}

// retryDelay returns the jittered exponential delay before the given retry.
func (q *Queue) retryDelay(retry int) time.Duration {
	if q.retryBackoff <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.retryBackoff
	b.Multiplier = 2
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < retry; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// requeue publishes job again once delay has passed. A job that cannot be
// re-published is recorded as failed so it does not stay in retrying.
func (q *Queue) requeue(ctx context.Context, job *jobs.LedgerRunJob, delay time.Duration) {
	defer q.retryWG.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	var err error
	select {
	case <-timer.C:
		if err = q.PublishLedgerRun(ctx, job); err == nil {
			return
		}
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.closeChan:
		err = errQueueClosed
	}

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.Status = jobs.JobStatusFailed
	job.Error = fmt.Sprintf("retry abandoned: %v (last error: %s)", err, job.Error)

	if q.store != nil {
		_ = q.store.SaveJob(context.WithoutCancel(ctx), job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.retryWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
