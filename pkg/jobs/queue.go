// Package jobs runs background work on a bounded goroutine pool.
package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueClosed is returned when enqueueing on a stopped or unstarted queue.
var ErrQueueClosed = errors.New("queue not running")

// Job is a unit of background work.
type Job struct {
	ID       string
	Kind     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// Options configures a Queue.
type Options struct {
	Workers    int
	Buffer     int
	MaxRetries int
	Backoff    time.Duration
	// DrainTimeout bounds how long Stop waits for queued jobs before
	// cancelling the rest.
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Stats is a point-in-time view of queue throughput.
type Stats struct {
	Processed uint64
	Failed    uint64
	Dropped   uint64
}

// Queue dispatches jobs to a fixed set of workers and retries failures with
// exponential backoff.
type Queue struct {
	name    string
	handler Handler
	opts    Options

	jobs    chan Job
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue builds a queue; call Start before enqueueing.
func NewQueue(name string, handler Handler, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 8
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{name: name, handler: handler, opts: opts}
}

// Start launches the workers. Repeated calls are no-ops. Workers keep values
// from ctx but not its cancellation; Stop ends them.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.jobs = make(chan Job, q.opts.Buffer)
	q.running = true
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(q.jobs)
	}
	q.opts.Logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.opts.Workers))
}

// Stop refuses new jobs, lets the workers drain what is already queued and
// cancels whatever is left once DrainTimeout passes.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.jobs)
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(q.opts.DrainTimeout):
		q.opts.Logger.Warn("queue drain timed out", zap.String("queue", q.name))
		q.cancel()
		<-drained
	}
	q.cancel()
	q.opts.Logger.Info("queue stopped",
		zap.String("queue", q.name),
		zap.Uint64("processed", q.processed.Load()),
		zap.Uint64("dropped", q.dropped.Load()),
	)
}

// Enqueue submits a job without blocking. A full buffer drops the job.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrQueueClosed
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.dropped.Add(1)
		q.opts.Logger.Warn("queue full, dropping job", zap.String("queue", q.name), zap.String("kind", job.Kind))
		return errors.New("queue full")
	}
}

// Stats returns throughput counters.
func (q *Queue) Stats() Stats {
	return Stats{Processed: q.processed.Load(), Failed: q.failed.Load(), Dropped: q.dropped.Load()}
}

func (q *Queue) work(jobs <-chan Job) {
	defer q.wg.Done()
	for job := range jobs {
		if q.ctx.Err() != nil {
			q.dropped.Add(1)
			continue
		}
		q.run(job)
	}
}

func (q *Queue) run(job Job) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			q.processed.Add(1)
			return
		}
		if job.Attempt >= q.opts.MaxRetries || q.ctx.Err() != nil {
			q.failed.Add(1)
			q.opts.Logger.Error("job failed",
				zap.String("queue", q.name),
				zap.String("job_id", job.ID),
				zap.String("kind", job.Kind),
				zap.Int("attempt", job.Attempt),
				zap.Error(err),
			)
			return
		}
		delay := q.opts.Backoff << job.Attempt
		job.Attempt++
		q.opts.Logger.Warn("job failed, retrying",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.failed.Add(1)
			return
		case <-timer.C:
		}
	}
}
