package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Defaults mirror the production retry policy.
const (
	DefaultConcurrency = 3
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
	DefaultFailedKeep  = 50
	DefaultJobTimeout  = 2 * time.Minute
)

// Handler executes one job. A non-nil error schedules a retry until the
// attempt budget is spent.
type Handler func(ctx context.Context, job *Job) error

// FailureRecorder is told about jobs that exhausted their retries.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, queue string, job *Job, err error)
}

// Options configures a Queue. Zero values take the defaults above.
type Options struct {
	Name        string
	Concurrency int
	MaxAttempts int
	Backoff     time.Duration
	FailedKeep  int
	JobTimeout  time.Duration
	Recorder    FailureRecorder
}

// Queue admits jobs into a Broker and runs them on a worker pool.
type Queue struct {
	broker Broker
	opts   Options
	active atomic.Int64
	now    func() time.Time
}

// New builds a Queue over b.
func New(b Broker, opts Options) *Queue {
	if opts.Name == "" {
		opts.Name = "ai-response"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.FailedKeep <= 0 {
		opts.FailedKeep = DefaultFailedKeep
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	return &Queue{broker: b, opts: opts, now: time.Now}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.opts.Name }

// Backoff returns the delay before the retry that follows failed attempt n
// (1-based): base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Enqueue admits job and returns without waiting for execution. It assigns
// ID, priority and admission time.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Priority == 0 {
		job.Priority = DefaultPriority
	}
	job.Attempt = 0
	job.EnqueuedAt = q.now().UTC()
	if err := q.broker.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	jobsEnqueued.WithLabelValues(q.opts.Name).Inc()
	log.Debug().Str("queue", q.opts.Name).Str("job_id", job.ID).Int64("chat_id", job.ChatID).Msg("job enqueued")
	return nil
}

// Stats reports broker counts plus jobs executing in this process.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	st, err := q.broker.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Active = q.active.Load()
	return st, nil
}

// Run starts Concurrency workers and blocks until ctx is cancelled or the
// broker closes. Jobs already executing are allowed to finish.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	log.Info().Str("queue", q.opts.Name).Int("concurrency", q.opts.Concurrency).Msg("queue workers started")

	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, worker, h)
		}(i)
	}
	wg.Wait()

	log.Info().Str("queue", q.opts.Name).Msg("queue workers stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (q *Queue) work(ctx context.Context, worker int, h Handler) {
	for {
		job, err := q.broker.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			log.Error().Err(err).Str("queue", q.opts.Name).Int("worker", worker).Msg("pop failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		q.process(ctx, job, h)
	}
}

// process runs one attempt of job and routes the result.
func (q *Queue) process(ctx context.Context, job *Job, h Handler) {
	job.Attempt++
	l := log.With().
		Str("queue", q.opts.Name).
		Str("job_id", job.ID).
		Int64("chat_id", job.ChatID).
		Str("companion", job.Companion.ID).
		Int("attempt", job.Attempt).
		Logger()

	// Shutdown must not abort a reply halfway; the job keeps its own deadline.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.opts.JobTimeout)
	defer cancel()

	tracer := otel.Tracer("queue")
	jobCtx, span := tracer.Start(jobCtx, "ProcessJob", trace.WithAttributes(
		attribute.String("queue.name", q.opts.Name),
		attribute.String("job.id", job.ID),
		attribute.Int("job.attempt", job.Attempt),
	))
	defer span.End()

	q.active.Add(1)
	jobsInflight.WithLabelValues(q.opts.Name).Inc()
	start := time.Now()
	err := safeHandle(jobCtx, h, job)
	jobDuration.WithLabelValues(q.opts.Name).Observe(time.Since(start).Seconds())
	jobsInflight.WithLabelValues(q.opts.Name).Dec()
	q.active.Add(-1)

	// Bookkeeping runs on a fresh context: the job context may have expired.
	bctx, bcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer bcancel()

	if err == nil {
		jobsProcessed.WithLabelValues(q.opts.Name, "completed").Inc()
		if cerr := q.broker.Complete(bctx, job); cerr != nil {
			l.Warn().Err(cerr).Msg("mark job completed")
		}
		l.Debug().Msg("job completed")
		return
	}

	span.RecordError(err)
	job.LastError = err.Error()
	if job.Attempt < q.opts.MaxAttempts {
		delay := Backoff(q.opts.Backoff, job.Attempt)
		jobsProcessed.WithLabelValues(q.opts.Name, "retried").Inc()
		l.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, retry scheduled")
		serr := q.broker.Schedule(bctx, job, q.now().Add(delay))
		if serr == nil {
			return
		}
		l.Error().Err(serr).Msg("schedule retry failed, giving up on job")
	}

	jobsProcessed.WithLabelValues(q.opts.Name, "failed").Inc()
	l.Error().Err(err).Msg("job failed permanently")
	if ferr := q.broker.Fail(bctx, job, q.opts.FailedKeep); ferr != nil {
		l.Warn().Err(ferr).Msg("record failed job in broker")
	}
	if q.opts.Recorder != nil {
		q.opts.Recorder.RecordFailure(bctx, q.opts.Name, job, err)
	}
}

func safeHandle(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}
