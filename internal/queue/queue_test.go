package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu    sync.Mutex
	jobs  []*Job
	errs  []error
	queue string
}

func (r *fakeRecorder) RecordFailure(_ context.Context, queue string, job *Job, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = queue
	r.jobs = append(r.jobs, job)
	r.errs = append(r.errs, err)
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// runQueue starts q.Run in the background and returns a stop func that
// cancels it and waits for the workers to exit.
func runQueue(t *testing.T, q *Queue, h Handler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, h) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(2*time.Second, tc.attempt); got != tc.want {
			t.Errorf("Backoff(2s, %d) = %v; want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	q := New(NewMemoryBroker(), Options{})
	if q.Name() != "ai-response" {
		t.Fatalf("name = %q", q.Name())
	}
	o := q.opts
	if o.Concurrency != DefaultConcurrency || o.MaxAttempts != DefaultMaxAttempts ||
		o.Backoff != DefaultBackoff || o.FailedKeep != DefaultFailedKeep || o.JobTimeout != DefaultJobTimeout {
		t.Fatalf("defaults not applied: %+v", o)
	}
}

func TestRun_ZeroOptionsKeepFailedJobs(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	q := New(b, Options{MaxAttempts: 1})

	stop := runQueue(t, q, func(context.Context, *Job) error { return errors.New("upstream down") })
	defer stop()

	_ = q.Enqueue(context.Background(), &Job{ChatID: 3, Companion: CompanionSnapshot{ID: "luna"}})
	waitFor(t, "failed list", func() bool {
		st, _ := q.Stats(context.Background())
		return st.Failed == 1
	})
}

func TestEnqueue_AssignsMetadata(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	q := New(b, Options{})
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	q.now = func() time.Time { return fixed }

	job := &Job{ChatID: 42, UserMessage: "hi", Attempt: 7}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" || job.Priority != DefaultPriority || job.Attempt != 0 {
		t.Fatalf("metadata = %+v", job)
	}
	if !job.EnqueuedAt.Equal(fixed) || job.EnqueuedAt.Location() != time.UTC {
		t.Fatalf("EnqueuedAt = %v", job.EnqueuedAt)
	}
	st, _ := q.Stats(context.Background())
	if st.Waiting != 1 {
		t.Fatalf("waiting = %d", st.Waiting)
	}
}

func TestEnqueue_Errors(t *testing.T) {
	b := NewMemoryBroker()
	q := New(b, Options{})
	if err := q.Enqueue(context.Background(), nil); err == nil {
		t.Fatal("nil job accepted")
	}
	_ = b.Close()
	if err := q.Enqueue(context.Background(), &Job{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue on closed broker = %v", err)
	}
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	rec := &fakeRecorder{}
	q := New(b, Options{Concurrency: 2, MaxAttempts: 3, Backoff: time.Millisecond, Recorder: rec})

	var calls atomic.Int32
	var lastAttempt atomic.Int32
	stop := runQueue(t, q, func(_ context.Context, job *Job) error {
		calls.Add(1)
		lastAttempt.Store(int32(job.Attempt))
		if job.Attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	defer stop()

	if err := q.Enqueue(context.Background(), &Job{ChatID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "completion", func() bool {
		st, _ := q.Stats(context.Background())
		return st.Completed == 1
	})
	if calls.Load() != 3 || lastAttempt.Load() != 3 {
		t.Fatalf("calls = %d, last attempt = %d", calls.Load(), lastAttempt.Load())
	}
	if rec.count() != 0 {
		t.Fatal("recorder called for a job that succeeded")
	}
}

func TestRun_ExhaustedJobIsRecorded(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	rec := &fakeRecorder{}
	q := New(b, Options{Name: "replies", Concurrency: 1, MaxAttempts: 2, Backoff: time.Millisecond, Recorder: rec})

	var calls atomic.Int32
	stop := runQueue(t, q, func(context.Context, *Job) error {
		calls.Add(1)
		return errors.New("boom")
	})
	defer stop()

	_ = q.Enqueue(context.Background(), &Job{ChatID: 9, Companion: CompanionSnapshot{ID: "zen"}})
	waitFor(t, "failure record", func() bool { return rec.count() == 1 })

	if calls.Load() != 2 {
		t.Fatalf("handler calls = %d; want 2", calls.Load())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.queue != "replies" || rec.jobs[0].Attempt != 2 || rec.jobs[0].LastError != "boom" {
		t.Fatalf("recorded = %s %+v", rec.queue, rec.jobs[0])
	}
	st, _ := q.Stats(context.Background())
	if st.Failed != 1 || st.Completed != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRun_PanicCountsAsFailure(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	rec := &fakeRecorder{}
	q := New(b, Options{Concurrency: 1, MaxAttempts: 1, Recorder: rec})

	stop := runQueue(t, q, func(context.Context, *Job) error { panic("kaboom") })
	defer stop()

	_ = q.Enqueue(context.Background(), &Job{})
	waitFor(t, "failure record", func() bool { return rec.count() == 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errs[0] == nil || rec.errs[0].Error() != "job handler panic: kaboom" {
		t.Fatalf("err = %v", rec.errs[0])
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	q := New(b, Options{Concurrency: 2})

	release := make(chan struct{})
	var running, peak atomic.Int32
	stop := runQueue(t, q, func(context.Context, *Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	})

	for i := 0; i < 5; i++ {
		_ = q.Enqueue(context.Background(), &Job{})
	}
	waitFor(t, "two active jobs", func() bool {
		st, _ := q.Stats(context.Background())
		return st.Active == 2
	})
	close(release)
	waitFor(t, "all completed", func() bool {
		st, _ := q.Stats(context.Background())
		return st.Completed == 5
	})
	stop()
	if peak.Load() != 2 {
		t.Fatalf("peak concurrency = %d; want 2", peak.Load())
	}
}

func TestRun_StopsWhenBrokerCloses(t *testing.T) {
	b := NewMemoryBroker()
	q := New(b, Options{Concurrency: 3})
	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), func(context.Context, *Job) error { return nil }) }()

	time.Sleep(10 * time.Millisecond)
	_ = b.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
