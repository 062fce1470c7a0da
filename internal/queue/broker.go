package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by brokers and queues after Close.
var ErrClosed = errors.New("queue closed")

// Broker stores jobs between admission and execution.
type Broker interface {
	// Push makes job immediately available to Pop.
	Push(ctx context.Context, job *Job) error
	// Schedule makes job available to Pop at or after at.
	Schedule(ctx context.Context, job *Job, at time.Time) error
	// Pop blocks until a job is available, ctx is done or the broker closes.
	Pop(ctx context.Context) (*Job, error)
	// Complete counts a finished job.
	Complete(ctx context.Context, job *Job) error
	// Fail keeps job in the failed set, retaining at most keep entries.
	Fail(ctx context.Context, job *Job, keep int) error
	// Stats reports waiting, delayed, completed and failed counts.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// MemoryBroker is an in-process Broker. Jobs are lost on restart.
type MemoryBroker struct {
	mu        sync.Mutex
	ready     []*Job
	delayed   map[*Job]*time.Timer
	failed    []*Job
	completed int64
	notify    chan struct{}
	done      chan struct{}
	closed    bool
}

// NewMemoryBroker builds an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		delayed: make(map[*Job]*time.Timer),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Push appends job to the ready list.
func (b *MemoryBroker) Push(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.ready = append(b.ready, job)
	b.signal()
	return nil
}

// Schedule arms a timer that moves job to the ready list at at.
func (b *MemoryBroker) Schedule(_ context.Context, job *Job, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.delayed[job] = time.AfterFunc(time.Until(at), func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.delayed[job]; !ok {
			return
		}
		delete(b.delayed, job)
		b.ready = append(b.ready, job)
		b.signal()
	})
	return nil
}

// Pop takes the oldest ready job.
func (b *MemoryBroker) Pop(ctx context.Context) (*Job, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.ready) > 0 {
			job := b.ready[0]
			b.ready[0] = nil
			b.ready = b.ready[1:]
			if len(b.ready) > 0 {
				b.signal()
			}
			b.mu.Unlock()
			return job, nil
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-b.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Complete increments the completed counter.
func (b *MemoryBroker) Complete(_ context.Context, _ *Job) error {
	b.mu.Lock()
	b.completed++
	b.mu.Unlock()
	return nil
}

// Fail keeps the newest keep failed jobs.
func (b *MemoryBroker) Fail(_ context.Context, job *Job, keep int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, job)
	if keep >= 0 && len(b.failed) > keep {
		b.failed = append([]*Job(nil), b.failed[len(b.failed)-keep:]...)
	}
	return nil
}

// Stats reports current counts. Active is left to the Queue.
func (b *MemoryBroker) Stats(_ context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Waiting:   int64(len(b.ready)),
		Delayed:   int64(len(b.delayed)),
		Completed: b.completed,
		Failed:    int64(len(b.failed)),
	}, nil
}

// Close stops pending timers and wakes blocked Pop calls.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for j, t := range b.delayed {
		t.Stop()
		delete(b.delayed, j)
	}
	close(b.done)
	return nil
}

// signal wakes one Pop waiter. Callers hold b.mu.
func (b *MemoryBroker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
