package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBroker_FIFO(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := b.Push(ctx, &Job{ID: id}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		j, err := b.Pop(ctx)
		if err != nil || j.ID != want {
			t.Fatalf("Pop = %v, %v; want %s", j, err, want)
		}
	}
	st, _ := b.Stats(ctx)
	if st.Waiting != 0 {
		t.Fatalf("waiting = %d", st.Waiting)
	}
}

func TestMemoryBroker_ScheduleDelays(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	if err := b.Schedule(ctx, &Job{ID: "later"}, time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	st, _ := b.Stats(ctx)
	if st.Delayed != 1 || st.Waiting != 0 {
		t.Fatalf("stats before due = %+v", st)
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	j, err := b.Pop(pctx)
	if err != nil || j.ID != "later" {
		t.Fatalf("Pop = %v, %v", j, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("delayed job popped too early")
	}
}

func TestMemoryBroker_PopHonoursContext(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Pop err = %v; want deadline exceeded", err)
	}
}

func TestMemoryBroker_CloseWakesPop(t *testing.T) {
	b := NewMemoryBroker()
	_ = b.Schedule(context.Background(), &Job{ID: "x"}, time.Now().Add(time.Hour))

	errc := make(chan error, 1)
	go func() {
		_, err := b.Pop(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Pop err = %v; want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop not woken by Close")
	}

	if err := b.Push(context.Background(), &Job{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Push after Close = %v", err)
	}
	st, _ := b.Stats(context.Background())
	if st.Delayed != 0 {
		t.Fatalf("pending timers not dropped: %+v", st)
	}
	// idempotent
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMemoryBroker_FailKeepsNewest(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Fail(ctx, &Job{ID: string(rune('a' + i))}, 2)
	}
	_ = b.Complete(ctx, &Job{})
	st, _ := b.Stats(ctx)
	if st.Failed != 2 || st.Completed != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if b.failed[0].ID != "d" || b.failed[1].ID != "e" {
		t.Fatalf("kept = %s,%s; want d,e", b.failed[0].ID, b.failed[1].ID)
	}
}
