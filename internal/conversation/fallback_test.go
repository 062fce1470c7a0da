package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func contents(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Content
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemoryContext_RingKeepsNewest(t *testing.T) {
	m := NewMemoryContext(3, 0)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		if err := m.Append(ctx, 1, Entry{Role: "USER", Content: s}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, _ := m.Recent(ctx, 1, 10)
	if !sameStrings(contents(got), []string{"c", "d", "e"}) {
		t.Fatalf("Recent(10) = %v", contents(got))
	}
	got, _ = m.Recent(ctx, 1, 2)
	if !sameStrings(contents(got), []string{"d", "e"}) {
		t.Fatalf("Recent(2) = %v", contents(got))
	}
	if got, _ := m.Recent(ctx, 1, 0); len(got) != 0 {
		t.Fatalf("Recent(0) = %v", got)
	}
	if got, _ := m.Recent(ctx, 2, 5); got == nil || len(got) != 0 {
		t.Fatalf("unknown chat = %#v; want empty slice", got)
	}
	if got[0].At.IsZero() {
		t.Fatal("timestamp not filled in")
	}
}

func TestMemoryContext_ChatsAreIsolatedAndResettable(t *testing.T) {
	m := NewMemoryContext(0, 0) // capacity clamps to 1
	ctx := context.Background()
	_ = m.Append(ctx, 1, Entry{Content: "one"})
	_ = m.Append(ctx, 1, Entry{Content: "two"})
	_ = m.Append(ctx, 2, Entry{Content: "other"})

	if got, _ := m.Recent(ctx, 1, 5); !sameStrings(contents(got), []string{"two"}) {
		t.Fatalf("chat 1 = %v", contents(got))
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}
	_ = m.Reset(ctx, 1)
	if got, _ := m.Recent(ctx, 1, 5); len(got) != 0 {
		t.Fatalf("after Reset = %v", contents(got))
	}
	if got, _ := m.Recent(ctx, 2, 5); len(got) != 1 {
		t.Fatal("Reset touched another chat")
	}
}

func TestMemoryContext_IdleEviction(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryContext(5, time.Hour, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = m.Append(ctx, 1, Entry{Content: "old"})
	now = now.Add(30 * time.Minute)
	_ = m.Append(ctx, 2, Entry{Content: "newer"})

	now = now.Add(45 * time.Minute) // chat 1 idle 75m, chat 2 idle 45m
	if m.Len() != 1 {
		t.Fatalf("Len = %d; want 1 after eviction", m.Len())
	}
	if got, _ := m.Recent(ctx, 1, 5); len(got) != 0 {
		t.Fatal("idle chat not evicted")
	}
	if got, _ := m.Recent(ctx, 2, 5); len(got) != 1 {
		t.Fatal("active chat evicted")
	}
}

func newRedisContext(t *testing.T, capacity int, ttl time.Duration) (*RedisContext, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisContext(rdb, "test", capacity, ttl), mr
}

func TestRedisContext_CappedList(t *testing.T) {
	rc, mr := newRedisContext(t, 3, time.Hour)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c", "d"} {
		if err := rc.Append(ctx, 9, Entry{Role: "USER", Content: s}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := rc.Recent(ctx, 9, 10)
	if err != nil || !sameStrings(contents(got), []string{"b", "c", "d"}) {
		t.Fatalf("Recent = %v, %v", contents(got), err)
	}
	got, _ = rc.Recent(ctx, 9, 1)
	if !sameStrings(contents(got), []string{"d"}) || got[0].At.IsZero() {
		t.Fatalf("Recent(1) = %+v", got)
	}
	if ttl := mr.TTL("test:fallback:9"); ttl != time.Hour {
		t.Fatalf("TTL = %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if got, _ := rc.Recent(ctx, 9, 10); len(got) != 0 {
		t.Fatalf("expired list still readable: %v", contents(got))
	}
}

func TestRedisContext_ResetAndUndecodable(t *testing.T) {
	rc, mr := newRedisContext(t, 5, 0)
	ctx := context.Background()

	_ = rc.Append(ctx, 1, Entry{Content: "keep"})
	if _, err := mr.Push("test:fallback:1", "{not json"); err != nil {
		t.Fatalf("push: %v", err)
	}
	got, err := rc.Recent(ctx, 1, 10)
	if err != nil || !sameStrings(contents(got), []string{"keep"}) {
		t.Fatalf("Recent = %v, %v", contents(got), err)
	}
	if mr.TTL("test:fallback:1") != 0 {
		t.Fatal("ttl set although idleTTL is zero")
	}

	if err := rc.Reset(ctx, 1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if mr.Exists("test:fallback:1") {
		t.Fatal("key survived Reset")
	}
	if got, _ := rc.Recent(ctx, 1, 0); got == nil || len(got) != 0 {
		t.Fatalf("Recent(0) = %#v", got)
	}
}
