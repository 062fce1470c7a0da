package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one turn of conversation context.
type Entry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Fallback keeps conversation context keyed by external chat id while the
// primary store is unreachable. It is a degraded-availability path, not a
// cache: nothing in it is copied back to the primary store.
type Fallback interface {
	Append(ctx context.Context, externalChatID int64, e Entry) error
	Recent(ctx context.Context, externalChatID int64, limit int) ([]Entry, error)
	Reset(ctx context.Context, externalChatID int64) error
}

// MemoryContext is a process-local Fallback. Each chat owns a ring buffer of
// at most capacity entries; chats untouched for longer than idleTTL are
// evicted. Context is lost on restart and is not shared between instances.
type MemoryContext struct {
	mu       sync.Mutex
	capacity int
	idleTTL  time.Duration
	now      func() time.Time
	chats    map[int64]*ring
}

// MemoryOption configures a MemoryContext.
type MemoryOption func(*MemoryContext)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryContext) { m.now = now }
}

// NewMemoryContext builds a MemoryContext. capacity < 1 is treated as 1 and
// idleTTL <= 0 disables eviction.
func NewMemoryContext(capacity int, idleTTL time.Duration, opts ...MemoryOption) *MemoryContext {
	if capacity < 1 {
		capacity = 1
	}
	m := &MemoryContext{
		capacity: capacity,
		idleTTL:  idleTTL,
		now:      time.Now,
		chats:    make(map[int64]*ring),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Append adds e to the chat's buffer, overwriting the oldest entry when full.
func (m *MemoryContext) Append(_ context.Context, externalChatID int64, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictLocked(now)
	r, ok := m.chats[externalChatID]
	if !ok {
		r = &ring{buf: make([]Entry, m.capacity)}
		m.chats[externalChatID] = r
	}
	if e.At.IsZero() {
		e.At = now
	}
	r.push(e)
	r.touched = now
	return nil
}

// Recent returns at most limit of the newest entries, oldest first.
func (m *MemoryContext) Recent(_ context.Context, externalChatID int64, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked(m.now())
	r, ok := m.chats[externalChatID]
	if !ok || limit <= 0 {
		return []Entry{}, nil
	}
	return r.last(limit), nil
}

// Reset drops the chat's buffer.
func (m *MemoryContext) Reset(_ context.Context, externalChatID int64) error {
	m.mu.Lock()
	delete(m.chats, externalChatID)
	m.mu.Unlock()
	return nil
}

// Len reports how many chats currently hold context.
func (m *MemoryContext) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(m.now())
	return len(m.chats)
}

func (m *MemoryContext) evictLocked(now time.Time) {
	if m.idleTTL <= 0 {
		return
	}
	for id, r := range m.chats {
		if now.Sub(r.touched) > m.idleTTL {
			delete(m.chats, id)
		}
	}
}

type ring struct {
	buf     []Entry
	start   int
	n       int
	touched time.Time
}

func (r *ring) push(e Entry) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) last(limit int) []Entry {
	if limit > r.n {
		limit = r.n
	}
	out := make([]Entry, 0, limit)
	for i := r.n - limit; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// RedisContext is a Fallback shared by every instance pointing at the same
// Redis. Each chat is a capped list that expires after idleTTL of silence.
type RedisContext struct {
	rdb      *redis.Client
	prefix   string
	capacity int
	idleTTL  time.Duration
}

// NewRedisContext builds a RedisContext storing keys under prefix.
func NewRedisContext(rdb *redis.Client, prefix string, capacity int, idleTTL time.Duration) *RedisContext {
	if capacity < 1 {
		capacity = 1
	}
	return &RedisContext{rdb: rdb, prefix: prefix, capacity: capacity, idleTTL: idleTTL}
}

func (r *RedisContext) key(externalChatID int64) string {
	return fmt.Sprintf("%s:fallback:%d", r.prefix, externalChatID)
}

// Append pushes e and trims the list to capacity.
func (r *RedisContext) Append(ctx context.Context, externalChatID int64, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	k := r.key(externalChatID)
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, k, raw)
	pipe.LTrim(ctx, k, int64(-r.capacity), -1)
	if r.idleTTL > 0 {
		pipe.Expire(ctx, k, r.idleTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns at most limit of the newest entries, oldest first.
func (r *RedisContext) Recent(ctx context.Context, externalChatID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	vals, err := r.rdb.LRange(ctx, r.key(externalChatID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Reset deletes the chat's list.
func (r *RedisContext) Reset(ctx context.Context, externalChatID int64) error {
	return r.rdb.Del(ctx, r.key(externalChatID)).Err()
}
