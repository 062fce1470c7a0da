package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker shares a queue between processes.
//
// Layout under prefix:
//   - wait      LIST of ready jobs (LPUSH, BRPOP)
//   - delayed   ZSET of retries scored by due time in unix ms
//   - completed counter
//   - failed    LIST of the newest failed jobs
//
// Due retries are promoted by whichever worker pops next; ZREM decides the
// single winner so a retry is never promoted twice.
type RedisBroker struct {
	rdb         *redis.Client
	prefix      string
	pollTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewRedisBroker builds a RedisBroker for queue name.
func NewRedisBroker(rdb *redis.Client, name string) *RedisBroker {
	return &RedisBroker{
		rdb:         rdb,
		prefix:      "companionbot:queue:" + name,
		pollTimeout: time.Second,
	}
}

// OpenRedis parses a redis:// URL and checks connectivity.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (b *RedisBroker) key(k string) string { return b.prefix + ":" + k }

func (b *RedisBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Push appends job to the wait list.
func (b *RedisBroker) Push(ctx context.Context, job *Job) error {
	if b.isClosed() {
		return ErrClosed
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.rdb.LPush(ctx, b.key("wait"), raw).Err()
}

// Schedule adds job to the delayed set, due at at.
func (b *RedisBroker) Schedule(ctx context.Context, job *Job, at time.Time) error {
	if b.isClosed() {
		return ErrClosed
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.rdb.ZAdd(ctx, b.key("delayed"), redis.Z{Score: float64(at.UnixMilli()), Member: raw}).Err()
}

// Pop promotes due retries, then waits up to pollTimeout for a ready job,
// looping until one arrives or ctx ends.
func (b *RedisBroker) Pop(ctx context.Context) (*Job, error) {
	for {
		if b.isClosed() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.promote(ctx, time.Now()); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("queue", b.prefix).Msg("promote delayed jobs")
		}

		res, err := b.rdb.BRPop(ctx, b.pollTimeout, b.key("wait")).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		// res = [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Error().Err(err).Str("queue", b.prefix).Msg("dropping undecodable job")
			continue
		}
		return &job, nil
	}
}

func (b *RedisBroker) promote(ctx context.Context, now time.Time) error {
	due, err := b.rdb.ZRangeByScore(ctx, b.key("delayed"), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range due {
		n, err := b.rdb.ZRem(ctx, b.key("delayed"), m).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			continue // another worker promoted it
		}
		if err := b.rdb.LPush(ctx, b.key("wait"), m).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Complete increments the completed counter.
func (b *RedisBroker) Complete(ctx context.Context, _ *Job) error {
	return b.rdb.Incr(ctx, b.key("completed")).Err()
}

// Fail pushes job onto the failed list and trims it to keep entries.
func (b *RedisBroker) Fail(ctx context.Context, job *Job, keep int) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.LPush(ctx, b.key("failed"), raw)
	if keep > 0 {
		pipe.LTrim(ctx, b.key("failed"), 0, int64(keep-1))
	} else {
		pipe.Del(ctx, b.key("failed"))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Stats reads the list and set sizes.
func (b *RedisBroker) Stats(ctx context.Context) (Stats, error) {
	pipe := b.rdb.Pipeline()
	wait := pipe.LLen(ctx, b.key("wait"))
	delayed := pipe.ZCard(ctx, b.key("delayed"))
	completed := pipe.Get(ctx, b.key("completed"))
	failed := pipe.LLen(ctx, b.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}
	st := Stats{Waiting: wait.Val(), Delayed: delayed.Val(), Failed: failed.Val()}
	if n, err := completed.Int64(); err == nil {
		st.Completed = n
	}
	return st, nil
}

// Close marks the broker closed. The Redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
