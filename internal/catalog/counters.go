// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/streamloft/vodhub/internal/log"
)

// Counters is the fire-and-forget view/like increment surface. Lost updates
// under high concurrency are acceptable; the counts converge eventually.
type Counters interface {
	BumpViews(ctx context.Context, id string)
	BumpLikes(ctx context.Context, id string)
}

// SQLCounters increments directly against the catalog. Default when no Redis
// address is configured.
type SQLCounters struct {
	store *Store
	log   zerolog.Logger
}

// NewSQLCounters wires direct-to-SQLite counters.
func NewSQLCounters(store *Store) *SQLCounters {
	return &SQLCounters{store: store, log: log.WithComponent("counters")}
}

func (c *SQLCounters) BumpViews(ctx context.Context, id string) {
	if err := c.store.IncrementViews(ctx, id); err != nil {
		c.log.Warn().Err(err).Str(log.FieldVideoID, id).Msg("increment views")
	}
}

func (c *SQLCounters) BumpLikes(ctx context.Context, id string) {
	if err := c.store.IncrementLikes(ctx, id); err != nil {
		c.log.Warn().Err(err).Str(log.FieldVideoID, id).Msg("increment likes")
	}
}

// RedisCounters buffers increments in Redis and flushes the deltas to the
// catalog on a ticker. This keeps hot view bumps off the SQLite write path
// during traffic spikes at the cost of a bounded staleness window.
type RedisCounters struct {
	client *redis.Client
	store  *Store
	log    zerolog.Logger
}

const (
	viewKeyPrefix = "views:"
	likeKeyPrefix = "likes:"
)

// NewRedisCounters connects to Redis and verifies the connection.
func NewRedisCounters(addr string, store *Store) (*RedisCounters, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCounters{
		client: client,
		store:  store,
		log:    log.WithComponent("counters"),
	}, nil
}

// Close releases the Redis connection.
func (c *RedisCounters) Close() error { return c.client.Close() }

func (c *RedisCounters) BumpViews(ctx context.Context, id string) {
	if err := c.client.Incr(ctx, viewKeyPrefix+id).Err(); err != nil {
		c.log.Warn().Err(err).Str(log.FieldVideoID, id).Msg("redis incr views")
	}
}

func (c *RedisCounters) BumpLikes(ctx context.Context, id string) {
	if err := c.client.Incr(ctx, likeKeyPrefix+id).Err(); err != nil {
		c.log.Warn().Err(err).Str(log.FieldVideoID, id).Msg("redis incr likes")
	}
}

// Flush drains buffered deltas into the catalog. GETDEL makes each delta
// apply at most once; an increment arriving mid-flush lands in the next
// cycle. Returns the number of videos updated.
func (c *RedisCounters) Flush(ctx context.Context) (int, error) {
	deltas := map[string][2]int64{} // id -> {views, likes}

	collect := func(prefix string, slot int) error {
		iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			val, err := c.client.GetDel(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return err
			}
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil || n == 0 {
				continue
			}
			id := strings.TrimPrefix(key, prefix)
			d := deltas[id]
			d[slot] += n
			deltas[id] = d
		}
		return iter.Err()
	}

	if err := collect(viewKeyPrefix, 0); err != nil {
		return 0, err
	}
	if err := collect(likeKeyPrefix, 1); err != nil {
		return 0, err
	}

	updated := 0
	for id, d := range deltas {
		if err := c.store.AddCounts(ctx, id, d[0], d[1]); err != nil {
			c.log.Warn().Err(err).Str(log.FieldVideoID, id).Msg("flush counter delta")
			continue
		}
		updated++
	}
	return updated, nil
}

// FlushLoop flushes on a ticker until ctx is cancelled, then performs one
// final best-effort flush.
func (c *RedisCounters) FlushLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := c.Flush(flushCtx); err != nil {
				c.log.Warn().Err(err).Msg("final counter flush")
			}
			cancel()
			return
		case <-ticker.C:
			if n, err := c.Flush(ctx); err != nil {
				c.log.Warn().Err(err).Msg("counter flush")
			} else if n > 0 {
				c.log.Debug().Int("videos", n).Msg("flushed counter deltas")
			}
		}
	}
}
