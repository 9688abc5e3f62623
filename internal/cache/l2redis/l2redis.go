// Package l2redis implements internal/ports.DistributedCache over Redis
// using gomodule/redigo: a bounded connection pool, context-aware
// dialing, and plain byte-slice values (serialization is the caller's
// concern).
package l2redis

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/agentmem/hrce/internal/ports"
)

// Cache adapts a redigo connection pool to ports.DistributedCache.
type Cache struct {
	pool      *redis.Pool
	keyPrefix string
}

// Options configures the Redis connection pool.
type Options struct {
	URL            string
	KeyPrefix      string
	MaxIdle        int
	MaxActive      int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// New dials lazily: the pool is constructed immediately but connections
// are only opened on first use, matching redigo's standard idiom.
func New(opts Options) *Cache {
	maxIdle := opts.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 8
	}
	maxActive := opts.MaxActive
	if maxActive <= 0 {
		maxActive = 64
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}

	pool := &redis.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		IdleTimeout: idleTimeout,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(opts.URL, redis.DialConnectTimeout(connectTimeout))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	return &Cache{pool: pool, keyPrefix: opts.KeyPrefix}
}

// Close releases all pooled connections.
func (c *Cache) Close() error {
	return c.pool.Close()
}

func (c *Cache) prefixed(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return c.keyPrefix + key
}

// Get fetches key. A missing key is a clean (false, nil) result, not an
// error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", c.prefixed(key)))
	if err == redis.ErrNil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set stores value under key with a TTL in milliseconds. A ttlMS of zero
// stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlMS int64) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if ttlMS <= 0 {
		_, err = conn.Do("SET", c.prefixed(key), value)
		return err
	}
	_, err = conn.Do("SET", c.prefixed(key), value, "PX", ttlMS)
	return err
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("DEL", c.prefixed(key))
	return err
}

// Clear removes every key under this cache's prefix via SCAN, avoiding
// FLUSHDB so a shared Redis instance isn't clobbered.
func (c *Cache) Clear(ctx context.Context) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cursor := "0"
	pattern := c.prefixed("*")
	for {
		reply, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", pattern, "COUNT", 100))
		if err != nil {
			return err
		}
		cursor, err = redis.String(reply[0], nil)
		if err != nil {
			return err
		}
		keys, err := redis.Strings(reply[1], nil)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			args := redis.Args{}.AddFlat(keys)
			if _, err := conn.Do("DEL", args...); err != nil {
				return err
			}
		}
		if cursor == "0" {
			break
		}
	}
	return nil
}

// Stats reports the number of keys under this cache's prefix. SizeBytes
// is left at zero: Redis has no cheap way to report aggregate value size
// for a key pattern without scanning every value with MEMORY USAGE,
// which is too expensive to run on every stats poll.
func (c *Cache) Stats(ctx context.Context) (ports.DistributedCacheStats, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return ports.DistributedCacheStats{}, err
	}
	defer conn.Close()

	cursor := "0"
	pattern := c.prefixed("*")
	var count int64
	for {
		reply, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", pattern, "COUNT", 100))
		if err != nil {
			return ports.DistributedCacheStats{}, err
		}
		cursor, err = redis.String(reply[0], nil)
		if err != nil {
			return ports.DistributedCacheStats{}, err
		}
		keys, err := redis.Strings(reply[1], nil)
		if err != nil {
			return ports.DistributedCacheStats{}, err
		}
		count += int64(len(keys))
		if cursor == "0" {
			break
		}
	}
	return ports.DistributedCacheStats{EntryCount: count}, nil
}
