// Package sink mirrors history samples to Redis so that history survives
// agent restarts.
//
// Samples for one backend are stored as JSON in a list at
// <prefix>:<backend>, newest first, trimmed to the history capacity.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/history"
)

// writeTimeout bounds one mirror write so a slow Redis cannot stall checks.
const writeTimeout = 2 * time.Second

// Config holds Redis connection configuration.
type Config struct {
	URL       string
	Password  string
	KeyPrefix string
	Capacity  int
}

// Redis writes samples to per-backend Redis lists.
type Redis struct {
	rdb      *redis.Client
	prefix   string
	capacity int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sink: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("sink: connect to redis: %w", err)
	}

	return newRedis(rdb, cfg.KeyPrefix, cfg.Capacity), nil
}

func newRedis(rdb *redis.Client, prefix string, capacity int) *Redis {
	if capacity <= 0 {
		capacity = history.DefaultCapacity
	}
	return &Redis{rdb: rdb, prefix: prefix, capacity: capacity}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) key(backend string) string {
	return fmt.Sprintf("%s:%s", r.prefix, backend)
}

// Write prepends s to its backend's list and trims the list to capacity.
func (r *Redis) Write(ctx context.Context, s history.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sink: marshal sample: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	key := r.key(s.Backend)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, int64(r.capacity-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("sink: write %s: %w", key, err)
	}
	return nil
}

// Load returns up to limit stored samples for backend, newest first.
// Entries that no longer decode are skipped.
func (r *Redis) Load(ctx context.Context, backend string, limit int) ([]history.Sample, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.rdb.LRange(ctx, r.key(backend), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("sink: load %s: %w", backend, err)
	}
	return decodeSamples(raw), nil
}

// Restore seeds store with the samples persisted for each backend, oldest
// first so ring order matches the original order.
func (r *Redis) Restore(ctx context.Context, store *history.Store, backends []string) error {
	for _, name := range backends {
		samples, err := r.Load(ctx, name, store.Capacity())
		if err != nil {
			return err
		}
		for i := len(samples) - 1; i >= 0; i-- {
			store.Append(samples[i])
		}
	}
	return nil
}

func decodeSamples(raw []string) []history.Sample {
	out := make([]history.Sample, 0, len(raw))
	for _, item := range raw {
		var s history.Sample
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}
