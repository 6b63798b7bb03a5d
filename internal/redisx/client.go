package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper remembers processed ids for a while so redelivered events are
// skipped.
type Deduper struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{Redis: rdb, TTL: TTLDedup}
}

// Claim marks key as processed. It reports false when the key was already
// claimed.
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.Redis.SetNX(ctx, key, "1", d.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release forgets key so the consumer's retry of the same message is
// processed again.
func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.Redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}
