// Package ratelimit throttles the public intake endpoints.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyedRateLimiter reports whether a request of the given cost under key
// fits in the current window.
type KeyedRateLimiter interface {
	Check(ctx context.Context, key string, cost int) (bool, error)
}

// Redis is a fixed-window counter. Bursts up to max are possible at
// window boundaries.
type Redis struct {
	cli    *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedis(cli *redis.Client, max int, window time.Duration) *Redis {
	if window < time.Second {
		window = time.Second
	}
	return &Redis{
		cli:    cli,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

func (r *Redis) Check(ctx context.Context, key string, cost int) (bool, error) {
	if cost > r.max {
		return false, nil
	}

	sec := int64(r.window / time.Second)
	iv := r.now().Unix() / sec
	key = key + ":" + strconv.FormatInt(iv, 16)

	pipe := r.cli.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(cost))
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(r.max), nil
}
