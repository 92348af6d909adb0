// Package ratelimit implements fixed-window request limiting.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modu-ai/moai-rank/internal/ports"
)

// Redis is a fixed-window limiter shared by every instance of the service.
type Redis struct {
	client    *redis.Client
	namespace string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = "moai-rank"
	}
	return &Redis{client: client, namespace: namespace}
}

func (l *Redis) key(id string, window time.Duration) string {
	return fmt.Sprintf("%s:rl:%s:%d", l.namespace, id, int(window.Seconds()))
}

func (l *Redis) Allow(ctx context.Context, id string, limit int, window time.Duration) (ports.RateDecision, error) {
	key := l.key(id, window)

	var incr *redis.IntCmd
	var ttlCmd *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttlCmd = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return ports.RateDecision{}, err
	}
	count := incr.Val()
	ttl := ttlCmd.Val()

	// A key without expiry is either new or left behind by a failed EXPIRE.
	if ttl < 0 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return ports.RateDecision{}, err
		}
		ttl = window
	}

	if int(count) <= limit {
		return ports.RateDecision{Allowed: true, Remaining: limit - int(count)}, nil
	}
	return ports.RateDecision{Allowed: false, RetryAfter: ttl}, nil
}
