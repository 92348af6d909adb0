package cache

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/ports"
)

// Breaker guards a remote cache with a circuit breaker so a failing Redis
// stops costing a network round trip on every request.
type Breaker struct {
	next ports.Cache
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings returns the default breaker configuration for a named cache.
func BreakerSettings(name string, log *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("cache breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	}
}

func NewBreaker(next ports.Cache, settings gobreaker.Settings) *Breaker {
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

type hit struct {
	value []byte
	ok    bool
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, ok, err := b.next.Get(ctx, key)
		return hit{value: v, ok: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	h := res.(hit)
	return h.value, h.ok, nil
}

func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *Breaker) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.DeletePrefix(ctx, prefix)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
