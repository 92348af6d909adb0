package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/ports"
)

// Fallback consults primary and switches to secondary for any call where
// primary fails.
type Fallback struct {
	primary   ports.RateLimiter
	secondary ports.RateLimiter
	log       *zap.Logger
}

func NewFallback(primary, secondary ports.RateLimiter, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Allow(ctx context.Context, id string, limit int, window time.Duration) (ports.RateDecision, error) {
	decision, err := f.primary.Allow(ctx, id, limit, window)
	if err == nil {
		return decision, nil
	}
	f.log.Warn("rate limiter unavailable, using in-memory fallback", zap.Error(err))
	return f.secondary.Allow(ctx, id, limit, window)
}
