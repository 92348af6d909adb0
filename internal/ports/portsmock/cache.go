package portsmock

import (
	"context"
	"sync"
	"time"

	"github.com/modu-ai/moai-rank/internal/ports"
)

// MockCache is a mock implementation of ports.Cache.
type MockCache struct {
	GetFunc          func(ctx context.Context, key string) ([]byte, bool, error)
	SetFunc          func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefixFunc func(ctx context.Context, prefix string) (int64, error)
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, false, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

func (m *MockCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if m.DeletePrefixFunc != nil {
		return m.DeletePrefixFunc(ctx, prefix)
	}
	return 0, nil
}

// MockRateLimiter is a mock implementation of ports.RateLimiter.
type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (ports.RateDecision, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ports.RateDecision, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return ports.RateDecision{Allowed: true, Remaining: limit - 1}, nil
}

// IngestCount is one RecordIngest call.
type IngestCount struct {
	Outcome string
	Count   int64
}

// RankingRun is one RecordRankingRun call.
type RankingRun struct {
	Period string
	Users  int
	Failed bool
}

// RecordingExporter is a ports.MetricsExporter that keeps every call.
type RecordingExporter struct {
	mu      sync.Mutex
	Ingests []IngestCount
	Runs    []RankingRun
	Hits    int
	Misses  int
}

func (r *RecordingExporter) RecordIngest(_ context.Context, outcome string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ingests = append(r.Ingests, IngestCount{Outcome: outcome, Count: count})
}

func (r *RecordingExporter) RecordRankingRun(_ context.Context, period string, users int, _ time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, RankingRun{Period: period, Users: users, Failed: failed})
}

func (r *RecordingExporter) RecordCacheLookup(_ context.Context, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.Hits++
	} else {
		r.Misses++
	}
}

func (r *RecordingExporter) Close(context.Context) error {
	return nil
}

// Total sums the recorded counts for outcome.
func (r *RecordingExporter) Total(outcome string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.Ingests {
		if c.Outcome == outcome {
			n += c.Count
		}
	}
	return n
}
