package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/modu-ai/moai-rank/internal/ports"
)

// maxTracked caps the counter map; expired windows are swept when it is full.
const maxTracked = 10000

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter. It is best effort only:
// each instance counts on its own.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{windows: make(map[string]*window), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, id string, limit int, span time.Duration) (ports.RateDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[id]
	if !ok || !now.Before(w.resetAt) {
		if len(m.windows) >= maxTracked {
			m.sweep(now)
		}
		w = &window{resetAt: now.Add(span)}
		m.windows[id] = w
	}
	w.count++

	if w.count <= limit {
		return ports.RateDecision{Allowed: true, Remaining: limit - w.count}, nil
	}
	return ports.RateDecision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
