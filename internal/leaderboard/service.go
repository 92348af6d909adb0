// Package leaderboard serves ranking snapshots with caching and privacy redaction.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ports"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
	// EmptyTTL applies to empty pages so a ranking run shortly after shows up promptly.
	EmptyTTL = 3 * time.Minute
	// LoadTimeout bounds a shared store load, which outlives the caller that started it.
	LoadTimeout = 10 * time.Second
)

// TTL returns how long a non-empty page of period stays cached.
func TTL(p domain.Period) time.Duration {
	switch p {
	case domain.PeriodMonthly:
		return 3 * time.Hour
	case domain.PeriodAllTime:
		return 6 * time.Hour
	default:
		return time.Hour
	}
}

// CachePrefix is shared by every cached page of period.
func CachePrefix(p domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:", p)
}

// CacheKey identifies one cached page.
func CacheKey(p domain.Period, periodStart string, limit, offset int) string {
	return fmt.Sprintf("%s%s:%d:%d", CachePrefix(p), periodStart, limit, offset)
}

type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

// Page is one leaderboard page with redaction already applied.
type Page struct {
	Period      domain.Period             `json:"period"`
	PeriodStart string                    `json:"periodStart"`
	Entries     []domain.LeaderboardEntry `json:"entries"`
	Pagination  Pagination                `json:"pagination"`
}

type Service struct {
	rankings ports.RankingRepository
	usage    ports.UsageRepository
	cache    ports.Cache
	metrics  ports.MetricsExporter
	log      *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

func NewService(rankings ports.RankingRepository, usage ports.UsageRepository, cache ports.Cache, metrics ports.MetricsExporter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rankings: rankings,
		usage:    usage,
		cache:    cache,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns one page of period. Cache failures never fail the call.
func (s *Service) Get(ctx context.Context, period domain.Period, limit, offset int) (*Page, error) {
	fields := map[string]string{}
	if limit < 1 || limit > MaxLimit {
		fields["limit"] = fmt.Sprintf("must be between 1 and %d", MaxLimit)
	}
	if offset < 0 {
		fields["offset"] = "must not be negative"
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError("Invalid query parameters", fields)
	}

	w := domain.WindowFor(period, s.now())
	key := CacheKey(period, w.StartDate(), limit, offset)

	if page, ok := s.fromCache(ctx, key); ok {
		return page, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// Callers waiting on the same key must not fail when the first one goes away.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()

		page, err := s.load(loadCtx, w, limit, offset)
		if err != nil {
			return nil, err
		}
		s.store(loadCtx, key, page)
		return page, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	}
}

func (s *Service) fromCache(ctx context.Context, key string) (*Page, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		s.metrics.RecordCacheLookup(ctx, false)
		return nil, false
	}
	if !ok {
		s.metrics.RecordCacheLookup(ctx, false)
		return nil, false
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		s.log.Warn("discarding undecodable leaderboard cache entry", zap.String("key", key), zap.Error(err))
		s.metrics.RecordCacheLookup(ctx, false)
		return nil, false
	}
	s.metrics.RecordCacheLookup(ctx, true)
	return &page, true
}

func (s *Service) store(ctx context.Context, key string, page *Page) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		s.log.Warn("failed to encode leaderboard page", zap.Error(err))
		return
	}
	ttl := TTL(page.Period)
	if len(page.Entries) == 0 {
		ttl = EmptyTTL
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		s.log.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, w domain.Window, limit, offset int) (*Page, error) {
	rows, total, err := s.rankings.ListPage(ctx, w.Period, w.StartDate(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.Redact()
	}
	return &Page{
		Period:      w.Period,
		PeriodStart: w.StartDate(),
		Entries:     entries,
		Pagination: Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: int64(offset+len(entries)) < total,
		},
	}, nil
}

// PeriodRank is a user's position in one period, nil Rank when unranked.
type PeriodRank struct {
	Period            domain.Period `json:"period"`
	PeriodStart       string        `json:"periodStart"`
	Rank              *int64        `json:"rank"`
	TotalParticipants int64         `json:"totalParticipants"`
	CompositeScore    float64       `json:"compositeScore"`
	TotalTokens       int64         `json:"totalTokens"`
	SessionCount      int64         `json:"sessionCount"`
	EfficiencyScore   float64       `json:"efficiencyScore"`
}

// UserTotals is a user's stored usage across all retained sessions.
type UserTotals struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
	SessionCount int64 `json:"sessionCount"`
}

// UserRanks is the caller's own view, never redacted.
type UserRanks struct {
	UserID      string       `json:"userId"`
	Username    string       `json:"username"`
	PrivacyMode bool         `json:"privacyMode"`
	Rankings    []PeriodRank `json:"rankings"`
	Totals      UserTotals   `json:"totals"`
}

// ForUser returns user's rank in every period plus their totals.
func (s *Service) ForUser(ctx context.Context, user *domain.User) (*UserRanks, error) {
	now := s.now()
	out := &UserRanks{
		UserID:      user.ID,
		Username:    user.Username,
		PrivacyMode: user.PrivacyMode,
		Rankings:    make([]PeriodRank, 0, len(domain.Periods)),
	}

	for _, p := range domain.Periods {
		w := domain.WindowFor(p, now)
		pr := PeriodRank{Period: p, PeriodStart: w.StartDate()}

		entry, err := s.rankings.GetForUser(ctx, user.ID, p, w.StartDate())
		if err != nil {
			return nil, fmt.Errorf("loading %s rank: %w", p, err)
		}
		total, err := s.rankings.Count(ctx, p, w.StartDate())
		if err != nil {
			return nil, fmt.Errorf("counting %s rankings: %w", p, err)
		}
		pr.TotalParticipants = total
		if entry != nil {
			rank := entry.RankPosition
			pr.Rank = &rank
			pr.CompositeScore = entry.CompositeScore
			pr.TotalTokens = entry.TotalTokens
			pr.SessionCount = entry.SessionCount
			pr.EfficiencyScore = entry.EfficiencyScore
		}
		out.Rankings = append(out.Rankings, pr)
	}

	totals, err := s.usage.TotalsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading totals: %w", err)
	}
	out.Totals = UserTotals{
		InputTokens:  totals.InputTokens,
		OutputTokens: totals.OutputTokens,
		TotalTokens:  totals.TotalTokens(),
		SessionCount: totals.SessionCount,
	}
	return out, nil
}
