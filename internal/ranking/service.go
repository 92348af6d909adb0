// Package ranking recomputes the leaderboard snapshots for every period.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/leaderboard"
	"github.com/modu-ai/moai-rank/internal/ports"
)

const (
	DefaultBatchSize  = 100
	DefaultStreakDays = 30
	DefaultTimeout    = 5 * time.Minute
)

type Options struct {
	BatchSize  int
	StreakDays int
	Timeout    time.Duration
}

// PeriodResult reports one period of a run.
type PeriodResult struct {
	Period      domain.Period `json:"period"`
	PeriodStart string        `json:"periodStart"`
	Success     bool          `json:"success"`
	UsersRanked int           `json:"usersRanked"`
	Removed     int64         `json:"removed"`
	DurationMs  int64         `json:"durationMs"`
	Error       string        `json:"error,omitempty"`
}

// Summary reports a whole run. Results are always in daily, weekly,
// monthly, all_time order.
type Summary struct {
	RanAt     time.Time      `json:"ranAt"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []PeriodResult `json:"results"`
}

type Service struct {
	usage    ports.UsageRepository
	rankings ports.RankingRepository
	cache    ports.Cache
	metrics  ports.MetricsExporter
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewService(usage ports.UsageRepository, rankings ports.RankingRepository, cache ports.Cache, metrics ports.MetricsExporter, log *zap.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.StreakDays <= 0 {
		opts.StreakDays = DefaultStreakDays
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		usage:    usage,
		rankings: rankings,
		cache:    cache,
		metrics:  metrics,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run ranks every period. A failing period is reported in the summary and
// does not stop the others.
func (s *Service) Run(ctx context.Context) *Summary {
	return s.RunPeriods(ctx, domain.Periods)
}

// RunPeriods ranks the given periods concurrently.
func (s *Service) RunPeriods(ctx context.Context, periods []domain.Period) *Summary {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	now := s.now().UTC()
	summary := &Summary{RanAt: now, Results: make([]PeriodResult, len(periods))}

	from, to := domain.StreakWindow(now, s.opts.StreakDays)
	streaks, streakErr := s.usage.ActiveDays(ctx, from, to)

	var g errgroup.Group
	for i, p := range periods {
		g.Go(func() error {
			if streakErr != nil {
				w := domain.WindowFor(p, now)
				summary.Results[i] = PeriodResult{
					Period:      p,
					PeriodStart: w.StartDate(),
					Error:       fmt.Sprintf("loading activity streaks: %v", streakErr),
				}
				s.metrics.RecordRankingRun(ctx, string(p), 0, 0, true)
				return nil
			}
			summary.Results[i] = s.runPeriod(ctx, p, now, streaks)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range summary.Results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
			s.log.Error("ranking period failed",
				zap.String("period", string(r.Period)),
				zap.String("period_start", r.PeriodStart),
				zap.String("error", r.Error),
			)
		}
	}

	s.log.Info("ranking run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (s *Service) runPeriod(ctx context.Context, p domain.Period, now time.Time, streaks map[string]int64) PeriodResult {
	started := time.Now()
	w := domain.WindowFor(p, now)
	result := PeriodResult{Period: p, PeriodStart: w.StartDate()}

	ranked, removed, err := s.rank(ctx, w, now, streaks)
	result.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		s.metrics.RecordRankingRun(ctx, string(p), 0, time.Since(started), true)
		return result
	}

	result.Success = true
	result.UsersRanked = ranked
	result.Removed = removed
	s.metrics.RecordRankingRun(ctx, string(p), ranked, time.Since(started), false)

	if s.cache != nil {
		if _, err := s.cache.DeletePrefix(ctx, leaderboard.CachePrefix(p)); err != nil {
			s.log.Warn("leaderboard cache invalidation failed",
				zap.String("period", string(p)),
				zap.Error(err),
			)
		}
	}

	s.log.Info("ranking period computed",
		zap.String("period", string(p)),
		zap.String("period_start", result.PeriodStart),
		zap.Int("users", ranked),
		zap.Int64("removed", removed),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result
}

func (s *Service) rank(ctx context.Context, w domain.Window, now time.Time, streaks map[string]int64) (int, int64, error) {
	totals, err := s.usage.SumByUser(ctx, w)
	if err != nil {
		return 0, 0, fmt.Errorf("summing usage: %w", err)
	}

	entries := BuildEntries(w, totals, streaks, now)

	for start := 0; start < len(entries); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(entries))
		if err := s.rankings.Upsert(ctx, entries[start:end]); err != nil {
			return 0, 0, fmt.Errorf("upserting rankings %d-%d: %w", start+1, end, err)
		}
	}

	existing, err := s.rankings.ListUserIDs(ctx, w.Period, w.StartDate())
	if err != nil {
		return 0, 0, fmt.Errorf("listing ranked users: %w", err)
	}
	current := make(map[string]bool, len(entries))
	for _, e := range entries {
		current[e.UserID] = true
	}
	var stale []string
	for _, id := range existing {
		if !current[id] {
			stale = append(stale, id)
		}
	}

	var removed int64
	if len(stale) > 0 {
		removed, err = s.rankings.DeleteUsers(ctx, w.Period, w.StartDate(), stale)
		if err != nil {
			return 0, 0, fmt.Errorf("removing stale rankings: %w", err)
		}
	}
	return len(entries), removed, nil
}

// BuildEntries scores totals and assigns dense ranks. Ties on composite score
// are broken by user id ascending so identical input always ranks identically.
func BuildEntries(w domain.Window, totals []domain.UsageTotals, streaks map[string]int64, now time.Time) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(totals))
	for _, t := range totals {
		if t.InputTokens <= 0 {
			continue
		}
		entries = append(entries, domain.RankingEntry{
			UserID:          t.UserID,
			PeriodType:      w.Period,
			PeriodStart:     w.StartDate(),
			TotalTokens:     t.TotalTokens(),
			CompositeScore:  domain.CompositeScore(t.InputTokens, t.OutputTokens, t.SessionCount, streaks[t.UserID]),
			SessionCount:    t.SessionCount,
			EfficiencyScore: domain.EfficiencyScore(t.InputTokens, t.OutputTokens),
			UpdatedAt:       now,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CompositeScore != entries[j].CompositeScore {
			return entries[i].CompositeScore > entries[j].CompositeScore
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].RankPosition = int64(i + 1)
	}
	return entries
}
