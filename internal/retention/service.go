// Package retention purges data older than the configured horizons.
package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ports"
)

type Options struct {
	UsageDays       int
	DailyRankDays   int
	ActivityLogDays int
}

func (o Options) withDefaults() Options {
	if o.UsageDays <= 0 {
		o.UsageDays = 90
	}
	if o.DailyRankDays <= 0 {
		o.DailyRankDays = 30
	}
	if o.ActivityLogDays <= 0 {
		o.ActivityLogDays = 90
	}
	return o
}

// Summary counts the rows removed by one sweep.
type Summary struct {
	RanAt              time.Time `json:"ranAt"`
	UsageEvents        int64     `json:"usageEvents"`
	DailyAggregates    int64     `json:"dailyAggregates"`
	DailyRankings      int64     `json:"dailyRankings"`
	ActivityLogs       int64     `json:"activityLogs"`
	UsageCutoff        string    `json:"usageCutoff"`
	DailyRankingCutoff string    `json:"dailyRankingCutoff"`
}

type Service struct {
	usage      ports.UsageRepository
	rankings   ports.RankingRepository
	activities ports.ActivityLogRepository
	log        *zap.Logger
	opts       Options
	now        func() time.Time
}

func NewService(usage ports.UsageRepository, rankings ports.RankingRepository, activities ports.ActivityLogRepository, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		usage:      usage,
		rankings:   rankings,
		activities: activities,
		log:        log,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sweep deletes expired usage, aggregates, daily rankings and audit entries.
// Cutoffs are aligned to the start of a UTC day. Weekly, monthly and all-time
// rankings are kept.
func (s *Service) Sweep(ctx context.Context) (*Summary, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	usageCutoff := today.AddDate(0, 0, -s.opts.UsageDays)
	rankCutoff := today.AddDate(0, 0, -s.opts.DailyRankDays)
	activityCutoff := today.AddDate(0, 0, -s.opts.ActivityLogDays)

	summary := &Summary{
		RanAt:              now,
		UsageCutoff:        usageCutoff.Format(domain.DateLayout),
		DailyRankingCutoff: rankCutoff.Format(domain.DateLayout),
	}

	var err error
	if summary.UsageEvents, err = s.usage.DeleteBefore(ctx, usageCutoff); err != nil {
		return nil, fmt.Errorf("purging usage events: %w", err)
	}
	if summary.DailyAggregates, err = s.usage.DeleteAggregatesBefore(ctx, summary.UsageCutoff); err != nil {
		return nil, fmt.Errorf("purging daily aggregates: %w", err)
	}
	if summary.DailyRankings, err = s.rankings.DeletePeriodBefore(ctx, domain.PeriodDaily, summary.DailyRankingCutoff); err != nil {
		return nil, fmt.Errorf("pruning daily rankings: %w", err)
	}
	if summary.ActivityLogs, err = s.activities.DeleteBefore(ctx, activityCutoff); err != nil {
		return nil, fmt.Errorf("purging activity logs: %w", err)
	}

	s.log.Info("retention sweep finished",
		zap.Int64("usage_events", summary.UsageEvents),
		zap.Int64("daily_aggregates", summary.DailyAggregates),
		zap.Int64("daily_rankings", summary.DailyRankings),
		zap.Int64("activity_logs", summary.ActivityLogs),
	)
	return summary, nil
}
