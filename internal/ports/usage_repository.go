package ports

import (
	"context"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
)

// UsageRepository stores raw usage events and their daily aggregates.
type UsageRepository interface {
	// RecordSession inserts the event, folds it into the daily aggregate and
	// writes the audit entry in one transaction. It reports false without
	// writing anything when the session hash already exists.
	RecordSession(ctx context.Context, event *domain.UsageEvent, audit *domain.ActivityLog) (bool, error)
	// RecordSessions is the bulk form of RecordSession. It returns the set of
	// session hashes that were actually inserted.
	RecordSessions(ctx context.Context, events []*domain.UsageEvent, audit *domain.ActivityLog) (map[string]bool, error)
	// ExistingHashes returns which of the given session hashes are already stored.
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)

	SumByUser(ctx context.Context, window domain.Window) ([]domain.UsageTotals, error)
	ActiveDays(ctx context.Context, fromDate, toDate string) (map[string]int64, error)
	TotalsForUser(ctx context.Context, userID string) (domain.UsageTotals, error)
	GetDailyAggregate(ctx context.Context, userID, date string) (*domain.DailyAggregate, error)

	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteAggregatesBefore(ctx context.Context, beforeDate string) (int64, error)
}
