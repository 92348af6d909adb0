package ports

import (
	"context"

	"github.com/modu-ai/moai-rank/internal/domain"
)

// RankingRepository stores computed ranking snapshots.
type RankingRepository interface {
	// Upsert writes entries keyed by (user, period, period start). Rows whose
	// values are unchanged are left untouched.
	Upsert(ctx context.Context, entries []domain.RankingEntry) error
	ListUserIDs(ctx context.Context, period domain.Period, periodStart string) ([]string, error)
	DeleteUsers(ctx context.Context, period domain.Period, periodStart string, userIDs []string) (int64, error)

	// ListPage returns ranked rows joined with users ordered by rank, plus the
	// total number of rows in the snapshot.
	ListPage(ctx context.Context, period domain.Period, periodStart string, limit, offset int) ([]domain.RankedUser, int64, error)
	ListAll(ctx context.Context, period domain.Period, periodStart string) ([]domain.RankingEntry, error)
	GetForUser(ctx context.Context, userID string, period domain.Period, periodStart string) (*domain.RankingEntry, error)
	Count(ctx context.Context, period domain.Period, periodStart string) (int64, error)

	DeletePeriodBefore(ctx context.Context, period domain.Period, beforeDate string) (int64, error)
}
