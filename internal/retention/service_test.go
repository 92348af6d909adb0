package retention_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modu-ai/moai-rank/internal/adapters/sqldb"
	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ports/portsmock"
	"github.com/modu-ai/moai-rank/internal/retention"
	"github.com/modu-ai/moai-rank/internal/testutil"
)

var sweepAt = time.Date(2026, time.June, 15, 3, 0, 0, 0, time.UTC)

func TestSweep_Cutoffs(t *testing.T) {
	var usageBefore, activityBefore time.Time
	var aggregateBefore, rankBefore string
	var rankPeriod domain.Period

	usage := &portsmock.MockUsageRepository{
		DeleteBeforeFunc: func(_ context.Context, before time.Time) (int64, error) {
			usageBefore = before
			return 3, nil
		},
		DeleteAggregatesBeforeFunc: func(_ context.Context, date string) (int64, error) {
			aggregateBefore = date
			return 2, nil
		},
	}
	rankings := &portsmock.MockRankingRepository{
		DeletePeriodBeforeFunc: func(_ context.Context, p domain.Period, date string) (int64, error) {
			rankPeriod, rankBefore = p, date
			return 5, nil
		},
	}
	activities := &portsmock.MockActivityLogRepository{
		DeleteBeforeFunc: func(_ context.Context, before time.Time) (int64, error) {
			activityBefore = before
			return 7, nil
		},
	}

	svc := retention.NewService(usage, rankings, activities, nil, retention.Options{}).
		WithClock(func() time.Time { return sweepAt })
	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC), usageBefore)
	assert.Equal(t, "2026-03-17", aggregateBefore)
	assert.Equal(t, domain.PeriodDaily, rankPeriod)
	assert.Equal(t, "2026-05-16", rankBefore)
	assert.Equal(t, usageBefore, activityBefore)

	assert.Equal(t, int64(3), summary.UsageEvents)
	assert.Equal(t, int64(2), summary.DailyAggregates)
	assert.Equal(t, int64(5), summary.DailyRankings)
	assert.Equal(t, int64(7), summary.ActivityLogs)
}

func TestSweep_StopsOnError(t *testing.T) {
	called := false
	usage := &portsmock.MockUsageRepository{
		DeleteBeforeFunc: func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("disk I/O error")
		},
		DeleteAggregatesBeforeFunc: func(context.Context, string) (int64, error) {
			called = true
			return 0, nil
		},
	}
	svc := retention.NewService(usage, &portsmock.MockRankingRepository{}, &portsmock.MockActivityLogRepository{}, nil, retention.Options{})

	_, err := svc.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purging usage events")
	assert.False(t, called)
}

func TestSweep_Database(t *testing.T) {
	db := testutil.NewDB(t)
	repos := sqldb.NewRepositories(db)
	user := testutil.SeedUser(t, db, "alice", false)
	ctx := context.Background()

	for i, endedAt := range []time.Time{
		sweepAt.AddDate(0, 0, -120),
		sweepAt.AddDate(0, 0, -10),
	} {
		_, err := repos.Usage.RecordSession(ctx, &domain.UsageEvent{
			UserID:       user.ID,
			SessionHash:  []string{"old", "recent"}[i],
			EndedAt:      endedAt,
			InputTokens:  10,
			OutputTokens: 5,
		}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, repos.Rankings.Upsert(ctx, []domain.RankingEntry{
		{UserID: user.ID, PeriodType: domain.PeriodDaily, PeriodStart: "2026-04-01", RankPosition: 1, UpdatedAt: sweepAt},
		{UserID: user.ID, PeriodType: domain.PeriodDaily, PeriodStart: "2026-06-14", RankPosition: 1, UpdatedAt: sweepAt},
		{UserID: user.ID, PeriodType: domain.PeriodMonthly, PeriodStart: "2026-01-01", RankPosition: 1, UpdatedAt: sweepAt},
	}))

	require.NoError(t, repos.Activities.Create(ctx, &domain.ActivityLog{
		Action:       domain.ActionSessionCreated,
		ResourceType: "token_usage",
		CreatedAt:    sweepAt.AddDate(0, 0, -100),
	}))

	svc := retention.NewService(repos.Usage, repos.Rankings, repos.Activities, nil, retention.Options{}).
		WithClock(func() time.Time { return sweepAt })
	summary, err := svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.UsageEvents)
	assert.Equal(t, int64(1), summary.DailyAggregates)
	assert.Equal(t, int64(1), summary.DailyRankings)
	assert.Equal(t, int64(1), summary.ActivityLogs)

	totals, err := repos.Usage.TotalsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.SessionCount)

	monthly, err := repos.Rankings.GetForUser(ctx, user.ID, domain.PeriodMonthly, "2026-01-01")
	require.NoError(t, err)
	assert.NotNil(t, monthly, "non-daily rankings are kept")
}
