// Package portsmock provides function-field mocks of the port interfaces for tests.
package portsmock

import (
	"context"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
)

// MockUserRepository is a mock implementation of ports.UserRepository.
type MockUserRepository struct {
	CreateFunc          func(ctx context.Context, user *domain.User) error
	GetByIDFunc         func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc   func(ctx context.Context, username string) (*domain.User, error)
	GetByAPIKeyHashFunc func(ctx context.Context, hash string) (*domain.User, error)
	ListFunc            func(ctx context.Context) ([]*domain.User, error)
	UpdateAPIKeyFunc    func(ctx context.Context, id, hash, prefix string, at time.Time) error
	SetPrivacyModeFunc  func(ctx context.Context, id string, enabled bool, at time.Time) error
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, nil
}

func (m *MockUserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.User, error) {
	if m.GetByAPIKeyHashFunc != nil {
		return m.GetByAPIKeyHashFunc(ctx, hash)
	}
	return nil, nil
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []*domain.User{}, nil
}

func (m *MockUserRepository) UpdateAPIKey(ctx context.Context, id, hash, prefix string, at time.Time) error {
	if m.UpdateAPIKeyFunc != nil {
		return m.UpdateAPIKeyFunc(ctx, id, hash, prefix, at)
	}
	return nil
}

func (m *MockUserRepository) SetPrivacyMode(ctx context.Context, id string, enabled bool, at time.Time) error {
	if m.SetPrivacyModeFunc != nil {
		return m.SetPrivacyModeFunc(ctx, id, enabled, at)
	}
	return nil
}

// MockActivityLogRepository is a mock implementation of ports.ActivityLogRepository.
type MockActivityLogRepository struct {
	CreateFunc       func(ctx context.Context, entry *domain.ActivityLog) error
	DeleteBeforeFunc func(ctx context.Context, before time.Time) (int64, error)
}

func (m *MockActivityLogRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

func (m *MockActivityLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if m.DeleteBeforeFunc != nil {
		return m.DeleteBeforeFunc(ctx, before)
	}
	return 0, nil
}

// MockUsageRepository is a mock implementation of ports.UsageRepository.
type MockUsageRepository struct {
	RecordSessionFunc          func(ctx context.Context, event *domain.UsageEvent, audit *domain.ActivityLog) (bool, error)
	RecordSessionsFunc         func(ctx context.Context, events []*domain.UsageEvent, audit *domain.ActivityLog) (map[string]bool, error)
	ExistingHashesFunc         func(ctx context.Context, hashes []string) (map[string]bool, error)
	SumByUserFunc              func(ctx context.Context, window domain.Window) ([]domain.UsageTotals, error)
	ActiveDaysFunc             func(ctx context.Context, fromDate, toDate string) (map[string]int64, error)
	TotalsForUserFunc          func(ctx context.Context, userID string) (domain.UsageTotals, error)
	GetDailyAggregateFunc      func(ctx context.Context, userID, date string) (*domain.DailyAggregate, error)
	DeleteBeforeFunc           func(ctx context.Context, before time.Time) (int64, error)
	DeleteAggregatesBeforeFunc func(ctx context.Context, beforeDate string) (int64, error)
}

func (m *MockUsageRepository) RecordSession(ctx context.Context, event *domain.UsageEvent, audit *domain.ActivityLog) (bool, error) {
	if m.RecordSessionFunc != nil {
		return m.RecordSessionFunc(ctx, event, audit)
	}
	return true, nil
}

func (m *MockUsageRepository) RecordSessions(ctx context.Context, events []*domain.UsageEvent, audit *domain.ActivityLog) (map[string]bool, error) {
	if m.RecordSessionsFunc != nil {
		return m.RecordSessionsFunc(ctx, events, audit)
	}
	inserted := make(map[string]bool, len(events))
	for _, e := range events {
		inserted[e.SessionHash] = true
	}
	return inserted, nil
}

func (m *MockUsageRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	if m.ExistingHashesFunc != nil {
		return m.ExistingHashesFunc(ctx, hashes)
	}
	return map[string]bool{}, nil
}

func (m *MockUsageRepository) SumByUser(ctx context.Context, window domain.Window) ([]domain.UsageTotals, error) {
	if m.SumByUserFunc != nil {
		return m.SumByUserFunc(ctx, window)
	}
	return []domain.UsageTotals{}, nil
}

func (m *MockUsageRepository) ActiveDays(ctx context.Context, fromDate, toDate string) (map[string]int64, error) {
	if m.ActiveDaysFunc != nil {
		return m.ActiveDaysFunc(ctx, fromDate, toDate)
	}
	return map[string]int64{}, nil
}

func (m *MockUsageRepository) TotalsForUser(ctx context.Context, userID string) (domain.UsageTotals, error) {
	if m.TotalsForUserFunc != nil {
		return m.TotalsForUserFunc(ctx, userID)
	}
	return domain.UsageTotals{UserID: userID}, nil
}

func (m *MockUsageRepository) GetDailyAggregate(ctx context.Context, userID, date string) (*domain.DailyAggregate, error) {
	if m.GetDailyAggregateFunc != nil {
		return m.GetDailyAggregateFunc(ctx, userID, date)
	}
	return nil, nil
}

func (m *MockUsageRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if m.DeleteBeforeFunc != nil {
		return m.DeleteBeforeFunc(ctx, before)
	}
	return 0, nil
}

func (m *MockUsageRepository) DeleteAggregatesBefore(ctx context.Context, beforeDate string) (int64, error) {
	if m.DeleteAggregatesBeforeFunc != nil {
		return m.DeleteAggregatesBeforeFunc(ctx, beforeDate)
	}
	return 0, nil
}

// MockRankingRepository is a mock implementation of ports.RankingRepository.
type MockRankingRepository struct {
	UpsertFunc             func(ctx context.Context, entries []domain.RankingEntry) error
	ListUserIDsFunc        func(ctx context.Context, period domain.Period, periodStart string) ([]string, error)
	DeleteUsersFunc        func(ctx context.Context, period domain.Period, periodStart string, userIDs []string) (int64, error)
	ListPageFunc           func(ctx context.Context, period domain.Period, periodStart string, limit, offset int) ([]domain.RankedUser, int64, error)
	ListAllFunc            func(ctx context.Context, period domain.Period, periodStart string) ([]domain.RankingEntry, error)
	GetForUserFunc         func(ctx context.Context, userID string, period domain.Period, periodStart string) (*domain.RankingEntry, error)
	CountFunc              func(ctx context.Context, period domain.Period, periodStart string) (int64, error)
	DeletePeriodBeforeFunc func(ctx context.Context, period domain.Period, beforeDate string) (int64, error)
}

func (m *MockRankingRepository) Upsert(ctx context.Context, entries []domain.RankingEntry) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, entries)
	}
	return nil
}

func (m *MockRankingRepository) ListUserIDs(ctx context.Context, period domain.Period, periodStart string) ([]string, error) {
	if m.ListUserIDsFunc != nil {
		return m.ListUserIDsFunc(ctx, period, periodStart)
	}
	return []string{}, nil
}

func (m *MockRankingRepository) DeleteUsers(ctx context.Context, period domain.Period, periodStart string, userIDs []string) (int64, error) {
	if m.DeleteUsersFunc != nil {
		return m.DeleteUsersFunc(ctx, period, periodStart, userIDs)
	}
	return int64(len(userIDs)), nil
}

func (m *MockRankingRepository) ListPage(ctx context.Context, period domain.Period, periodStart string, limit, offset int) ([]domain.RankedUser, int64, error) {
	if m.ListPageFunc != nil {
		return m.ListPageFunc(ctx, period, periodStart, limit, offset)
	}
	return []domain.RankedUser{}, 0, nil
}

func (m *MockRankingRepository) ListAll(ctx context.Context, period domain.Period, periodStart string) ([]domain.RankingEntry, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx, period, periodStart)
	}
	return []domain.RankingEntry{}, nil
}

func (m *MockRankingRepository) GetForUser(ctx context.Context, userID string, period domain.Period, periodStart string) (*domain.RankingEntry, error) {
	if m.GetForUserFunc != nil {
		return m.GetForUserFunc(ctx, userID, period, periodStart)
	}
	return nil, nil
}

func (m *MockRankingRepository) Count(ctx context.Context, period domain.Period, periodStart string) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, period, periodStart)
	}
	return 0, nil
}

func (m *MockRankingRepository) DeletePeriodBefore(ctx context.Context, period domain.Period, beforeDate string) (int64, error) {
	if m.DeletePeriodBeforeFunc != nil {
		return m.DeletePeriodBeforeFunc(ctx, period, beforeDate)
	}
	return 0, nil
}
