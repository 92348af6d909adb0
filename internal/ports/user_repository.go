package ports

import (
	"context"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	UpdateAPIKey(ctx context.Context, id, hash, prefix string, at time.Time) error
	SetPrivacyMode(ctx context.Context, id string, enabled bool, at time.Time) error
}

type ActivityLogRepository interface {
	Create(ctx context.Context, entry *domain.ActivityLog) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
