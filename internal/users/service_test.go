package users_test

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
	"github.com/modu-ai/moai-rank/internal/testutil"
	"github.com/modu-ai/moai-rank/internal/users"
)

var fixed = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*users.Service, *sqldb.Repositories) {
	t.Helper()
	repos := sqldb.NewRepositories(testutil.NewDB(t))
	svc := users.NewService(repos.Users, repos.Activities, nil).WithClock(func() time.Time { return fixed })
	return svc, repos
}

func TestCreate(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, "alice", "")
	require.NoError(t, err)

	assert.True(t, domain.LooksLikeAPIKey(creds.APIKey))
	assert.Len(t, creds.APIKey, len(domain.APIKeyPrefix)+48)
	assert.Equal(t, "alice", creds.User.DisplayName)
	assert.Len(t, creds.User.UserSalt, 64)
	assert.Equal(t, creds.APIKey[:18], creds.User.APIKeyPrefix)

	stored, err := repos.Users.GetByAPIKeyHash(ctx, domain.HashAPIKey(creds.APIKey))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, creds.User.ID, stored.ID)
	assert.NotEqual(t, creds.APIKey, stored.APIKeyHash)

	_, err = svc.Create(ctx, "alice", "Alice Again")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")
}

func TestCreate_RejectsBadUsernames(t *testing.T) {
	svc := users.NewService(&portsmock.MockUserRepository{}, &portsmock.MockActivityLogRepository{}, nil)

	for _, name := range []string{"", "-leading", "trailing_", "has space", "a/b"} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), name, "")
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreate_AuditFailureIsNotFatal(t *testing.T) {
	activities := &portsmock.MockActivityLogRepository{
		CreateFunc: func(context.Context, *domain.ActivityLog) error {
			return errors.New("disk full")
		},
	}
	svc := users.NewService(&portsmock.MockUserRepository{}, activities, nil)

	creds, err := svc.Create(context.Background(), "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", creds.User.DisplayName)
}

func TestRotateKey(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "alice", "Alice")
	require.NoError(t, err)
	second, err := svc.RotateKey(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.APIKey, second.APIKey)

	old, err := repos.Users.GetByAPIKeyHash(ctx, domain.HashAPIKey(first.APIKey))
	require.NoError(t, err)
	assert.Nil(t, old, "the previous key no longer authenticates")

	current, err := repos.Users.GetByAPIKeyHash(ctx, domain.HashAPIKey(second.APIKey))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, first.User.UserSalt, current.UserSalt, "rotation keeps the fingerprint salt")

	_, err = svc.RotateKey(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetPrivacy(t *testing.T) {
	svc, repos := newService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, "alice", "Alice")
	require.NoError(t, err)

	user, err := svc.SetPrivacy(ctx, creds.User.ID, true)
	require.NoError(t, err)
	assert.True(t, user.PrivacyMode)

	stored, err := repos.Users.GetByID(ctx, creds.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.PrivacyMode)

	shown, err := svc.Show(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, creds.User.ID, shown.ID)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
