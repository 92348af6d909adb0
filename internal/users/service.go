// Package users provisions leaderboard participants and their API credentials.
package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ports"
)

const (
	apiKeyRandomBytes = 24
	saltBytes         = 32
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_-]{0,37}[A-Za-z0-9])?$`)

// Credentials is returned when a key is issued. The plaintext key is only
// available here; the store keeps its hash.
type Credentials struct {
	User   *domain.User
	APIKey string
}

type Service struct {
	users      ports.UserRepository
	activities ports.ActivityLogRepository
	log        *zap.Logger
	now        func() time.Time
}

func NewService(users ports.UserRepository, activities ports.ActivityLogRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:      users,
		activities: activities,
		log:        log,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create registers a user and issues their first API key.
func (s *Service) Create(ctx context.Context, username, displayName string) (*Credentials, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, domain.NewValidationError("Invalid username", map[string]string{
			"username": "must be 1-39 letters, digits, '-' or '_' and start and end with a letter or digit",
		})
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > 100 {
		return nil, domain.NewValidationError("Invalid display name", map[string]string{
			"displayName": "must be at most 100 characters",
		})
	}
	if displayName == "" {
		displayName = username
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if existing != nil {
		return nil, domain.NewValidationError("Username already taken", map[string]string{
			"username": "already exists",
		})
	}

	key, err := s.newAPIKey()
	if err != nil {
		return nil, err
	}
	salt, err := s.randomHex(saltBytes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		APIKeyHash:   domain.HashAPIKey(key),
		APIKeyPrefix: domain.DisplayPrefix(key),
		UserSalt:     salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit(ctx, user.ID, domain.ActionAPIKeyGenerated, map[string]any{"prefix": user.APIKeyPrefix}, now)
	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("username", username))
	return &Credentials{User: user, APIKey: key}, nil
}

// RotateKey replaces a user's API key. The previous key stops working
// immediately.
func (s *Service) RotateKey(ctx context.Context, id string) (*Credentials, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	key, err := s.newAPIKey()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	previous := user.APIKeyPrefix
	if err := s.users.UpdateAPIKey(ctx, user.ID, domain.HashAPIKey(key), domain.DisplayPrefix(key), now); err != nil {
		return nil, err
	}
	user.APIKeyHash = domain.HashAPIKey(key)
	user.APIKeyPrefix = domain.DisplayPrefix(key)
	user.UpdatedAt = now

	s.audit(ctx, user.ID, domain.ActionAPIKeyRotated, map[string]any{
		"previousPrefix": previous,
		"prefix":         user.APIKeyPrefix,
	}, now)
	s.log.Info("api key rotated", zap.String("user_id", user.ID))
	return &Credentials{User: user, APIKey: key}, nil
}

// SetPrivacy toggles whether the user appears anonymized on the leaderboard.
// The change shows up on the public board once cached pages expire.
func (s *Service) SetPrivacy(ctx context.Context, id string, enabled bool) (*domain.User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.PrivacyMode == enabled {
		return user, nil
	}

	now := s.now().UTC()
	if err := s.users.SetPrivacyMode(ctx, user.ID, enabled, now); err != nil {
		return nil, err
	}
	user.PrivacyMode = enabled
	user.UpdatedAt = now

	s.audit(ctx, user.ID, domain.ActionPrivacyChanged, map[string]any{"privacyMode": enabled}, now)
	return user, nil
}

// Show looks a user up by id or, failing that, by username.
func (s *Service) Show(ctx context.Context, idOrUsername string) (*domain.User, error) {
	return s.lookup(ctx, idOrUsername)
}

func (s *Service) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

func (s *Service) lookup(ctx context.Context, idOrUsername string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, idOrUsername)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if user, err = s.users.GetByUsername(ctx, idOrUsername); err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", idOrUsername, domain.ErrNotFound)
	}
	return user, nil
}

func (s *Service) newAPIKey() (string, error) {
	suffix, err := s.randomHex(apiKeyRandomBytes)
	if err != nil {
		return "", err
	}
	return domain.APIKeyPrefix + suffix, nil
}

func (s *Service) randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// audit failures are logged and never undo the change they describe.
func (s *Service) audit(ctx context.Context, userID, action string, details map[string]any, at time.Time) {
	id := userID
	entry := &domain.ActivityLog{
		UserID:       &id,
		Action:       action,
		ResourceType: "user",
		ResourceID:   &id,
		Details:      details,
		CreatedAt:    at,
	}
	if err := s.activities.Create(ctx, entry); err != nil {
		s.log.Warn("failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}
