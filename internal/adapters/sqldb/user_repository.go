package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

const userColumns = `id, username, display_name, avatar_url, privacy_mode, api_key_hash, api_key_prefix, user_salt, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		user.ID,
		user.Username,
		user.DisplayName,
		util.NullStringPtr(user.AvatarURL),
		util.BoolToInt64(user.PrivacyMode),
		user.APIKeyHash,
		user.APIKeyPrefix,
		user.UserSalt,
		util.FormatTimestamp(user.CreatedAt),
		util.FormatTimestamp(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetByAPIKeyHash resolves a credential. The hash column is unique so at most
// one user matches.
func (r *UserRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.User, error) {
	return WithRetry(ctx, DefaultRetries, func() (*domain.User, error) {
		return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE api_key_hash = ?`, hash)
	})
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) UpdateAPIKey(ctx context.Context, id, hash, prefix string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET api_key_hash = ?, api_key_prefix = ?, updated_at = ? WHERE id = ?
	`), hash, prefix, util.FormatTimestamp(at), id)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return expectOneRow(res)
}

func (r *UserRepository) SetPrivacyMode(ctx context.Context, id string, enabled bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET privacy_mode = ?, updated_at = ? WHERE id = ?
	`), util.BoolToInt64(enabled), util.FormatTimestamp(at), id)
	if err != nil {
		return fmt.Errorf("failed to update privacy mode: %w", err)
	}
	return expectOneRow(res)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(query), arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		u         domain.User
		avatar    sql.NullString
		privacy   int64
		createdAt string
		updatedAt string
	)
	if err := s.Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&avatar,
		&privacy,
		&u.APIKeyHash,
		&u.APIKeyPrefix,
		&u.UserSalt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	u.AvatarURL = util.NullStringToPtr(avatar)
	u.PrivacyMode = privacy != 0
	u.CreatedAt = util.TimestampOrZero(createdAt)
	u.UpdatedAt = util.TimestampOrZero(updatedAt)
	return &u, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
