package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

type ActivityLogRepository struct {
	db *DB
}

func NewActivityLogRepository(db *DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ActivityLogRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	return insertActivityLog(ctx, r.db, r.db.DB, entry)
}

func (r *ActivityLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM activity_logs WHERE created_at < ?`), util.FormatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete activity logs: %w", err)
	}
	return res.RowsAffected()
}

func insertActivityLog(ctx context.Context, db *DB, ex execer, entry *domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := ex.ExecContext(ctx, db.Rebind(`
		INSERT INTO activity_logs (id, user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		entry.ID,
		util.NullStringPtr(entry.UserID),
		entry.Action,
		entry.ResourceType,
		util.NullStringPtr(entry.ResourceID),
		details,
		util.NullStringPtr(entry.IPAddress),
		util.FormatTimestamp(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}
