package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

const rankingColumns = `r.id, r.user_id, r.period_type, r.period_start, r.rank_position, r.total_tokens,
	r.composite_score, r.session_count, r.efficiency_score, r.updated_at`

type RankingRepository struct {
	db *DB
}

func NewRankingRepository(db *DB) *RankingRepository {
	return &RankingRepository{db: db}
}

// Upsert writes one chunk of entries in a single transaction. The conditional
// update leaves a row byte-identical when nothing about it changed.
func (r *RankingRepository) Upsert(ctx context.Context, entries []domain.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := r.db.Rebind(`
		INSERT INTO rankings (
			id, user_id, period_type, period_start, rank_position, total_tokens,
			composite_score, session_count, efficiency_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, period_type, period_start) DO UPDATE SET
			rank_position = excluded.rank_position,
			total_tokens = excluded.total_tokens,
			composite_score = excluded.composite_score,
			session_count = excluded.session_count,
			efficiency_score = excluded.efficiency_score,
			updated_at = excluded.updated_at
		WHERE rankings.rank_position <> excluded.rank_position
			OR rankings.total_tokens <> excluded.total_tokens
			OR rankings.composite_score <> excluded.composite_score
			OR rankings.session_count <> excluded.session_count
			OR rankings.efficiency_score <> excluded.efficiency_score
	`)

	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		for i := range entries {
			e := &entries[i]
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, query,
				e.ID,
				e.UserID,
				string(e.PeriodType),
				e.PeriodStart,
				e.RankPosition,
				e.TotalTokens,
				e.CompositeScore,
				e.SessionCount,
				e.EfficiencyScore,
				util.FormatTimestamp(e.UpdatedAt),
			); err != nil {
				return fmt.Errorf("failed to upsert ranking for user %s: %w", e.UserID, err)
			}
		}
		return nil
	})
}

func (r *RankingRepository) ListUserIDs(ctx context.Context, period domain.Period, periodStart string) ([]string, error) {
	return WithRetry(ctx, DefaultRetries, func() ([]string, error) {
		rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
			SELECT user_id FROM rankings WHERE period_type = ? AND period_start = ? ORDER BY user_id
		`), string(period), periodStart)
		if err != nil {
			return nil, fmt.Errorf("failed to list ranked users: %w", err)
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
}

func (r *RankingRepository) DeleteUsers(ctx context.Context, period domain.Period, periodStart string, userIDs []string) (int64, error) {
	var total int64
	for start := 0; start < len(userIDs); start += hashLookupChunk {
		end := min(start+hashLookupChunk, len(userIDs))
		chunk := userIDs[start:end]

		args := []any{string(period), periodStart}
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := r.db.ExecContext(ctx, r.db.Rebind(`
			DELETE FROM rankings WHERE period_type = ? AND period_start = ? AND user_id IN (`+Placeholders(len(chunk))+`)
		`), args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete stale rankings: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *RankingRepository) ListPage(ctx context.Context, period domain.Period, periodStart string, limit, offset int) ([]domain.RankedUser, int64, error) {
	type page struct {
		rows  []domain.RankedUser
		total int64
	}

	p, err := WithRetry(ctx, DefaultRetries, func() (page, error) {
		rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
			SELECT `+rankingColumns+`,
				u.username, u.display_name, u.avatar_url, u.privacy_mode,
				COUNT(*) OVER () AS total
			FROM rankings r
			JOIN users u ON u.id = r.user_id
			WHERE r.period_type = ? AND r.period_start = ?
			ORDER BY r.rank_position
			LIMIT ? OFFSET ?
		`), string(period), periodStart, limit, offset)
		if err != nil {
			return page{}, fmt.Errorf("failed to list rankings: %w", err)
		}
		defer rows.Close()

		var out page
		for rows.Next() {
			var (
				ru      domain.RankedUser
				avatar  sql.NullString
				privacy int64
			)
			dest, finish := rankingDest(&ru.RankingEntry)
			dest = append(dest, &ru.Username, &ru.DisplayName, &avatar, &privacy, &out.total)
			if err := rows.Scan(dest...); err != nil {
				return page{}, fmt.Errorf("failed to scan ranking: %w", err)
			}
			finish()
			ru.AvatarURL = util.NullStringToPtr(avatar)
			ru.PrivacyMode = privacy != 0
			out.rows = append(out.rows, ru)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	// An offset past the end yields no rows and so no windowed count.
	if len(p.rows) == 0 && offset > 0 {
		total, err := r.Count(ctx, period, periodStart)
		if err != nil {
			return nil, 0, err
		}
		return nil, total, nil
	}
	return p.rows, p.total, nil
}

func (r *RankingRepository) ListAll(ctx context.Context, period domain.Period, periodStart string) ([]domain.RankingEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+rankingColumns+` FROM rankings r
		WHERE r.period_type = ? AND r.period_start = ?
		ORDER BY r.rank_position
	`), string(period), periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankings: %w", err)
	}
	defer rows.Close()

	var entries []domain.RankingEntry
	for rows.Next() {
		var e domain.RankingEntry
		dest, finish := rankingDest(&e)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		finish()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *RankingRepository) GetForUser(ctx context.Context, userID string, period domain.Period, periodStart string) (*domain.RankingEntry, error) {
	var e domain.RankingEntry
	dest, finish := rankingDest(&e)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+rankingColumns+` FROM rankings r
		WHERE r.user_id = ? AND r.period_type = ? AND r.period_start = ?
	`), userID, string(period), periodStart).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}
	finish()
	return &e, nil
}

func (r *RankingRepository) Count(ctx context.Context, period domain.Period, periodStart string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(*) FROM rankings WHERE period_type = ? AND period_start = ?
	`), string(period), periodStart).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rankings: %w", err)
	}
	return n, nil
}

func (r *RankingRepository) DeletePeriodBefore(ctx context.Context, period domain.Period, beforeDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM rankings WHERE period_type = ? AND period_start < ?
	`), string(period), beforeDate)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rankings: %w", err)
	}
	return res.RowsAffected()
}

// rankingDest returns scan targets for rankingColumns and a func that copies
// the text columns into e once Scan has succeeded.
func rankingDest(e *domain.RankingEntry) ([]any, func()) {
	var period, updatedAt string
	dest := []any{
		&e.ID,
		&e.UserID,
		&period,
		&e.PeriodStart,
		&e.RankPosition,
		&e.TotalTokens,
		&e.CompositeScore,
		&e.SessionCount,
		&e.EfficiencyScore,
		&updatedAt,
	}
	return dest, func() {
		e.PeriodType = domain.Period(period)
		e.UpdatedAt = util.TimestampOrZero(updatedAt)
	}
}
