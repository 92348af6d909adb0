package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

const (
	// hashLookupChunk bounds the IN list so bind parameter limits are never hit.
	hashLookupChunk = 500
	// insertChunk is the number of rows per multi-row usage INSERT.
	insertChunk = 50
)

var errAlreadyRecorded = errors.New("already recorded")

type UsageRepository struct {
	db *DB
}

func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) RecordSession(ctx context.Context, event *domain.UsageEvent, audit *domain.ActivityLog) (bool, error) {
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		inserted, err := r.insertEvents(ctx, tx, []*domain.UsageEvent{event})
		if err != nil {
			return err
		}
		if !inserted[event.SessionHash] {
			return errAlreadyRecorded
		}

		delta := &domain.DailyAggregate{UserID: event.UserID, Date: event.Day()}
		delta.Add(event)
		if err := r.addToAggregate(ctx, tx, delta); err != nil {
			return err
		}

		if audit != nil {
			return insertActivityLog(ctx, r.db, tx, audit)
		}
		return nil
	})
	if errors.Is(err, errAlreadyRecorded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *UsageRepository) RecordSessions(ctx context.Context, events []*domain.UsageEvent, audit *domain.ActivityLog) (map[string]bool, error) {
	inserted := make(map[string]bool, len(events))
	if len(events) == 0 {
		return inserted, nil
	}

	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		stored, err := r.insertEvents(ctx, tx, events)
		if err != nil {
			return err
		}

		deltas := make(map[[2]string]*domain.DailyAggregate)
		for _, e := range events {
			if !stored[e.SessionHash] || inserted[e.SessionHash] {
				continue
			}
			inserted[e.SessionHash] = true

			key := [2]string{e.UserID, e.Day()}
			d, found := deltas[key]
			if !found {
				d = &domain.DailyAggregate{UserID: e.UserID, Date: e.Day()}
				deltas[key] = d
			}
			d.Add(e)
		}

		keys := make([][2]string, 0, len(deltas))
		for k := range deltas {
			keys = append(keys, k)
		}
		// Fixed order keeps lock acquisition consistent across concurrent batches.
		sort.Slice(keys, func(i, j int) bool {
			if keys[i][0] != keys[j][0] {
				return keys[i][0] < keys[j][0]
			}
			return keys[i][1] < keys[j][1]
		})
		for _, k := range keys {
			if err := r.addToAggregate(ctx, tx, deltas[k]); err != nil {
				return err
			}
		}

		if audit != nil && len(inserted) > 0 {
			return insertActivityLog(ctx, r.db, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// insertEvents writes events with multi-row inserts and returns the hashes
// that were new. Rows whose hash is already stored are skipped.
func (r *UsageRepository) insertEvents(ctx context.Context, tx *sql.Tx, events []*domain.UsageEvent) (map[string]bool, error) {
	const columns = 12
	row := "(" + Placeholders(columns) + ")"

	inserted := make(map[string]bool, len(events))
	for start := 0; start < len(events); start += insertChunk {
		chunk := events[start:min(start+insertChunk, len(events))]

		values := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*columns)
		for i, e := range chunk {
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now().UTC()
			}
			endedAt := util.FormatTimestamp(e.EndedAt)

			values[i] = row
			args = append(args,
				e.ID,
				e.UserID,
				e.SessionHash,
				util.NullStringPtr(e.AnonymousProjectID),
				endedAt,
				endedAt,
				util.NullStringPtr(e.ModelName),
				e.InputTokens,
				e.OutputTokens,
				e.CacheCreationTokens,
				e.CacheReadTokens,
				util.FormatTimestamp(e.CreatedAt),
			)
		}

		rows, err := tx.QueryContext(ctx, r.db.Rebind(`
			INSERT INTO token_usage (
				id, user_id, session_hash, anonymous_project_id, started_at, ended_at, model_name,
				input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, created_at
			) VALUES `+strings.Join(values, ", ")+`
			ON CONFLICT (session_hash) DO NOTHING
			RETURNING session_hash
		`), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert usage events: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan inserted hash: %w", err)
			}
			inserted[h] = true
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to insert usage events: %w", err)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to insert usage events: %w", err)
		}
	}
	return inserted, nil
}

// addToAggregate adds delta onto the (user, day) row and refreshes its cached scores.
func (r *UsageRepository) addToAggregate(ctx context.Context, tx *sql.Tx, delta *domain.DailyAggregate) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO daily_aggregates (
			id, user_id, date, total_input_tokens, total_output_tokens, total_cache_tokens,
			session_count, avg_efficiency, composite_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_input_tokens = daily_aggregates.total_input_tokens + excluded.total_input_tokens,
			total_output_tokens = daily_aggregates.total_output_tokens + excluded.total_output_tokens,
			total_cache_tokens = daily_aggregates.total_cache_tokens + excluded.total_cache_tokens,
			session_count = daily_aggregates.session_count + excluded.session_count
	`),
		uuid.NewString(),
		delta.UserID,
		delta.Date,
		delta.TotalInputTokens,
		delta.TotalOutputTokens,
		delta.TotalCacheTokens,
		delta.SessionCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily aggregate: %w", err)
	}

	agg := domain.DailyAggregate{UserID: delta.UserID, Date: delta.Date}
	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		SELECT total_input_tokens, total_output_tokens, total_cache_tokens, session_count
		FROM daily_aggregates WHERE user_id = ? AND date = ?
	`), delta.UserID, delta.Date).Scan(&agg.TotalInputTokens, &agg.TotalOutputTokens, &agg.TotalCacheTokens, &agg.SessionCount)
	if err != nil {
		return fmt.Errorf("failed to read daily aggregate: %w", err)
	}
	agg.Rescore()

	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE daily_aggregates SET avg_efficiency = ?, composite_score = ? WHERE user_id = ? AND date = ?
	`), agg.AvgEfficiency, agg.CompositeScore, delta.UserID, delta.Date)
	if err != nil {
		return fmt.Errorf("failed to rescore daily aggregate: %w", err)
	}
	return nil
}

func (r *UsageRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(hashes); start += hashLookupChunk {
		end := min(start+hashLookupChunk, len(hashes))
		chunk := hashes[start:end]

		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		found, err := WithRetry(ctx, DefaultRetries, func() ([]string, error) {
			rows, err := r.db.QueryContext(ctx, r.db.Rebind(
				`SELECT session_hash FROM token_usage WHERE session_hash IN (`+Placeholders(len(chunk))+`)`,
			), args...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			var out []string
			for rows.Next() {
				var h string
				if err := rows.Scan(&h); err != nil {
					return nil, err
				}
				out = append(out, h)
			}
			return out, rows.Err()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to look up session hashes: %w", err)
		}
		for _, h := range found {
			existing[h] = true
		}
	}
	return existing, nil
}

// SumByUser totals raw usage per user inside window. Users whose summed
// input is zero are left out.
func (r *UsageRepository) SumByUser(ctx context.Context, window domain.Window) ([]domain.UsageTotals, error) {
	query := `
		SELECT user_id,
			CAST(COALESCE(SUM(input_tokens), 0) AS BIGINT),
			CAST(COALESCE(SUM(output_tokens), 0) AS BIGINT),
			COUNT(DISTINCT session_hash)
		FROM token_usage
		WHERE ended_at < ?`
	args := []any{util.FormatTimestamp(window.End)}
	if window.Bounded() {
		query += ` AND ended_at >= ?`
		args = append(args, util.FormatTimestamp(window.Start))
	}
	query += `
		GROUP BY user_id
		HAVING SUM(input_tokens) > 0
		ORDER BY user_id`

	return WithRetry(ctx, DefaultRetries, func() ([]domain.UsageTotals, error) {
		rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to sum usage: %w", err)
		}
		defer rows.Close()

		var totals []domain.UsageTotals
		for rows.Next() {
			var t domain.UsageTotals
			if err := rows.Scan(&t.UserID, &t.InputTokens, &t.OutputTokens, &t.SessionCount); err != nil {
				return nil, fmt.Errorf("failed to scan usage totals: %w", err)
			}
			totals = append(totals, t)
		}
		return totals, rows.Err()
	})
}

// ActiveDays counts, per user, the distinct days in [fromDate, toDate] with usage.
func (r *UsageRepository) ActiveDays(ctx context.Context, fromDate, toDate string) (map[string]int64, error) {
	return WithRetry(ctx, DefaultRetries, func() (map[string]int64, error) {
		rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
			SELECT user_id, COUNT(DISTINCT date)
			FROM daily_aggregates
			WHERE date >= ? AND date <= ? AND session_count > 0
			GROUP BY user_id
		`), fromDate, toDate)
		if err != nil {
			return nil, fmt.Errorf("failed to count active days: %w", err)
		}
		defer rows.Close()

		days := make(map[string]int64)
		for rows.Next() {
			var (
				userID string
				n      int64
			)
			if err := rows.Scan(&userID, &n); err != nil {
				return nil, fmt.Errorf("failed to scan active days: %w", err)
			}
			days[userID] = n
		}
		return days, rows.Err()
	})
}

func (r *UsageRepository) TotalsForUser(ctx context.Context, userID string) (domain.UsageTotals, error) {
	t := domain.UsageTotals{UserID: userID}
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT CAST(COALESCE(SUM(input_tokens), 0) AS BIGINT),
			CAST(COALESCE(SUM(output_tokens), 0) AS BIGINT),
			COUNT(*)
		FROM token_usage WHERE user_id = ?
	`), userID).Scan(&t.InputTokens, &t.OutputTokens, &t.SessionCount)
	if err != nil {
		return t, fmt.Errorf("failed to total usage: %w", err)
	}
	return t, nil
}

func (r *UsageRepository) GetDailyAggregate(ctx context.Context, userID, date string) (*domain.DailyAggregate, error) {
	agg := domain.DailyAggregate{UserID: userID, Date: date}
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT total_input_tokens, total_output_tokens, total_cache_tokens, session_count, avg_efficiency, composite_score
		FROM daily_aggregates WHERE user_id = ? AND date = ?
	`), userID, date).Scan(
		&agg.TotalInputTokens,
		&agg.TotalOutputTokens,
		&agg.TotalCacheTokens,
		&agg.SessionCount,
		&agg.AvgEfficiency,
		&agg.CompositeScore,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily aggregate: %w", err)
	}
	return &agg, nil
}

func (r *UsageRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM token_usage WHERE ended_at < ?`), util.FormatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete usage events: %w", err)
	}
	return res.RowsAffected()
}

func (r *UsageRepository) DeleteAggregatesBefore(ctx context.Context, beforeDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM daily_aggregates WHERE date < ?`), beforeDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete daily aggregates: %w", err)
	}
	return res.RowsAffected()
}
