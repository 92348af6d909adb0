// Package sqldb implements the repository ports on database/sql. The same
// queries run on libsql/SQLite (go-libsql) and Postgres (pgx stdlib).
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/modu-ai/moai-rank/internal/config"
)

// DefaultRetries is how often a query is retried on a transient stream error.
const DefaultRetries = 2

// DB wraps *sql.DB with the dialect it was opened with.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the database described by cfg and pings it.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	dsn, err := config.ParseDSN(cfg.URL, cfg.AuthToken)
	if err != nil {
		return nil, err
	}

	driverName := "libsql"
	if dsn.IsPostgres() {
		driverName = "pgx"
	}

	sqlDB, err := sql.Open(driverName, dsn.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch {
	case dsn.Local:
		// SQLite allows a single writer; one connection avoids lock contention.
		sqlDB.SetMaxOpenConns(1)
	case dsn.IsPostgres():
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnLifetime)
	default:
		// Turso closes idle Hrana streams aggressively, so keep no idle connections.
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(0)
		sqlDB.SetConnMaxLifetime(cfg.ConnLifetime)
		sqlDB.SetConnMaxIdleTime(0)
	}

	db := &DB{DB: sqlDB, driver: dsn.Driver}

	if err := db.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dsn.Local {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	return db, nil
}

// Driver returns config.DriverLibSQL or config.DriverPostgres.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.driver, query)
}

// Rebind rewrites ? placeholders to $1..$n for Postgres and leaves them
// untouched otherwise. Placeholders inside quoted literals are not rewritten.
func Rebind(driver, query string) string {
	if driver != config.DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Placeholders returns n comma separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// IsStreamError checks if an error is a Turso "stream not found" error.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "stream not found")
}

// WithRetry executes fn, retrying up to maxRetries times on stream errors.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	policy := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool { return IsStreamError(err) }).
		WithMaxRetries(maxRetries).
		WithDelay(10 * time.Millisecond).
		ReturnLastFailure().
		Build()
	return failsafe.With[T](policy).WithContext(ctx).Get(fn)
}

// InTx runs fn inside a transaction, committing on success.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
