// Package migrate applies the embedded SQL migrations and tracks the schema
// version in a schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/adapters/sqldb"
	"github.com/modu-ai/moai-rank/migrations"
)

// Migration represents a single database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Migrator runs migrations against one database.
type Migrator struct {
	db         *sqldb.DB
	log        *zap.Logger
	migrations []Migration
}

// New loads the embedded migrations and returns a Migrator for db.
func New(db *sqldb.DB, log *zap.Logger) (*Migrator, error) {
	all, err := Load(migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{db: db, log: log, migrations: all}, nil
}

// Migrations returns the known migrations sorted by version.
func (m *Migrator) Migrations() []Migration {
	return m.migrations
}

// EnsureTable creates the schema_migrations table if it doesn't exist.
func (m *Migrator) EnsureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Version returns the current migration version and dirty state.
func (m *Migrator) Version(ctx context.Context) (int, bool, error) {
	var version, dirty int
	err := m.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

// Force records version as current and clears the dirty flag without running SQL.
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.EnsureTable(ctx); err != nil {
		return err
	}
	return m.setVersion(ctx, version, false)
}

func (m *Migrator) setVersion(ctx context.Context, version int, dirty bool) error {
	return m.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
			return err
		}
		if version <= 0 {
			return nil
		}
		dirtyInt := 0
		if dirty {
			dirtyInt = 1
		}
		_, err := tx.ExecContext(ctx, m.db.Rebind(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`), version, dirtyInt)
		return err
	})
}

// Up runs all pending up migrations and returns how many were applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if len(m.migrations) == 0 {
		return 0, nil
	}
	return m.UpTo(ctx, m.migrations[len(m.migrations)-1].Version)
}

// UpTo runs up migrations until target is reached.
func (m *Migrator) UpTo(ctx context.Context, target int) (int, error) {
	current, err := m.prepare(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if mig.Version > target {
			break
		}
		if err := m.run(ctx, mig, true); err != nil {
			return count, err
		}
		count++
	}

	if count == 0 {
		m.log.Info("no migrations to run", zap.Int("version", current))
	} else {
		m.log.Info("migrations applied", zap.Int("count", count), zap.Int("version", min(target, m.latest())))
	}
	return count, nil
}

// DownTo runs down migrations until target is reached.
func (m *Migrator) DownTo(ctx context.Context, target int) (int, error) {
	current, err := m.prepare(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if mig.Version > current {
			continue
		}
		if mig.Version <= target {
			break
		}
		if mig.DownSQL == "" {
			return count, fmt.Errorf("no down migration for version %d", mig.Version)
		}
		if err := m.run(ctx, mig, false); err != nil {
			return count, err
		}
		count++
	}

	m.log.Info("migrations reverted", zap.Int("count", count), zap.Int("version", target))
	return count, nil
}

func (m *Migrator) prepare(ctx context.Context) (int, error) {
	if err := m.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database is in dirty state at version %d", current)
	}
	return current, nil
}

func (m *Migrator) latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// run executes a single migration. The version is marked dirty until its
// statements have committed.
func (m *Migrator) run(ctx context.Context, mig Migration, up bool) error {
	direction := "up"
	content := mig.UpSQL
	target := mig.Version
	if !up {
		direction = "down"
		content = mig.DownSQL
		target = mig.Version - 1
	}

	m.log.Info("running migration",
		zap.String("direction", direction),
		zap.Int("version", mig.Version),
		zap.String("name", mig.Name),
	)

	if err := m.setVersion(ctx, mig.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}

	err := m.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range SplitSQL(content) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", mig.Version, direction, err, stmt)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := m.setVersion(ctx, target, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// Load reads all migration files in fsys and returns them sorted by version.
func Load(fsys fs.FS) ([]Migration, error) {
	var result []Migration

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := upPattern.FindStringSubmatch(path.Base(p))
		if matches == nil {
			return nil
		}

		version, _ := strconv.Atoi(matches[1])
		name := matches[2]

		upSQL, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		downPath := path.Join(path.Dir(p), fmt.Sprintf("%s_%s.down.sql", matches[1], name))
		downSQL, err := fs.ReadFile(fsys, downPath)
		if err != nil {
			downSQL = nil
		}

		result = append(result, Migration{
			Version: version,
			Name:    name,
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

// SplitSQL splits a SQL script on semicolons and drops empty statements.
func SplitSQL(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// RunAll applies every pending migration to db.
func RunAll(ctx context.Context, db *sqldb.DB, log *zap.Logger) error {
	m, err := New(db, log)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}
