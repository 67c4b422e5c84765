package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// migrationLockKey serializes migrations across CoverPool replicas that start
// at the same time.
const migrationLockKey int64 = 0x436f766572506f6f // "CoverPoo"

// Migrator applies the SQL files in the migrations directory. Files are named
// {version}_{name}.up.sql and each must have a matching .down.sql.
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	logger zerolog.Logger
}

// migration is one up/down pair.
type migration struct {
	version string
	up      string
	down    string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version   string
	File      string
	Applied   bool
	AppliedAt time.Time
}

func NewMigrator(db *sql.DB, migrationsDir string, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, fsys: os.DirFS(migrationsDir), logger: logger}
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	plan, err := m.plan()
	if err != nil {
		return err
	}
	return m.withLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return fmt.Errorf("get applied versions: %w", err)
		}

		pending := 0
		for _, mg := range plan {
			if _, ok := applied[mg.version]; ok {
				continue
			}
			err := m.exec(ctx, conn, mg.up, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
					mg.version, mg.up)
				return err
			})
			if err != nil {
				return err
			}
			pending++
			m.logger.Info().Str("file", mg.up).Msg("applied migration")
		}
		if pending == 0 {
			m.logger.Info().Int("migrations", len(plan)).Msg("schema up to date")
		}
		return nil
	})
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	plan, err := m.plan()
	if err != nil {
		return err
	}
	return m.withLock(ctx, func(conn *sql.Conn) error {
		var version string
		err := conn.QueryRowContext(ctx,
			`SELECT version FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			m.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get latest migration: %w", err)
		}

		var target *migration
		for i := range plan {
			if plan[i].version == version {
				target = &plan[i]
			}
		}
		if target == nil {
			return fmt.Errorf("applied migration %s has no file in the migrations directory", version)
		}

		err = m.exec(ctx, conn, target.down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM public.schema_migrations WHERE version = $1`, version)
			return err
		})
		if err != nil {
			return err
		}
		m.logger.Info().Str("file", target.down).Msg("rolled back migration")
		return nil
	})
}

// Status lists every known migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	plan, err := m.plan()
	if err != nil {
		return nil, err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(plan))
	for _, mg := range plan {
		at, ok := applied[mg.version]
		out = append(out, MigrationStatus{Version: mg.version, File: mg.up, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

// withLock runs fn on one connection holding the migration advisory lock.
func (m *Migrator) withLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

// exec runs one migration file and its bookkeeping statement atomically.
func (m *Migrator) exec(ctx context.Context, conn *sql.Conn, file string, record func(*sql.Tx) error) error {
	content, err := fs.ReadFile(m.fsys, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return tx.Commit()
}

// plan pairs up and down files by version, oldest first.
func (m *Migrator) plan() ([]migration, error) {
	ups, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	downs, err := m.listMigrationFiles(".down.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	downByVersion := make(map[string]string, len(downs))
	for _, d := range downs {
		downByVersion[extractVersion(d)] = d
	}

	plan := make([]migration, 0, len(ups))
	for _, up := range ups {
		version := extractVersion(up)
		down, ok := downByVersion[version]
		if !ok {
			return nil, fmt.Errorf("migration %s has no down file", up)
		}
		if len(plan) > 0 && plan[len(plan)-1].version == version {
			return nil, fmt.Errorf("duplicate migration version %s", version)
		}
		plan = append(plan, migration{version: version, up: up, down: down})
	}
	return plan, nil
}

func (m *Migrator) listMigrationFiles(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func ensureMigrationTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]time.Time, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, applied_at FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			v  string
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

// extractVersion returns the numeric prefix of a migration file name, e.g.
// "000001_event_log.up.sql" -> "000001".
func extractVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
