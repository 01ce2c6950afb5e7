package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rhuss/routeway/pkg/debug"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// transcriptTable is the table the migrations must leave behind.
const transcriptTable = "transcripts"

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// migration is one embedded schema step, named NNN_description.sql.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads the SQL files under dir in version order. Versions
// must start at 1 and have no gaps or duplicates.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version and an underscore", name)
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i, m := range out {
		if m.version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", m.name, i+1)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}
	return out, nil
}

// migrate applies pending migrations, each in its own transaction together
// with its version record, and checks that the transcript table exists
// afterwards.
func (s *Store) migrate(ctx context.Context) error {
	steps, err := loadMigrations(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, createVersionTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range steps {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var done bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.version,
			).Scan(&done); err != nil || done {
				return err
			}

			slog.Info("applying migration", "file", m.name, "version", m.version)
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
				return err
			}
			applied++
			return nil
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
	}

	var table *string
	if err := s.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", transcriptTable).Scan(&table); err != nil {
		return fmt.Errorf("checking %s table: %w", transcriptTable, err)
	}
	if table == nil {
		return fmt.Errorf("migrations did not create the %s table", transcriptTable)
	}

	debug.Log("storage", "schema ready", "table", transcriptTable, "applied", applied, "known", len(steps))
	return nil
}
