package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded SQL migrations in filename order. Each
// migration runs in its own transaction and is recorded in schema_migrations
// under its version prefix, so a partially failed run resumes where it
// stopped.
type Migrator struct {
	db *sql.DB
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{db: conn.DB()}
}

// Migrate applies all pending migrations and returns their filenames.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	pending, err := m.pending(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, filename := range pending {
		sqlText, err := migrationsFS.ReadFile("migrations/" + filename)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", filename, err)
		}
		if err := m.apply(ctx, filename, string(sqlText)); err != nil {
			return applied, err
		}
		slog.Info("migration applied", "version", migrationVersion(filename))
		applied = append(applied, filename)
	}
	return applied, nil
}

// pending returns the embedded migrations whose version has not been recorded
// yet, in apply order.
func (m *Migrator) pending(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}

	all, err := migrationFiles()
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, filename := range all {
		if _, ok := done[migrationVersion(filename)]; !ok {
			pending = append(pending, filename)
		}
	}
	return pending, nil
}

func (m *Migrator) apply(ctx context.Context, filename, sqlText string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", filename, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("apply migration %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)",
		migrationVersion(filename), filename,
	); err != nil {
		return fmt.Errorf("record migration %s: %w", filename, err)
	}
	return tx.Commit()
}

// migrationVersion is the NNNN prefix of a migration filename; the name after
// it is descriptive only and may be edited without re-running the migration.
func migrationVersion(filename string) string {
	version, _, ok := strings.Cut(filename, "_")
	if !ok {
		return filename
	}
	return version
}

func migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}

	sort.Strings(files)
	return files, nil
}
