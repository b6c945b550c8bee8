package db

import (
	"context"
	"embed"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the schema up to date on startup. Each
// embedded .sql file runs at most once, in filename order, tracked in
// schema_migrations. Migrations are append-only; edit by adding a new
// file, never by changing an applied one.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		applied, err := migrationApplied(ctx, pool, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := runMigration(ctx, pool, name); err != nil {
			return err
		}
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func migrationApplied(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var applied bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
	).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("checking migration %s: %w", name, err)
	}
	return applied, nil
}

func runMigration(ctx context.Context, pool *pgxpool.Pool, name string) error {
	content, err := migrationsFS.ReadFile(path.Join("migrations", name))
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	log.Printf("[DB] Applying migration: %s", name)
	if _, err := pool.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("executing migration %s: %w", name, err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO schema_migrations (filename) VALUES ($1)`, name,
	); err != nil {
		return fmt.Errorf("recording migration %s: %w", name, err)
	}
	return nil
}
