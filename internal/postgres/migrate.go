package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies (up) or reverts (down) every embedded migration. Applied
// versions are tracked in schema_migrations so up is safe to repeat.
func Migrate(ctx context.Context, pool *pgxpool.Pool, direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be 'up' or 'down', got %q", direction)
	}

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrationFS, "migrations/*."+direction+".sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	if direction == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	var ran []string
	for _, file := range files {
		version := strings.TrimSuffix(strings.TrimPrefix(file, "migrations/"), "."+direction+".sql")

		var applied bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&applied); err != nil {
			return ran, fmt.Errorf("check migration %s: %w", version, err)
		}
		if (direction == "up") == applied {
			continue
		}

		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return ran, fmt.Errorf("execute migration %s: %w", file, err)
		}

		bookkeeping := `INSERT INTO schema_migrations(version) VALUES ($1)`
		if direction == "down" {
			bookkeeping = `DELETE FROM schema_migrations WHERE version=$1`
		}
		if _, err := pool.Exec(ctx, bookkeeping, version); err != nil {
			return ran, fmt.Errorf("record migration %s: %w", version, err)
		}
		ran = append(ran, file)
	}
	return ran, nil
}
