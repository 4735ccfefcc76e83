package graflow

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations_sqlite/*.sql
var migrationFilesSQLite embed.FS

// RunSQLiteMigrations applies every migrations_sqlite/*.sql file against
// db, in filename order. Mirrors RunMigrations for the Postgres backend,
// against the flat-table schema SQLite needs (no CREATE SCHEMA, foreign
// keys enabled per connection by the caller).
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationFilesSQLite.ReadDir("migrations_sqlite")
	if err != nil {
		return fmt.Errorf("read migrations_sqlite directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrationFilesSQLite.ReadFile("migrations_sqlite/" + file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}

	return nil
}
