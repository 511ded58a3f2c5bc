package contact

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// EnsurePostgresSchema creates the contacts table and its indexes if missing.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, "schema/postgres.sql")
}

// EnsureSQLiteSchema creates the contacts table and its indexes if missing.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	return applySchema(ctx, db, "schema/sqlite.sql")
}

func applySchema(ctx context.Context, db *sql.DB, file string) error {
	content, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", file, err)
	}
	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema %s: %w", file, err)
		}
	}
	return nil
}
