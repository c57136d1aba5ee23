package db

import (
	"database/sql"
	"embed"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// MigrationDir returns the embedded migration directory for the dialect.
func MigrationDir(dialect Dialect) string {
	return path.Join("migrations", string(dialect))
}

// Migrate creates the websites and devices tables (and the unique
// (domain, token) index) if they are missing.
func Migrate(database *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(database, MigrationDir(dialect)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
