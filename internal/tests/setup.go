package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tokenvault/server/internal/db"
)

// ResetTables empties websites and devices for a clean test state.
func ResetTables(ctx context.Context, database *sql.DB, dialect db.Dialect) error {
	stmts := []string{"TRUNCATE TABLE devices", "TRUNCATE TABLE websites"}
	if dialect == db.Postgres {
		stmts = []string{"TRUNCATE TABLE devices, websites RESTART IDENTITY"}
	}
	for _, stmt := range stmts {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset tables: %w", err)
		}
	}
	return nil
}

// SeedWebsite registers a domain with its secret.
func SeedWebsite(ctx context.Context, database *sql.DB, dialect db.Dialect, domain, secret string) error {
	_, err := database.ExecContext(ctx, dialect.Rebind("INSERT INTO websites (domain, secret) VALUES (?, ?)"), domain, secret)
	if err != nil {
		return fmt.Errorf("seed website: %w", err)
	}
	return nil
}

// CountDevices returns how many device rows exist for (domain, token).
func CountDevices(ctx context.Context, database *sql.DB, dialect db.Dialect, domain, token string) (int, error) {
	var n int
	err := database.QueryRowContext(ctx,
		dialect.Rebind("SELECT COUNT(*) FROM devices WHERE domain = ? AND token = ?"),
		domain, token,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}
