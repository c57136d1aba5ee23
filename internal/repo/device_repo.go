package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tokenvault/server/internal/db"
)

const (
	findDeviceQuery   = "SELECT id FROM devices WHERE domain = ? AND token = ? LIMIT 1"
	insertDeviceQuery = "INSERT INTO devices (domain, token) VALUES (?, ?)"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	Exists(ctx context.Context, domain, token string) (bool, error)
	Create(ctx context.Context, domain, token string) (bool, error)
}

type deviceRepo struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(database *sql.DB, dialect db.Dialect) DeviceRepo {
	return &deviceRepo{db: database, dialect: dialect}
}

// Exists reports whether a device row is recorded for (domain, token)
func (r *deviceRepo) Exists(ctx context.Context, domain, token string) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(findDeviceQuery), domain, token).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query device: %w", err)
	}
	return true, nil
}

// Create inserts a device row for (domain, token). It returns false without
// error when the unique (domain, token) index already holds the pair.
func (r *deviceRepo) Create(ctx context.Context, domain, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.InsertIgnoreDuplicate(insertDeviceQuery), domain, token)
	if err != nil {
		return false, fmt.Errorf("failed to create device: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}
