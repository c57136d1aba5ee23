package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tokenvault/server/internal/logging"
)

// RedactDSN returns a copy of the DSN with the password replaced by **** for logging.
func RedactDSN(dialect Dialect, dsn string) string {
	switch dialect {
	case MySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "(invalid mysql DSN)"
		}
		if mc.Passwd != "" {
			mc.Passwd = "****"
		}
		return mc.FormatDSN()
	default:
		u, err := url.Parse(dsn)
		if err != nil || u.Scheme == "" {
			return "(invalid DATABASE_URL)"
		}
		if u.User != nil {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
		return u.String()
	}
}

// isUnknownDatabase reports whether the server rejected the connection
// because the configured database does not exist.
func isUnknownDatabase(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1049
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return false
}

// Open establishes a connection pool for the dialect and verifies it with a ping.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	logging.Logger.WithFields(logrus.Fields{
		"driver": dialect.DriverName(),
		"dsn":    RedactDSN(dialect, dsn),
	}).Info("DB connect")

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()

		if isUnknownDatabase(err) {
			return nil, fmt.Errorf("configured database not found on this server: %w", err)
		}

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
