package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/tokenvault/server/internal/db"
)

// Config holds the application configuration
type Config struct {
	Driver      db.Dialect
	DatabaseURL string
	Database    DatabaseConfig
	Port        string
	AutoMigrate bool
	DevMode     bool
}

// DatabaseConfig holds the individual connection settings used when
// DATABASE_URL is not provided.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	Charset  string
	SSLMode  string
}

const defaultCharset = "utf8"

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = string(db.MySQL)
	}
	dialect, err := db.ParseDialect(driver)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_DRIVER: %w", err)
	}
	cfg.Driver = dialect

	cfg.Database = DatabaseConfig{
		Host:     strings.TrimSpace(os.Getenv("DB_HOST")),
		Port:     strings.TrimSpace(os.Getenv("DB_PORT")),
		Name:     strings.TrimSpace(os.Getenv("DB_NAME")),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Charset:  os.Getenv("DB_CHARSET"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}
	if cfg.Database.Charset == "" {
		cfg.Database.Charset = defaultCharset
	}

	// DATABASE_URL wins over the individual DB_* settings
	if databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); databaseURL != "" {
		if err := checkDatabaseURL(dialect, databaseURL); err != nil {
			return nil, err
		}
		cfg.DatabaseURL = databaseURL
	} else {
		dsn, err := cfg.Database.DSN(dialect)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.AutoMigrate = os.Getenv("DB_AUTO_MIGRATE") == "true"
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}

// checkDatabaseURL rejects DSN options that change what RowsAffected reports,
// since device inserts rely on it to tell a stored token from a duplicate.
func checkDatabaseURL(dialect db.Dialect, dsn string) error {
	if dialect != db.MySQL {
		return nil
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if mc.ClientFoundRows {
		return fmt.Errorf("DATABASE_URL must not set clientFoundRows=true")
	}
	return nil
}

// DSN builds a driver-specific connection string from the individual settings.
func (c DatabaseConfig) DSN(dialect db.Dialect) (string, error) {
	switch {
	case c.Host == "":
		return "", fmt.Errorf("DB_HOST environment variable is required when DATABASE_URL is not set")
	case c.Name == "":
		return "", fmt.Errorf("DB_NAME environment variable is required when DATABASE_URL is not set")
	case c.User == "":
		return "", fmt.Errorf("DB_USER environment variable is required when DATABASE_URL is not set")
	}

	port := c.Port
	if port == "" {
		port = dialect.DefaultPort()
	}

	switch dialect {
	case db.MySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, port)
		mc.DBName = c.Name
		mc.Params = map[string]string{"charset": c.Charset}
		return mc.FormatDSN(), nil
	case db.Postgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   net.JoinHostPort(c.Host, port),
			Path:   "/" + c.Name,
		}
		if c.SSLMode != "" {
			q := url.Values{}
			q.Set("sslmode", c.SSLMode)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}
