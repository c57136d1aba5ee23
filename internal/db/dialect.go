package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL backend and carries the few statements whose
// syntax differs between backends.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a DB_DRIVER value to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (want mysql or postgres)", s)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// DefaultPort returns the server's well-known port.
func (d Dialect) DefaultPort() string {
	if d == Postgres {
		return "5432"
	}
	return "3306"
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Queries passed here must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertIgnoreDuplicate appends the dialect's "skip on unique conflict"
// clause to an INSERT statement. Affected rows is 0 when the row already existed.
func (d Dialect) InsertIgnoreDuplicate(insert string) string {
	if d == Postgres {
		return d.Rebind(insert + " ON CONFLICT DO NOTHING")
	}
	// id = id leaves the row untouched, so MySQL reports 0 affected rows
	return d.Rebind(insert + " ON DUPLICATE KEY UPDATE id = id")
}
