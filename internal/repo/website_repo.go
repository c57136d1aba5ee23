package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tokenvault/server/internal/db"
	"github.com/tokenvault/server/internal/model"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const findWebsiteByCredentialsQuery = "SELECT domain, secret FROM websites WHERE domain = ? AND secret = ? LIMIT 1"

// WebsiteRepo defines the interface for website repository operations
type WebsiteRepo interface {
	FindByCredentials(ctx context.Context, domain, secret string) (model.Website, error)
}

type websiteRepo struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewWebsiteRepo creates a new WebsiteRepo instance
func NewWebsiteRepo(database *sql.DB, dialect db.Dialect) WebsiteRepo {
	return &websiteRepo{db: database, dialect: dialect}
}

// FindByCredentials returns the website whose domain and secret both match.
// Both values are bound as parameters, never interpolated.
func (r *websiteRepo) FindByCredentials(ctx context.Context, domain, secret string) (model.Website, error) {
	var website model.Website
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(findWebsiteByCredentialsQuery), domain, secret).Scan(
		&website.Domain,
		&website.Secret,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Website{}, fmt.Errorf("website %w", ErrNotFound)
		}
		return model.Website{}, fmt.Errorf("failed to query website: %w", err)
	}
	return website, nil
}
