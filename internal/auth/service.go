package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokenvault/server/internal/logging"
	"github.com/tokenvault/server/internal/repo"
)

// DatastoreError wraps any failure talking to the database. Op names the
// step that failed.
type DatastoreError struct {
	Op  string
	Err error
}

func (e *DatastoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a verification that reached the database.
type Result struct {
	// Valid is false when no website matches the (domain, secret) pair.
	Valid bool
	// TokenStored is true only when this call wrote the device row.
	TokenStored bool
}

// CredentialService checks website credentials and records device tokens
type CredentialService struct {
	websiteRepo repo.WebsiteRepo
	deviceRepo  repo.DeviceRepo
}

// NewCredentialService creates a new credential service
func NewCredentialService(websiteRepo repo.WebsiteRepo, deviceRepo repo.DeviceRepo) *CredentialService {
	return &CredentialService{
		websiteRepo: websiteRepo,
		deviceRepo:  deviceRepo,
	}
}

// Verify matches (domain, secret) against the registry and, when valid,
// stores the token for the domain unless it is already recorded.
// A credential mismatch is a normal Result, not an error.
func (s *CredentialService) Verify(ctx context.Context, domain, secret, token string) (Result, error) {
	if _, err := s.websiteRepo.FindByCredentials(ctx, domain, secret); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{Valid: false}, nil
		}
		return Result{}, &DatastoreError{Op: "lookup website", Err: err}
	}

	exists, err := s.deviceRepo.Exists(ctx, domain, token)
	if err != nil {
		return Result{}, &DatastoreError{Op: "lookup device", Err: err}
	}
	if exists {
		return Result{Valid: true, TokenStored: false}, nil
	}

	// A concurrent request may insert the same pair between Exists and Create;
	// the unique index turns that into stored == false.
	stored, err := s.deviceRepo.Create(ctx, domain, token)
	if err != nil {
		return Result{}, &DatastoreError{Op: "store device", Err: err}
	}
	if stored {
		logging.Logger.WithField("domain", domain).Info("Device token stored")
	} else {
		logging.Logger.WithField("domain", domain).Debug("Device token inserted concurrently")
	}

	return Result{Valid: true, TokenStored: stored}, nil
}
