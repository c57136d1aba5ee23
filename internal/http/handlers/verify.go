package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tokenvault/server/internal/auth"
	"github.com/tokenvault/server/internal/logging"
)

const maxBodyBytes = 1 << 20

// Verifier checks credentials and records device tokens
type Verifier interface {
	Verify(ctx context.Context, domain, secret, token string) (auth.Result, error)
}

// VerifyHandler handles POST /api/verify-credentials
type VerifyHandler struct {
	verifier Verifier
	devMode  bool
}

// NewVerifyHandler creates a new verify handler. In devMode datastore
// failures return the driver error text to the caller.
func NewVerifyHandler(verifier Verifier, devMode bool) *VerifyHandler {
	return &VerifyHandler{verifier: verifier, devMode: devMode}
}

// field accepts a JSON string, number or boolean.
type field string

func (f *field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = field(s)
	case 't':
		*f = "1"
	case 'f':
		*f = ""
	case '{', '[', 'n':
		return fmt.Errorf("expected scalar, got %s", string(data[:1]))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		s, err := normalizeNumber(n)
		if err != nil {
			return err
		}
		*f = field(s)
	}
	return nil
}

// normalizeNumber renders integers as written and every other number in its
// shortest float form, so 1.0 and 1e2 bind as "1" and "100".
func normalizeNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	v, err := n.Float64()
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

var requiredFields = [...]string{"domain", "secret", "token"}

// verifyRequest is the request body for POST /api/verify-credentials
type verifyRequest struct {
	Domain string
	Secret string
	Token  string
}

// decodeVerifyRequest reads exactly one JSON object from body. Keys match
// case-sensitively; a missing key or a null value counts as missing.
func decodeVerifyRequest(body io.Reader) (verifyRequest, error) {
	dec := json.NewDecoder(body)

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return verifyRequest{}, fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return verifyRequest{}, errors.New("unexpected data after JSON object")
	}

	var values [len(requiredFields)]string
	for i, name := range requiredFields {
		v, ok := raw[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return verifyRequest{}, fmt.Errorf("missing field %q", name)
		}
		var f field
		if err := json.Unmarshal(v, &f); err != nil {
			return verifyRequest{}, fmt.Errorf("field %q: %w", name, err)
		}
		values[i] = string(f)
	}

	return verifyRequest{Domain: values[0], Secret: values[1], Token: values[2]}, nil
}

// verifyResponse is the JSON envelope for every verify outcome
type verifyResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorID     string `json:"error_id,omitempty"`
	TokenStored *bool  `json:"token_stored,omitempty"`
	Note        string `json:"note,omitempty"`
}

const (
	msgMethodNotAllowed   = "Method not allowed"
	msgMissingFields      = "Missing required fields"
	msgInvalidCredentials = "Invalid credentials"
	msgStored             = "Credentials verified and token stored successfully"
	msgVerified           = "Credentials verified successfully"
	noteTokenExists       = "Token already exists"
	msgDatabaseFailed     = "Database connection failed"
)

func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, verifyResponse{Success: false, Error: msgMethodNotAllowed})
		return
	}

	req, err := decodeVerifyRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logging.Logger.WithError(err).Debug("Rejected verify request body")
		respondJSON(w, http.StatusBadRequest, verifyResponse{Success: false, Error: msgMissingFields})
		return
	}

	domain := req.Domain
	result, err := h.verifier.Verify(r.Context(), domain, req.Secret, req.Token)
	if err != nil {
		h.respondDatastoreError(w, r, domain, err)
		return
	}

	if !result.Valid {
		logging.Logger.WithField("domain", domain).Info("Invalid credentials")
		respondJSON(w, http.StatusOK, verifyResponse{Success: false, Message: msgInvalidCredentials})
		return
	}

	if result.TokenStored {
		respondJSON(w, http.StatusOK, verifyResponse{
			Success:     true,
			Message:     msgStored,
			TokenStored: boolPtr(true),
		})
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		Success:     true,
		Message:     msgVerified,
		TokenStored: boolPtr(false),
		Note:        noteTokenExists,
	})
}

// respondDatastoreError logs the driver detail under a fresh reference id and
// returns only that id to the caller, unless running in dev mode.
func (h *VerifyHandler) respondDatastoreError(w http.ResponseWriter, r *http.Request, domain string, err error) {
	errorID := uuid.New().String()

	fields := logrus.Fields{
		"error_id": errorID,
		"domain":   domain,
		"error":    err.Error(),
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		fields["request_id"] = reqID
	}
	var dsErr *auth.DatastoreError
	if errors.As(err, &dsErr) {
		fields["op"] = dsErr.Op
	}
	logging.Logger.WithFields(fields).Error("Credential verification failed")

	resp := verifyResponse{Success: false, Error: msgDatabaseFailed, ErrorID: errorID}
	if h.devMode {
		// surface the driver's own message, without our wrapping
		cause := err
		for next := errors.Unwrap(cause); next != nil; next = errors.Unwrap(cause) {
			cause = next
		}
		resp.Error = msgDatabaseFailed + ": " + cause.Error()
	}
	respondJSON(w, http.StatusInternalServerError, resp)
}

func boolPtr(b bool) *bool {
	return &b
}

// respondJSON writes payload as JSON with the given status
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Logger.WithField("status", status).Warnf("Failed to encode response: %v", err)
	}
}
