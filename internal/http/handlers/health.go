package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tokenvault/server/internal/logging"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the service can reach its database
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		logging.Logger.Warnf("Health check ping failed: %v", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// NotFound answers unknown routes with the JSON error envelope
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, verifyResponse{Success: false, Error: "Not found"})
}

// MethodNotAllowed answers routes registered for other methods
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusMethodNotAllowed, verifyResponse{Success: false, Error: msgMethodNotAllowed})
}
