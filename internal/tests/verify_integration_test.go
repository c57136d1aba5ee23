package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenvault/server/internal/auth"
	"github.com/tokenvault/server/internal/config"
	"github.com/tokenvault/server/internal/db"
	httphandler "github.com/tokenvault/server/internal/http"
	"github.com/tokenvault/server/internal/http/handlers"
	"github.com/tokenvault/server/internal/repo"
)

// testServer holds the server and DB for integration tests
type testServer struct {
	Server  *httptest.Server
	DB      *sql.DB
	Dialect db.Dialect
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.Driver, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and DB_DRIVER")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database, cfg.Driver), "migrations must run successfully")

	svc := auth.NewCredentialService(
		repo.NewWebsiteRepo(database, cfg.Driver),
		repo.NewDeviceRepo(database, cfg.Driver),
	)
	router := httphandler.NewRouter(
		handlers.NewVerifyHandler(svc, false),
		handlers.NewHealthHandler(database),
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Dialect: cfg.Driver}
}

func (s *testServer) Reset(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ResetTables(ctx, s.DB, s.Dialect))
	require.NoError(t, SeedWebsite(ctx, s.DB, s.Dialect, "example.com", "s3cr3t"))
}

func (s *testServer) DeviceCount(t *testing.T, domain, token string) int {
	t.Helper()
	n, err := CountDevices(context.Background(), s.DB, s.Dialect, domain, token)
	require.NoError(t, err)
	return n
}

// verifyResponse matches POST /api/verify-credentials responses
type verifyResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	TokenStored *bool  `json:"token_stored"`
	Note        string `json:"note"`
}

func (s *testServer) tryPost(payload map[string]string) (int, verifyResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, verifyResponse{}, err
	}
	resp, err := s.Server.Client().Post(s.Server.URL+"/api/verify-credentials", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, verifyResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, verifyResponse{}, err
	}
	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, verifyResponse{}, fmt.Errorf("decode %q: %w", raw, err)
	}
	return resp.StatusCode, out, nil
}

func (s *testServer) post(t *testing.T, payload map[string]string) (int, verifyResponse) {
	t.Helper()
	status, out, err := s.tryPost(payload)
	require.NoError(t, err)
	return status, out
}

func TestVerifyCredentialsIntegration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ts := newTestServer(t)
	valid := map[string]string{"domain": "example.com", "secret": "s3cr3t", "token": "dev-abc"}

	t.Run("A_NewTokenStored", func(t *testing.T) {
		ts.Reset(t)
		status, res := ts.post(t, valid)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, res.Success)
		require.NotNil(t, res.TokenStored)
		assert.True(t, *res.TokenStored)
		assert.Equal(t, "Credentials verified and token stored successfully", res.Message)
		assert.Equal(t, 1, ts.DeviceCount(t, "example.com", "dev-abc"))
	})

	t.Run("B_RepeatDoesNotDuplicate", func(t *testing.T) {
		ts.Reset(t)
		_, _ = ts.post(t, valid)
		status, res := ts.post(t, valid)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, res.Success)
		require.NotNil(t, res.TokenStored)
		assert.False(t, *res.TokenStored)
		assert.Equal(t, "Token already exists", res.Note)
		assert.Equal(t, 1, ts.DeviceCount(t, "example.com", "dev-abc"))
	})

	t.Run("C_InvalidCredentials", func(t *testing.T) {
		ts.Reset(t)
		status, res := ts.post(t, map[string]string{"domain": "example.com", "secret": "wrong", "token": "dev-abc"})
		assert.Equal(t, http.StatusOK, status)
		assert.False(t, res.Success)
		assert.Equal(t, "Invalid credentials", res.Message)
		assert.Equal(t, 0, ts.DeviceCount(t, "example.com", "dev-abc"))
	})

	t.Run("D_InjectionDoesNotMatch", func(t *testing.T) {
		ts.Reset(t)
		for _, payload := range []map[string]string{
			{"domain": "example.com", "secret": "' OR '1'='1", "token": "dev-abc"},
			{"domain": "' OR '1'='1' -- ", "secret": "x", "token": "dev-abc"},
			{"domain": "example.com' -- ", "secret": "x", "token": "dev-abc"},
		} {
			status, res := ts.post(t, payload)
			assert.Equal(t, http.StatusOK, status)
			assert.False(t, res.Success, "payload %v must not authenticate", payload)
		}
		assert.Equal(t, 0, ts.DeviceCount(t, "example.com", "dev-abc"))
	})

	t.Run("E_ConcurrentSameTokenStoresOnce", func(t *testing.T) {
		ts.Reset(t)
		payload := map[string]string{"domain": "example.com", "secret": "s3cr3t", "token": "dev-race"}

		const n = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		stored := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				status, res, err := ts.tryPost(payload)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, http.StatusOK, status)
				if res.TokenStored != nil && *res.TokenStored {
					mu.Lock()
					stored++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, stored)
		assert.Equal(t, 1, ts.DeviceCount(t, "example.com", "dev-race"))
	})

	t.Run("F_Health", func(t *testing.T) {
		resp, err := ts.Server.Client().Get(ts.Server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
