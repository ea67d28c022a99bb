package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfsched/kernel/internal/config"
	"github.com/bfsched/kernel/pkg/audit"
	"github.com/bfsched/kernel/pkg/metrics"
	"github.com/bfsched/kernel/pkg/sched"
	"github.com/bfsched/kernel/pkg/security"
	"github.com/bfsched/kernel/pkg/types"
)

func testServer(t *testing.T) (*Server, *sched.Scheduler) {
	t.Helper()
	tunables := types.Tunables{
		DefaultQuantum: 5, NiceFirst: -20, NiceLast: 19,
		MaxLevel: 4, NProc: 8, Chance: 0.25, Seed: 62301983,
	}
	s := sched.New(tunables, nil)
	_, err := s.Boot("init", 0, nil)
	require.NoError(t, err)

	mon := metrics.NewMonitor(s, s.NProc(), time.Hour, metrics.DefaultThresholds())

	passHash, err := security.HashPassword("testpass")
	require.NoError(t, err)
	cfg := &config.Config{
		API: config.APIConfig{
			Listen:    ":0",
			RateLimit: config.RateLimitConfig{Enabled: false},
			Cors:      config.CorsConfig{Enabled: true, AllowedOrigins: []string{"*"}},
		},
		Auth: config.AuthConfig{
			OperatorUser:     "operator",
			OperatorPassHash: passHash,
		},
	}

	srv, err := NewServer(cfg, s, mon, nil, nil)
	require.NoError(t, err)
	return srv, s
}

func TestHealthzReturnsOK(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTasksIncludesBootedInit(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tasks []taskView `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, "init", body.Tasks[0].Name)
}

func TestKillRequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/1/kill", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginThenKillSucceeds(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	loginBody, _ := json.Marshal(loginRequest{Username: "operator", Password: "testpass"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.Token)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/tasks/1/kill", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	loginBody, _ := json.Marshal(loginRequest{Username: "operator", Password: "wrong"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditEndpointReturnsEmptyWhenDisabled(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	loginBody, _ := json.Marshal(loginRequest{Username: "operator", Password: "testpass"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Entries)
}

func TestToggleSchedlogRequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.setupRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedlog?ticks=100", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToggleSchedlogEnablesEmission(t *testing.T) {
	srv, s := testServer(t)
	router := srv.setupRouter()

	loginBody, _ := json.Marshal(loginRequest{Username: "operator", Password: "testpass"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/schedlog?ticks=50", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, s.SchedlogActive())
}
