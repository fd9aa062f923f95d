package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

type tokenTable map[string]models.AdminRole

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	role, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{Role: role}, nil
}

func newTestRouter(readyErr error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Routes{
		APIPrefix:    "/api/v1",
		GatePasses:   NewGatePassHandler(&issuerMock{history: []models.GatePass{}}),
		Verification: NewVerificationHandler(&verifierMock{scans: []models.ScanRecord{}}, nil, nil),
		Auth:         NewAuthHandler(&tokenIssuerMock{}),
		Sync:         NewSyncHandler(&syncControllerMock{started: &models.SyncCheckpoint{RunID: "run-1"}}),
		Metrics: NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
			"postgres": func(context.Context) error { return readyErr },
		}),
		Tokens: tokenTable{"admin": models.RoleAdmin, "auditor": models.RoleAuditor},
	})
	return r
}

func TestRouterAdminAccess(t *testing.T) {
	r := newTestRouter(nil)

	cases := []struct {
		method string
		path   string
		token  string
		status int
	}{
		{http.MethodGet, "/api/v1/admin/gatepasses/gp-1/scans", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/admin/gatepasses/gp-1/scans", "auditor", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/students/S1/gatepasses", "auditor", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/metrics", "auditor", http.StatusOK},
		{http.MethodPost, "/api/v1/admin/sync", "auditor", http.StatusForbidden},
		{http.MethodPost, "/api/v1/admin/sync", "admin", http.StatusAccepted},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, "%s %s as %q", tc.method, tc.path, tc.token)
	}
}

func TestRouterProbes(t *testing.T) {
	r := newTestRouter(nil)
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	newTestRouter(errors.New("connection refused")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "postgres")
}
