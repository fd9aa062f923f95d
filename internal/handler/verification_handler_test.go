package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/middleware/requestid"
)

type verifierMock struct {
	result    *models.VerificationResult
	err       error
	alerts    []models.VerificationResult
	alertErr  error
	scans     []models.ScanRecord
	scansErr  error
	lastPass  string
	lastScan  string
	alertReqs []string
}

func (m *verifierMock) Verify(_ context.Context, passID, contact string) (*models.VerificationResult, error) {
	m.lastPass, m.lastScan = passID, contact
	return m.result, m.err
}

func (m *verifierMock) AlertOwner(ctx context.Context, result *models.VerificationResult) error {
	m.alerts = append(m.alerts, *result)
	m.alertReqs = append(m.alertReqs, requestid.FromContext(ctx))
	return m.alertErr
}

func (m *verifierMock) ListScans(_ context.Context, _ string) ([]models.ScanRecord, error) {
	return m.scans, m.scansErr
}

func newSyncVerificationHandler(mock *verifierMock) *VerificationHandler {
	h := NewVerificationHandler(mock, time.FixedZone("CAT", 2*3600), nil)
	h.dispatch = func(f func()) { f() }
	return h
}

func serveVerify(h *VerificationHandler, target, accept string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		c.Request.Header.Set("Accept", accept)
	}
	h.Verify(c)
	return w
}

func TestVerificationHandlerHTML(t *testing.T) {
	expires := time.Date(2025, time.November, 30, 21, 59, 59, 0, time.UTC)
	mock := &verifierMock{result: &models.VerificationResult{
		Status:      models.VerificationValid,
		PassID:      "gp-1",
		StudentID:   "SSC1",
		StudentName: "Tariro <Moyo>",
		ExpiresAt:   &expires,
		ScannedAt:   time.Date(2025, time.September, 12, 5, 45, 0, 0, time.UTC),
	}}
	w := serveVerify(newSyncVerificationHandler(mock), "/verify-pass?pass_id=gp-1&contact=%2B263771234567", "text/html")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gp-1", mock.lastPass)
	assert.Equal(t, "+263771234567", mock.lastScan)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "Valid Gate Pass")
	assert.Contains(t, body, "Tariro &lt;Moyo&gt;")
	assert.Contains(t, body, "2025-11-30 23:59")
	assert.Contains(t, body, "2025-09-12 07:45")
	assert.Empty(t, mock.alerts)
}

func TestVerificationHandlerUnauthorizedAlertsOwner(t *testing.T) {
	mock := &verifierMock{
		result:   &models.VerificationResult{Status: models.VerificationUnauthorizedScan, Warning: true, PassID: "gp-1", AuthorizedContact: "+263771234567"},
		alertErr: errors.New("gateway down"),
	}
	w := serveVerify(newSyncVerificationHandler(mock), "/verify-pass?pass_id=gp-1&contact=%2B263779999999", "application/json")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"warning":true`)
	assert.NotContains(t, w.Body.String(), "+263771234567")
	require.Len(t, mock.alerts, 1)
	assert.Equal(t, "gp-1", mock.alerts[0].PassID)
}

func TestVerificationHandlerAlertKeepsScanContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &verifierMock{
		result: &models.VerificationResult{Status: models.VerificationUnauthorizedScan, Warning: true, PassID: "gp-1"},
	}
	h := NewVerificationHandler(mock, time.UTC, nil)
	var pending []func()
	h.dispatch = func(f func()) { pending = append(pending, f) }

	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/verify-pass", h.Verify)

	for _, id := range []string{"scan-1", "scan-2"} {
		req := httptest.NewRequest(http.MethodGet, "/verify-pass?pass_id=gp-1&contact=%2B263779999999", nil)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", id)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Len(t, pending, 2)

	// Both requests have returned; alerts run afterwards like the goroutine would.
	for _, f := range pending {
		f()
	}
	assert.Equal(t, []string{"scan-1", "scan-2"}, mock.alertReqs)
}

func TestVerificationHandlerNotFound(t *testing.T) {
	mock := &verifierMock{result: &models.VerificationResult{Status: models.VerificationNotFound, PassID: "gp-x"}}

	w := serveVerify(newSyncVerificationHandler(mock), "/verify-pass?pass_id=gp-x&contact=%2B1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Gate Pass Not Found")

	w = serveVerify(newSyncVerificationHandler(mock), "/verify-pass?pass_id=gp-x&contact=%2B1&format=json", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"not_found"`)
}

func TestVerificationHandlerValidationError(t *testing.T) {
	mock := &verifierMock{err: appErrors.Clone(appErrors.ErrValidation, "pass_id and contact are required")}
	w := serveVerify(newSyncVerificationHandler(mock), "/verify-pass", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandlerScansCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &verifierMock{scans: []models.ScanRecord{{
		ID:                       "scan-1",
		PassID:                   "gp-1",
		ScannedAt:                time.Date(2025, time.September, 12, 5, 45, 0, 0, time.UTC),
		ScannedByContact:         "+263779999999",
		MatchedAuthorizedContact: false,
		Result:                   models.VerificationUnauthorizedScan,
	}}}
	h := newSyncVerificationHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/gatepasses/gp-1/scans?format=csv", nil)
	c.Params = gin.Params{{Key: "passId", Value: "gp-1"}}
	h.Scans(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="gp-1-scans.csv"`, w.Header().Get("Content-Disposition"))
	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, scanCSVHeaders, records[0])
	assert.Equal(t, []string{"scan-1", "gp-1", "2025-09-12T05:45:00Z", "+263779999999", "false", "unauthorized_scan"}, records[1])
}

func TestVerificationHandlerScansNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newSyncVerificationHandler(&verifierMock{scansErr: appErrors.Clone(appErrors.ErrNotFound, "gate pass not found")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/gatepasses/gp-x/scans", nil)
	c.Params = gin.Params{{Key: "passId", Value: "gp-x"}}
	h.Scans(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
