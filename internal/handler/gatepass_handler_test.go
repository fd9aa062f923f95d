package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

type issuerMock struct {
	result     *models.IssueGatePassResult
	err        error
	lastReq    models.IssueGatePassRequest
	history    []models.GatePass
	lastLimit  int
	lastHolder string
}

func (m *issuerMock) Issue(_ context.Context, req models.IssueGatePassRequest) (*models.IssueGatePassResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *issuerMock) History(_ context.Context, studentID string, limit int) ([]models.GatePass, error) {
	m.lastHolder = studentID
	m.lastLimit = limit
	return m.history, m.err
}

type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func postIssue(t *testing.T, h *GatePassHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/gatepasses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	h.Issue(c)
	return w
}

func TestGatePassHandlerIssueCreated(t *testing.T) {
	mock := &issuerMock{result: &models.IssueGatePassResult{PassID: "gp-1", Tier: models.TierFull, Delivery: models.DeliveryDocument}}
	w := postIssue(t, NewGatePassHandler(mock), `{"student_id":"SSC1","contact":"+263771234567"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "SSC1", mock.lastReq.StudentID)
	var body struct {
		Data models.IssueGatePassResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "gp-1", body.Data.PassID)
	assert.Equal(t, models.DeliveryDocument, body.Data.Delivery)
}

func TestGatePassHandlerIssueDenials(t *testing.T) {
	nextTerm := time.Date(2026, time.January, 4, 0, 0, 0, 0, time.UTC)
	reset := time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		denial *service.Denial
		status int
		code   string
		detail string
		value  interface{}
	}{
		{&service.Denial{Reason: service.DenialOutsideTerm, NextTermStart: &nextTerm}, http.StatusUnprocessableEntity, "OUTSIDE_TERM", "next_term_start", "2026-01-04"},
		{&service.Denial{Reason: service.DenialNoBillingRecord}, http.StatusUnprocessableEntity, "NO_BILLING_RECORD", "reason", "no_billing_record"},
		{&service.Denial{Reason: service.DenialInsufficientPayment, PaymentPercentage: 40}, http.StatusPaymentRequired, "INSUFFICIENT_PAYMENT", "payment_percentage", float64(40)},
		{&service.Denial{Reason: service.DenialRateLimited, NextReset: &reset}, http.StatusTooManyRequests, "RATE_LIMITED", "next_reset", "2025-09-15T00:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(string(tc.denial.Reason), func(t *testing.T) {
			w := postIssue(t, NewGatePassHandler(&issuerMock{err: tc.denial}), `{"student_id":"SSC1","contact":"+263771234567"}`)
			require.Equal(t, tc.status, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
			assert.Equal(t, tc.value, body.Error.Details[tc.detail])
		})
	}
}

func TestGatePassHandlerIssueErrors(t *testing.T) {
	w := postIssue(t, NewGatePassHandler(&issuerMock{}), `{"student_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postIssue(t, NewGatePassHandler(&issuerMock{err: appErrors.ErrDirectoryUnavailable}), `{"student_id":"SSC1","contact":"+263771234567"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGatePassHandlerHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &issuerMock{history: []models.GatePass{{PassID: "gp-2"}, {PassID: "gp-1"}}}
	h := NewGatePassHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/students/SSC1/gatepasses?limit=500", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "SSC1"}}
	h.History(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SSC1", mock.lastHolder)
	assert.Equal(t, maxListLimit, mock.lastLimit)
	assert.Contains(t, w.Body.String(), `"count":2`)
}
