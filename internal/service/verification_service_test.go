package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

type memoryScans struct {
	mu        sync.Mutex
	records   []models.ScanRecord
	appendErr error
}

func (m *memoryScans) Append(_ context.Context, scan *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, *scan)
	return nil
}

func (m *memoryScans) ListByPass(_ context.Context, passID string) ([]models.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScanRecord
	for _, r := range m.records {
		if r.PassID == passID {
			out = append(out, r)
		}
	}
	return out, nil
}

type verifierFixture struct {
	svc     *VerificationService
	passes  *memoryPassStore
	scans   *memoryScans
	gateway *gatewayStub
}

func newVerifierFixture(t *testing.T, now time.Time) *verifierFixture {
	t.Helper()
	f := &verifierFixture{
		passes:  newMemoryPassStore(),
		scans:   &memoryScans{},
		gateway: &gatewayStub{},
	}
	f.svc = NewVerificationService(f.passes, f.scans, namerStub{testStudent: "Tariro Moyo"}, f.gateway, NewMetricsService(), zap.NewNop(), "Shining Smiles Group of Schools", 0)
	f.svc.now = func() time.Time { return now }

	require.NoError(t, f.passes.Create(context.Background(), &models.GatePass{
		PassID:            "gp-valid",
		StudentID:         testStudent,
		IssuedAt:          time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC),
		ExpiresAt:         time.Date(2025, time.November, 30, 21, 59, 59, 0, time.UTC),
		PaymentPercentage: 100,
		AuthorizedContact: testContact,
		TermCode:          "2025-3",
		Tier:              models.TierFull,
	}))
	return f
}

var verifyNow = time.Date(2025, time.September, 12, 5, 45, 0, 0, time.UTC)

func TestVerifyValidPass(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)

	result, err := f.svc.Verify(context.Background(), " gp-valid ", testContact)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationValid, result.Status)
	assert.False(t, result.Warning)
	assert.Equal(t, "Tariro Moyo", result.StudentName)
	require.Len(t, f.scans.records, 1)
	assert.True(t, f.scans.records[0].MatchedAuthorizedContact)
	assert.Equal(t, models.VerificationValid, f.scans.records[0].Result)
}

func TestVerifyUnauthorizedScanWarnsAndRecords(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)

	result, err := f.svc.Verify(context.Background(), "gp-valid", "+263779999999")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationUnauthorizedScan, result.Status)
	assert.True(t, result.Warning)
	require.Len(t, f.scans.records, 1)
	assert.False(t, f.scans.records[0].MatchedAuthorizedContact)

	require.NoError(t, f.svc.AlertOwner(context.Background(), result))
	alert := f.gateway.last()
	assert.Equal(t, testContact, alert.To)
	assert.Contains(t, alert.Text, "scanned from +263779999999")
}

func TestVerifyExpiredTakesPrecedence(t *testing.T) {
	f := newVerifierFixture(t, time.Date(2025, time.December, 1, 6, 0, 0, 0, time.UTC))

	result, err := f.svc.Verify(context.Background(), "gp-valid", "+263779999999")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationExpired, result.Status)
	assert.False(t, result.Warning)
	require.Len(t, f.scans.records, 1)
	assert.Equal(t, models.VerificationExpired, f.scans.records[0].Result)
}

func TestVerifyUnknownPassIsNotRecorded(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)

	result, err := f.svc.Verify(context.Background(), "gp-missing", testContact)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationNotFound, result.Status)
	assert.Empty(t, f.scans.records)
}

func TestVerifyRequiresInputs(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)

	_, err := f.svc.Verify(context.Background(), "gp-valid", "  ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVerifyScanWriteFailure(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)
	f.scans.appendErr = errors.New("disk full")

	_, err := f.svc.Verify(context.Background(), "gp-valid", testContact)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAlertOwnerSkipsValidScans(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)

	require.NoError(t, f.svc.AlertOwner(context.Background(), &models.VerificationResult{Status: models.VerificationValid}))
	assert.Empty(t, f.gateway.sent)
}

func TestAlertOwnerReportsGatewayFailure(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)
	f.gateway.failAll = true

	err := f.svc.AlertOwner(context.Background(), &models.VerificationResult{
		Status:            models.VerificationUnauthorizedScan,
		Warning:           true,
		PassID:            "gp-valid",
		AuthorizedContact: testContact,
		ScannedBy:         "+263779999999",
		ScannedAt:         verifyNow,
	})
	assert.Error(t, err)
}

func TestListScans(t *testing.T) {
	f := newVerifierFixture(t, verifyNow)
	_, err := f.svc.Verify(context.Background(), "gp-valid", testContact)
	require.NoError(t, err)
	_, err = f.svc.Verify(context.Background(), "gp-valid", "+263779999999")
	require.NoError(t, err)

	scans, err := f.svc.ListScans(context.Background(), "gp-valid")
	require.NoError(t, err)
	assert.Len(t, scans, 2)

	_, err = f.svc.ListScans(context.Background(), "gp-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
