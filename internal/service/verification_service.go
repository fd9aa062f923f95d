package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/messaging"
)

type passLookupRepository interface {
	GetByID(ctx context.Context, passID string) (*models.GatePass, error)
}

type scanRepository interface {
	Append(ctx context.Context, scan *models.ScanRecord) error
	ListByPass(ctx context.Context, passID string) ([]models.ScanRecord, error)
}

// VerificationService checks scanned passes and keeps the scan audit trail.
type VerificationService struct {
	passes     passLookupRepository
	scans      scanRepository
	names      studentNamer
	gateway    MessageGateway
	metrics    *MetricsService
	logger     *zap.Logger
	schoolName string
	timeout    time.Duration
	now        func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(passes passLookupRepository, scans scanRepository, names studentNamer, gateway MessageGateway, metrics *MetricsService, logger *zap.Logger, schoolName string, timeout time.Duration) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultExternalTimeout
	}
	return &VerificationService{
		passes:     passes,
		scans:      scans,
		names:      names,
		gateway:    gateway,
		metrics:    metrics,
		logger:     logger,
		schoolName: schoolName,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Verify evaluates a scan of passID by contact. Unknown passes return a
// NotFound result without recording a scan; every other attempt is recorded.
func (s *VerificationService) Verify(ctx context.Context, passID, contact string) (*models.VerificationResult, error) {
	passID = strings.TrimSpace(passID)
	contact = strings.TrimSpace(contact)
	if passID == "" || contact == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pass_id and contact are required")
	}

	now := s.now().UTC()
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordScan(models.VerificationNotFound)
			return &models.VerificationResult{Status: models.VerificationNotFound, PassID: passID, ScannedAt: now}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gate pass")
	}

	matched := contact == pass.AuthorizedContact
	status := models.VerificationValid
	switch {
	case pass.IsExpired(now):
		status = models.VerificationExpired
	case !matched:
		status = models.VerificationUnauthorizedScan
	}

	scan := &models.ScanRecord{
		PassID:                   pass.PassID,
		ScannedAt:                now,
		ScannedByContact:         contact,
		MatchedAuthorizedContact: matched,
		Result:                   status,
	}
	if err := s.scans.Append(ctx, scan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record scan")
	}
	s.metrics.RecordScan(status)

	expiresAt := pass.ExpiresAt
	result := &models.VerificationResult{
		Status:            status,
		Warning:           status == models.VerificationUnauthorizedScan,
		PassID:            pass.PassID,
		StudentID:         pass.StudentID,
		ExpiresAt:         &expiresAt,
		ScannedAt:         now,
		AuthorizedContact: pass.AuthorizedContact,
		ScannedBy:         contact,
	}
	if s.names != nil {
		result.StudentName = s.names.DisplayName(ctx, pass.StudentID)
	}
	if result.Warning {
		s.logger.Sugar().Warnw("gate pass scanned by unregistered contact", "pass_id", pass.PassID, "scanned_by", contact)
	}
	return result, nil
}

// AlertOwner notifies the authorized contact of an unauthorized scan.
// Failures are logged and returned for the caller to ignore.
func (s *VerificationService) AlertOwner(ctx context.Context, result *models.VerificationResult) error {
	if result == nil || !result.Warning || result.AuthorizedContact == "" {
		return nil
	}
	if s.gateway == nil {
		return errors.New("messaging gateway not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	msg := messaging.Message{
		To:   result.AuthorizedContact,
		Text: ownerAlert(s.schoolName, result.PassID, result.ScannedBy, result.ScannedAt),
	}
	if _, err := s.gateway.Send(callCtx, msg); err != nil {
		s.logger.Sugar().Warnw("owner alert failed", "pass_id", result.PassID, "error", err)
		return err
	}
	return nil
}

// ListScans returns the audit trail for a pass.
func (s *VerificationService) ListScans(ctx context.Context, passID string) ([]models.ScanRecord, error) {
	if _, err := s.passes.GetByID(ctx, passID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gate pass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gate pass")
	}
	scans, err := s.scans.ListByPass(ctx, passID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scans")
	}
	return scans, nil
}
