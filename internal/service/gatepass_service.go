package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/policy"
	"github.com/noah-isme/sma-gatepass-api/pkg/calendar"
	"github.com/noah-isme/sma-gatepass-api/pkg/directory"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/export"
	"github.com/noah-isme/sma-gatepass-api/pkg/idgen"
	"github.com/noah-isme/sma-gatepass-api/pkg/messaging"
)

const (
	pdfContentType          = "application/pdf"
	defaultDocumentTTL      = time.Hour
	defaultDocumentAttempts = 2
	defaultExternalTimeout  = 10 * time.Second
)

type feeDirectory interface {
	BilledFees(ctx context.Context, studentID, termCode string) ([]directory.Bill, error)
	Payments(ctx context.Context, studentID, termCode string) ([]directory.Payment, error)
}

type tierLimiter interface {
	CheckAndIncrement(ctx context.Context, studentID string, now time.Time) (RateDecision, error)
}

type gatePassRepository interface {
	Create(ctx context.Context, pass *models.GatePass) error
	AttachDocument(ctx context.Context, passID, ref string) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.GatePass, error)
}

type passRenderer interface {
	Render(doc export.GatePassDocument) ([]byte, error)
}

// DocumentStore persists rendered documents and hands out expiring links.
type DocumentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// MessageGateway delivers text or documents to a contact.
type MessageGateway interface {
	Send(ctx context.Context, msg messaging.Message) (string, error)
}

type studentNamer interface {
	DisplayName(ctx context.Context, studentID string) string
}

// GatePassConfig tunes issuance and delivery.
type GatePassConfig struct {
	SchoolName       string
	VerifyBaseURL    string
	DocumentTTL      time.Duration
	DocumentAttempts int
	ExternalTimeout  time.Duration
}

// GatePassService issues gate passes after term, payment and rate checks.
type GatePassService struct {
	calendar  *calendar.Calendar
	directory feeDirectory
	limiter   tierLimiter
	passes    gatePassRepository
	renderer  passRenderer
	store     DocumentStore
	gateway   MessageGateway
	names     studentNamer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GatePassConfig
	now       func() time.Time
	newID     func() (string, error)
}

// GatePassDeps groups the collaborators of GatePassService.
type GatePassDeps struct {
	Calendar  *calendar.Calendar
	Directory feeDirectory
	Limiter   tierLimiter
	Passes    gatePassRepository
	Renderer  passRenderer
	Store     DocumentStore
	Gateway   MessageGateway
	Names     studentNamer
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewGatePassService constructs a GatePassService.
func NewGatePassService(deps GatePassDeps, cfg GatePassConfig) *GatePassService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if cfg.DocumentTTL <= 0 {
		cfg.DocumentTTL = defaultDocumentTTL
	}
	if cfg.DocumentAttempts <= 0 {
		cfg.DocumentAttempts = defaultDocumentAttempts
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = defaultExternalTimeout
	}
	cfg.VerifyBaseURL = strings.TrimRight(cfg.VerifyBaseURL, "/")
	return &GatePassService{
		calendar:  deps.Calendar,
		directory: deps.Directory,
		limiter:   deps.Limiter,
		passes:    deps.Passes,
		renderer:  deps.Renderer,
		store:     deps.Store,
		gateway:   deps.Gateway,
		names:     deps.Names,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     idgen.PassID,
	}
}

// Issue runs the issuance pipeline. Validation rejections are returned as *Denial.
// Once the pass is persisted, delivery problems only change the reported Delivery.
// A student who already holds a valid pass receives a new one.
func (s *GatePassService) Issue(ctx context.Context, req models.IssueGatePassRequest) (*models.IssueGatePassResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gate pass request")
	}

	now := s.now().In(s.calendar.Location())
	term, ok := s.calendar.Current(now)
	if !ok {
		denial := &Denial{Reason: DenialOutsideTerm}
		if next, found := s.calendar.Next(now); found {
			start := next.Start
			denial.NextTermStart = &start
		}
		return nil, s.deny(req.StudentID, denial)
	}

	pct, err := s.paymentPercentage(ctx, req.StudentID, term.Code)
	if err != nil {
		var denial *Denial
		if errors.As(err, &denial) {
			return nil, s.deny(req.StudentID, denial)
		}
		return nil, err
	}

	expiry := policy.ComputeExpiry(pct, term.End, s.calendar.Today(now))
	if !expiry.Issuable {
		return nil, s.deny(req.StudentID, &Denial{Reason: DenialInsufficientPayment, PaymentPercentage: pct})
	}

	decision, err := s.limiter.CheckAndIncrement(ctx, req.StudentID, now)
	if err != nil {
		return nil, err
	}
	if decision.Tier == models.TierBlocked {
		reset := decision.NextReset
		return nil, s.deny(req.StudentID, &Denial{Reason: DenialRateLimited, NextReset: &reset})
	}

	passID, err := s.newID()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate pass id")
	}
	pass := &models.GatePass{
		PassID:            passID,
		StudentID:         req.StudentID,
		IssuedAt:          now,
		ExpiresAt:         s.calendar.EndOfDay(expiry.ExpiresOn),
		PaymentPercentage: pct,
		AuthorizedContact: req.Contact,
		TermCode:          term.Code,
		Tier:              decision.Tier,
	}
	if !pass.ExpiresAt.After(pass.IssuedAt) {
		pass.ExpiresAt = pass.IssuedAt.Add(time.Second)
	}
	if err := s.passes.Create(ctx, pass); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save gate pass")
	}

	delivery := s.deliver(ctx, pass)
	s.metrics.RecordPassIssued(pass.Tier, delivery)
	s.logger.Sugar().Infow("gate pass issued",
		"pass_id", pass.PassID,
		"student_id", pass.StudentID,
		"tier", pass.Tier,
		"delivery", delivery,
		"weekly_requests", decision.Count,
	)

	return &models.IssueGatePassResult{
		PassID:            pass.PassID,
		StudentID:         pass.StudentID,
		IssuedAt:          pass.IssuedAt,
		ExpiresAt:         pass.ExpiresAt,
		PaymentPercentage: pass.PaymentPercentage,
		TermCode:          pass.TermCode,
		Tier:              pass.Tier,
		Delivery:          delivery,
		WeeklyRequests:    decision.Count,
	}, nil
}

// History lists a student's most recent passes, newest first.
func (s *GatePassService) History(ctx context.Context, studentID string, limit int) ([]models.GatePass, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	passes, err := s.passes.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list gate passes")
	}
	return passes, nil
}

// VerifyURL is the link encoded in the pass QR code.
func (s *GatePassService) VerifyURL(passID, contact string) string {
	q := url.Values{}
	q.Set("pass_id", passID)
	q.Set("contact", contact)
	return s.cfg.VerifyBaseURL + "/verify-pass?" + q.Encode()
}

func (s *GatePassService) deny(studentID string, d *Denial) error {
	s.metrics.RecordDenial(d.Reason)
	s.logger.Sugar().Infow("gate pass denied", "student_id", studentID, "reason", d.Reason)
	return d
}

func (s *GatePassService) paymentPercentage(ctx context.Context, studentID, termCode string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()

	start := time.Now()
	bills, err := s.directory.BilledFees(callCtx, studentID, termCode)
	s.metrics.ObserveExternalCall("directory", time.Since(start))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return 0, &Denial{Reason: DenialNoBillingRecord}
		}
		return 0, s.directoryUnavailable(studentID, err)
	}

	start = time.Now()
	payments, err := s.directory.Payments(callCtx, studentID, termCode)
	s.metrics.ObserveExternalCall("directory", time.Since(start))
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return 0, s.directoryUnavailable(studentID, err)
	}

	pct, ok := policy.PaymentPercentage(int64(directory.TotalPaid(payments)), int64(directory.TotalBilled(bills)))
	if !ok {
		return 0, &Denial{Reason: DenialNoBillingRecord}
	}
	return pct, nil
}

func (s *GatePassService) directoryUnavailable(studentID string, err error) error {
	s.logger.Sugar().Warnw("directory lookup failed", "student_id", studentID, "transient", directory.IsTransient(err), "error", err)
	return appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status, appErrors.ErrDirectoryUnavailable.Message)
}

func (s *GatePassService) message(ctx context.Context, pass *models.GatePass) passMessage {
	var name string
	if s.names != nil {
		name = s.names.DisplayName(ctx, pass.StudentID)
	}
	return passMessage{
		SchoolName:        s.cfg.SchoolName,
		StudentID:         pass.StudentID,
		StudentName:       name,
		PassID:            pass.PassID,
		IssuedAt:          pass.IssuedAt,
		ExpiresAt:         pass.ExpiresAt,
		PaymentPercentage: pass.PaymentPercentage,
		Contact:           pass.AuthorizedContact,
		VerifyURL:         s.VerifyURL(pass.PassID, pass.AuthorizedContact),
	}
}

func (s *GatePassService) deliver(ctx context.Context, pass *models.GatePass) models.DeliveryOutcome {
	msg := s.message(ctx, pass)
	log := s.logger.Sugar().With("pass_id", pass.PassID, "student_id", pass.StudentID)

	if pass.Tier == models.TierFull {
		link, err := s.prepareDocument(ctx, pass, msg)
		if err == nil {
			err = s.send(ctx, messaging.Message{
				To:          pass.AuthorizedContact,
				Text:        documentCaption(msg),
				DocumentURL: link,
				Filename:    pass.PassID + ".pdf",
			})
			if err == nil {
				return models.DeliveryDocument
			}
		}
		log.Warnw("document delivery degraded to text", "error", err)
	}

	if err := s.send(ctx, messaging.Message{To: pass.AuthorizedContact, Text: textPass(msg)}); err != nil {
		log.Errorw("gate pass delivery failed", "error", err)
		return models.DeliveryFailed
	}
	return models.DeliveryText
}

// prepareDocument renders, stores and attaches the PDF, retrying the whole step
// once, then returns a signed link to it.
func (s *GatePassService) prepareDocument(ctx context.Context, pass *models.GatePass, msg passMessage) (string, error) {
	if s.renderer == nil || s.store == nil {
		return "", fmt.Errorf("document delivery not configured")
	}

	var (
		ref     string
		lastErr error
	)
	for attempt := 1; attempt <= s.cfg.DocumentAttempts; attempt++ {
		ref, lastErr = s.storeDocument(ctx, pass, msg)
		if lastErr == nil {
			break
		}
		s.logger.Sugar().Warnw("gate pass document attempt failed", "pass_id", pass.PassID, "attempt", attempt, "error", lastErr)
	}
	if lastErr != nil {
		return "", lastErr
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()
	link, err := s.store.SignedURL(callCtx, ref, s.cfg.DocumentTTL)
	if err != nil {
		return "", fmt.Errorf("sign document url: %w", err)
	}
	return link, nil
}

func (s *GatePassService) storeDocument(ctx context.Context, pass *models.GatePass, msg passMessage) (string, error) {
	data, err := s.renderer.Render(export.GatePassDocument{
		SchoolName:        msg.SchoolName,
		StudentID:         pass.StudentID,
		StudentName:       msg.StudentName,
		PassID:            pass.PassID,
		IssuedAt:          pass.IssuedAt,
		ExpiresAt:         pass.ExpiresAt,
		PaymentPercentage: pass.PaymentPercentage,
		AuthorizedContact: pass.AuthorizedContact,
		VerifyURL:         msg.VerifyURL,
	})
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()
	start := time.Now()
	ref, err := s.store.Put(callCtx, documentKey(pass), data, pdfContentType)
	s.metrics.ObserveExternalCall("document_store", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	if err := s.passes.AttachDocument(ctx, pass.PassID, ref); err != nil {
		return "", fmt.Errorf("attach document: %w", err)
	}
	pass.DocumentRef = &ref
	return ref, nil
}

func (s *GatePassService) send(ctx context.Context, msg messaging.Message) error {
	if s.gateway == nil {
		return fmt.Errorf("messaging gateway not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()
	start := time.Now()
	_, err := s.gateway.Send(callCtx, msg)
	s.metrics.ObserveExternalCall("messaging", time.Since(start))
	return err
}

func documentKey(pass *models.GatePass) string {
	return fmt.Sprintf("%s/%s.pdf", pass.TermCode, pass.PassID)
}
