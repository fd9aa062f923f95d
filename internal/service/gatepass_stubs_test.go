package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/repository"
	"github.com/noah-isme/sma-gatepass-api/pkg/calendar"
	"github.com/noah-isme/sma-gatepass-api/pkg/directory"
	"github.com/noah-isme/sma-gatepass-api/pkg/export"
	"github.com/noah-isme/sma-gatepass-api/pkg/messaging"
)

var schoolZone = time.FixedZone("CAT", 2*60*60)

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.Default(schoolZone)
	require.NoError(t, err)
	return cal
}

type ledgerKey struct {
	student string
	week    string
}

// memoryLedger mirrors the single-statement upsert-and-increment.
type memoryLedger struct {
	mu     sync.Mutex
	counts map[ledgerKey]int
	err    error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{counts: make(map[ledgerKey]int)}
}

func (l *memoryLedger) Increment(_ context.Context, studentID string, weekStart, _ time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	key := ledgerKey{studentID, weekStart.Format("2006-01-02")}
	l.counts[key]++
	return l.counts[key], nil
}

func (l *memoryLedger) count(studentID string, weekStart time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ledgerKey{studentID, weekStart.Format("2006-01-02")}]
}

type feeDirectoryStub struct {
	bills       []directory.Bill
	payments    []directory.Payment
	billsErr    error
	paymentsErr error
	calls       int
}

func (d *feeDirectoryStub) BilledFees(context.Context, string, string) ([]directory.Bill, error) {
	d.calls++
	return d.bills, d.billsErr
}

func (d *feeDirectoryStub) Payments(context.Context, string, string) ([]directory.Payment, error) {
	return d.payments, d.paymentsErr
}

func paidDirectory(billed, paid directory.Cents) *feeDirectoryStub {
	return &feeDirectoryStub{
		bills:    []directory.Bill{{FeeType: "Tuition", Amount: billed}},
		payments: []directory.Payment{{Amount: paid, Date: "2025-09-01"}},
	}
}

// memoryPassStore implements both the issuer and verifier pass repositories.
type memoryPassStore struct {
	mu        sync.Mutex
	passes    map[string]*models.GatePass
	order     []string
	attaches  int
	createErr error
	attachErr error
}

func newMemoryPassStore() *memoryPassStore {
	return &memoryPassStore{passes: make(map[string]*models.GatePass)}
}

func (s *memoryPassStore) Create(_ context.Context, pass *models.GatePass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, exists := s.passes[pass.PassID]; exists {
		return fmt.Errorf("duplicate pass id %s", pass.PassID)
	}
	cp := *pass
	s.passes[pass.PassID] = &cp
	s.order = append(s.order, pass.PassID)
	return nil
}

func (s *memoryPassStore) AttachDocument(_ context.Context, passID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	pass, ok := s.passes[passID]
	if !ok {
		return sql.ErrNoRows
	}
	if pass.DocumentRef != nil {
		return repository.ErrDocumentAlreadyAttached
	}
	pass.DocumentRef = &ref
	s.attaches++
	return nil
}

func (s *memoryPassStore) GetByID(_ context.Context, passID string) (*models.GatePass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok {
		return nil, fmt.Errorf("get gate pass: %w", sql.ErrNoRows)
	}
	cp := *pass
	return &cp, nil
}

func (s *memoryPassStore) ListByStudent(_ context.Context, studentID string, limit int) ([]models.GatePass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GatePass
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if pass := s.passes[s.order[i]]; pass.StudentID == studentID {
			out = append(out, *pass)
		}
	}
	return out, nil
}

type rendererStub struct {
	failures int
	calls    int
	last     export.GatePassDocument
}

func (r *rendererStub) Render(doc export.GatePassDocument) ([]byte, error) {
	r.calls++
	r.last = doc
	if r.calls <= r.failures {
		return nil, errors.New("render failed")
	}
	return []byte("%PDF-1.3 " + doc.PassID), nil
}

type documentStoreStub struct {
	puts    map[string][]byte
	putErr  error
	signErr error
}

func newDocumentStoreStub() *documentStoreStub {
	return &documentStoreStub{puts: make(map[string][]byte)}
}

func (s *documentStoreStub) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.puts[key] = data
	return "s3://passes/" + key, nil
}

func (s *documentStoreStub) SignedURL(_ context.Context, ref string, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return fmt.Sprintf("https://cdn.example.com/%s?ttl=%d", ref, int(ttl.Seconds())), nil
}

type gatewayStub struct {
	mu       sync.Mutex
	sent     []messaging.Message
	failDocs bool
	failAll  bool
}

func (g *gatewayStub) Send(_ context.Context, msg messaging.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll || (g.failDocs && msg.HasDocument()) {
		return "", errors.New("gateway down")
	}
	g.sent = append(g.sent, msg)
	return fmt.Sprintf("wamid.%d", len(g.sent)), nil
}

func (g *gatewayStub) last() messaging.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return messaging.Message{}
	}
	return g.sent[len(g.sent)-1]
}

type namerStub map[string]string

func (n namerStub) DisplayName(_ context.Context, studentID string) string {
	return n[studentID]
}
