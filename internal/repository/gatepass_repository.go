package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// ErrDocumentAlreadyAttached is returned when a pass already carries a document ref.
var ErrDocumentAlreadyAttached = errors.New("document already attached")

const gatePassColumns = `pass_id, student_id, issued_at, expires_at, payment_percentage, authorized_contact, document_ref, term_code, tier`

// GatePassRepository persists issued gate passes. Passes are never updated except
// for the one-time document attachment and are never deleted.
type GatePassRepository struct {
	db *sqlx.DB
}

// NewGatePassRepository constructs the repository.
func NewGatePassRepository(db *sqlx.DB) *GatePassRepository {
	return &GatePassRepository{db: db}
}

// Create inserts a new pass.
func (r *GatePassRepository) Create(ctx context.Context, pass *models.GatePass) error {
	if pass.PassID == "" {
		return fmt.Errorf("create gate pass: pass id required")
	}
	if !pass.ExpiresAt.After(pass.IssuedAt) {
		return fmt.Errorf("create gate pass: expires_at must be after issued_at")
	}
	const query = `INSERT INTO gate_passes (` + gatePassColumns + `)
VALUES (:pass_id, :student_id, :issued_at, :expires_at, :payment_percentage, :authorized_contact, :document_ref, :term_code, :tier)`
	if _, err := r.db.NamedExecContext(ctx, query, pass); err != nil {
		return fmt.Errorf("create gate pass: %w", err)
	}
	return nil
}

// GetByID returns a pass by its identifier. Missing rows wrap sql.ErrNoRows.
func (r *GatePassRepository) GetByID(ctx context.Context, passID string) (*models.GatePass, error) {
	const query = `SELECT ` + gatePassColumns + ` FROM gate_passes WHERE pass_id = $1`
	var pass models.GatePass
	if err := r.db.GetContext(ctx, &pass, query, passID); err != nil {
		return nil, fmt.Errorf("get gate pass: %w", err)
	}
	return &pass, nil
}

// AttachDocument sets document_ref once. A second attach returns ErrDocumentAlreadyAttached.
func (r *GatePassRepository) AttachDocument(ctx context.Context, passID, ref string) error {
	const query = `UPDATE gate_passes SET document_ref = $1 WHERE pass_id = $2 AND document_ref IS NULL`
	res, err := r.db.ExecContext(ctx, query, ref, passID)
	if err != nil {
		return fmt.Errorf("attach gate pass document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach gate pass document: %w", err)
	}
	if affected == 0 {
		return ErrDocumentAlreadyAttached
	}
	return nil
}

// ListByStudent returns the most recent passes for a student.
func (r *GatePassRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.GatePass, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + gatePassColumns + ` FROM gate_passes WHERE student_id = $1 ORDER BY issued_at DESC LIMIT $2`
	var passes []models.GatePass
	if err := r.db.SelectContext(ctx, &passes, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list gate passes: %w", err)
	}
	return passes, nil
}
