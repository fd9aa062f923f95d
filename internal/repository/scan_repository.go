package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// ScanRepository appends and lists verification attempts. Rows are never updated.
type ScanRepository struct {
	db *sqlx.DB
}

// NewScanRepository constructs the repository.
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Append inserts a scan record.
func (r *ScanRepository) Append(ctx context.Context, scan *models.ScanRecord) error {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = time.Now().UTC()
	}
	const query = `INSERT INTO gate_pass_scans (id, pass_id, scanned_at, scanned_by_contact, matched_authorized_contact, result)
VALUES (:id, :pass_id, :scanned_at, :scanned_by_contact, :matched_authorized_contact, :result)`
	if _, err := r.db.NamedExecContext(ctx, query, scan); err != nil {
		return fmt.Errorf("append gate pass scan: %w", err)
	}
	return nil
}

// ListByPass returns scans for a pass in chronological order.
func (r *ScanRepository) ListByPass(ctx context.Context, passID string) ([]models.ScanRecord, error) {
	const query = `SELECT id, pass_id, scanned_at, scanned_by_contact, matched_authorized_contact, result
FROM gate_pass_scans WHERE pass_id = $1 ORDER BY scanned_at ASC`
	scans := make([]models.ScanRecord, 0)
	if err := r.db.SelectContext(ctx, &scans, query, passID); err != nil {
		return nil, fmt.Errorf("list gate pass scans: %w", err)
	}
	return scans, nil
}
