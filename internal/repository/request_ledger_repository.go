package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

const weekStartLayout = "2006-01-02"

// RequestLedgerRepository tracks weekly issue requests per student.
type RequestLedgerRepository struct {
	db *sqlx.DB
}

// NewRequestLedgerRepository constructs the repository.
func NewRequestLedgerRepository(db *sqlx.DB) *RequestLedgerRepository {
	return &RequestLedgerRepository{db: db}
}

// Increment atomically creates or bumps the (student, week) row and returns the
// post-increment count. Concurrent callers on the same key see distinct counts.
func (r *RequestLedgerRepository) Increment(ctx context.Context, studentID string, weekStart, now time.Time) (int, error) {
	const query = `INSERT INTO gate_pass_request_ledger (id, student_id, week_start, request_count, last_request_at)
VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (student_id, week_start) DO UPDATE
SET request_count = gate_pass_request_ledger.request_count + 1, last_request_at = EXCLUDED.last_request_at
RETURNING request_count`
	var count int
	if err := r.db.QueryRowxContext(ctx, query, uuid.NewString(), studentID, weekStart.Format(weekStartLayout), now.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment request ledger: %w", err)
	}
	return count, nil
}

// Get returns the ledger row for a student's week. Missing rows wrap sql.ErrNoRows.
func (r *RequestLedgerRepository) Get(ctx context.Context, studentID string, weekStart time.Time) (*models.RequestLedgerEntry, error) {
	const query = `SELECT id, student_id, week_start, request_count, last_request_at
FROM gate_pass_request_ledger WHERE student_id = $1 AND week_start = $2`
	var entry models.RequestLedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, weekStart.Format(weekStartLayout)); err != nil {
		return nil, fmt.Errorf("get request ledger: %w", err)
	}
	return &entry, nil
}
