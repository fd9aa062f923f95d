package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// FailedSyncRepository records profiles rejected during a sync run.
type FailedSyncRepository struct {
	db *sqlx.DB
}

// NewFailedSyncRepository constructs the repository.
func NewFailedSyncRepository(db *sqlx.DB) *FailedSyncRepository {
	return &FailedSyncRepository{db: db}
}

// Create inserts a failure row.
func (r *FailedSyncRepository) Create(ctx context.Context, failure *models.FailedSync) error {
	if failure.ID == "" {
		failure.ID = uuid.NewString()
	}
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO failed_syncs (id, run_id, student_id, error, created_at) VALUES (:id, :run_id, :student_id, :error, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, failure); err != nil {
		return fmt.Errorf("create failed sync: %w", err)
	}
	return nil
}

// CountByRun returns how many profiles failed in a run.
func (r *FailedSyncRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	const query = `SELECT COUNT(*) FROM failed_syncs WHERE run_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, runID); err != nil {
		return 0, fmt.Errorf("count failed syncs: %w", err)
	}
	return count, nil
}
