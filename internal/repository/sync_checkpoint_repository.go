package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

const checkpointColumns = `run_id, current_page, started_at, pages_completed, records_synced, invocations, terminal, status, failure_reason, updated_at`

// SyncCheckpointRepository persists profile sync progress.
type SyncCheckpointRepository struct {
	db *sqlx.DB
}

// NewSyncCheckpointRepository constructs the repository.
func NewSyncCheckpointRepository(db *sqlx.DB) *SyncCheckpointRepository {
	return &SyncCheckpointRepository{db: db}
}

// Create inserts the checkpoint for a new run.
func (r *SyncCheckpointRepository) Create(ctx context.Context, cp *models.SyncCheckpoint) error {
	if cp.RunID == "" {
		cp.RunID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = models.SyncStatusRunning
	}
	now := time.Now().UTC()
	if cp.StartedAt.IsZero() {
		cp.StartedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	const query = `INSERT INTO sync_checkpoints (` + checkpointColumns + `)
VALUES (:run_id, :current_page, :started_at, :pages_completed, :records_synced, :invocations, :terminal, :status, :failure_reason, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cp); err != nil {
		return fmt.Errorf("create sync checkpoint: %w", err)
	}
	return nil
}

// Get returns a checkpoint by run id. Missing rows wrap sql.ErrNoRows.
func (r *SyncCheckpointRepository) Get(ctx context.Context, runID string) (*models.SyncCheckpoint, error) {
	const query = `SELECT ` + checkpointColumns + ` FROM sync_checkpoints WHERE run_id = $1`
	var cp models.SyncCheckpoint
	if err := r.db.GetContext(ctx, &cp, query, runID); err != nil {
		return nil, fmt.Errorf("get sync checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the progress fields of a non-terminal checkpoint. Returns false
// when the row was already terminal, so an out-of-band cancel is never overwritten.
func (r *SyncCheckpointRepository) Save(ctx context.Context, cp *models.SyncCheckpoint) (bool, error) {
	cp.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sync_checkpoints SET current_page = :current_page, pages_completed = :pages_completed,
records_synced = :records_synced, invocations = :invocations, terminal = :terminal, status = :status,
failure_reason = :failure_reason, updated_at = :updated_at
WHERE run_id = :run_id AND terminal = FALSE`
	res, err := r.db.NamedExecContext(ctx, query, cp)
	if err != nil {
		return false, fmt.Errorf("save sync checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save sync checkpoint: %w", err)
	}
	return affected > 0, nil
}

// MarkCancelled terminates a running checkpoint. Returns false if it was already terminal.
func (r *SyncCheckpointRepository) MarkCancelled(ctx context.Context, runID string) (bool, error) {
	const query = `UPDATE sync_checkpoints SET terminal = TRUE, status = $1, updated_at = $2 WHERE run_id = $3 AND terminal = FALSE`
	res, err := r.db.ExecContext(ctx, query, models.SyncStatusCancelled, time.Now().UTC(), runID)
	if err != nil {
		return false, fmt.Errorf("cancel sync checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel sync checkpoint: %w", err)
	}
	return affected > 0, nil
}

// FindActive returns the newest non-terminal checkpoint, or nil when none exists.
func (r *SyncCheckpointRepository) FindActive(ctx context.Context) (*models.SyncCheckpoint, error) {
	const query = `SELECT ` + checkpointColumns + ` FROM sync_checkpoints WHERE terminal = FALSE ORDER BY started_at DESC LIMIT 1`
	var cp models.SyncCheckpoint
	if err := r.db.GetContext(ctx, &cp, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active sync checkpoint: %w", err)
	}
	return &cp, nil
}

// ListRecent returns the newest checkpoints.
func (r *SyncCheckpointRepository) ListRecent(ctx context.Context, limit int) ([]models.SyncCheckpoint, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT ` + checkpointColumns + ` FROM sync_checkpoints ORDER BY started_at DESC LIMIT $1`
	checkpoints := make([]models.SyncCheckpoint, 0)
	if err := r.db.SelectContext(ctx, &checkpoints, query, limit); err != nil {
		return nil, fmt.Errorf("list sync checkpoints: %w", err)
	}
	return checkpoints, nil
}
