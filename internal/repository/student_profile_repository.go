package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// StudentProfileRepository stores directory profiles mirrored by the sync job.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// Upsert inserts or refreshes a profile keyed by student id.
func (r *StudentProfileRepository) Upsert(ctx context.Context, profile *models.StudentProfile) error {
	now := time.Now().UTC()
	if profile.LastSyncedAt.IsZero() {
		profile.LastSyncedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (student_id, first_name, last_name, student_mobile, guardian_mobile, preferred_contact, last_synced_at, updated_at)
VALUES (:student_id, :first_name, :last_name, :student_mobile, :guardian_mobile, :preferred_contact, :last_synced_at, :updated_at)
ON CONFLICT (student_id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
student_mobile = EXCLUDED.student_mobile, guardian_mobile = EXCLUDED.guardian_mobile,
preferred_contact = EXCLUDED.preferred_contact, last_synced_at = EXCLUDED.last_synced_at, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert student profile: %w", err)
	}
	return nil
}

// GetByID returns a profile by student id. Missing rows wrap sql.ErrNoRows.
func (r *StudentProfileRepository) GetByID(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	const query = `SELECT student_id, first_name, last_name, student_mobile, guardian_mobile, preferred_contact, last_synced_at, updated_at
FROM student_profiles WHERE student_id = $1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, studentID); err != nil {
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	return &profile, nil
}
