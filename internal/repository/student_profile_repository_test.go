package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

func TestStudentProfileUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_id) DO UPDATE")).WillReturnResult(sqlmock.NewResult(0, 1))

	profile := &models.StudentProfile{StudentID: "S1", FirstName: "Tariro", LastName: "Moyo", GuardianMobile: strPtr("+263771234567")}
	require.NoError(t, repo.Upsert(context.Background(), profile))
	assert.False(t, profile.LastSyncedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentProfileGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentProfileRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"student_id", "first_name", "last_name", "student_mobile", "guardian_mobile", "preferred_contact", "last_synced_at", "updated_at"}).
		AddRow("S1", "Tariro", "Moyo", nil, "+263771234567", "+263771234567", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_profiles WHERE student_id = $1")).
		WithArgs("S1").
		WillReturnRows(rows)

	profile, err := repo.GetByID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "Tariro Moyo", profile.FullName())
	assert.Nil(t, profile.StudentMobile)
	require.NoError(t, mock.ExpectationsWereMet())
}
