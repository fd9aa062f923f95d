package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

var checkpointRowColumns = []string{"run_id", "current_page", "started_at", "pages_completed", "records_synced", "invocations", "terminal", "status", "failure_reason", "updated_at"}

func TestSyncCheckpointCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	mock.ExpectExec("INSERT INTO sync_checkpoints").WillReturnResult(sqlmock.NewResult(0, 1))

	cp := &models.SyncCheckpoint{}
	require.NoError(t, repo.Create(context.Background(), cp))
	assert.NotEmpty(t, cp.RunID)
	assert.Equal(t, models.SyncStatusRunning, cp.Status)
	assert.False(t, cp.StartedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCheckpointSaveSkipsTerminalRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	mock.ExpectExec("UPDATE sync_checkpoints SET current_page").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sync_checkpoints SET current_page").WillReturnResult(sqlmock.NewResult(0, 0))

	cp := &models.SyncCheckpoint{RunID: "run-1", CurrentPage: 5, Status: models.SyncStatusRunning}
	ok, err := repo.Save(context.Background(), cp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Save(context.Background(), cp)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCheckpointMarkCancelled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sync_checkpoints SET terminal = TRUE, status = $1")).
		WithArgs(models.SyncStatusCancelled, sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkCancelled(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCheckpointGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(checkpointRowColumns).
		AddRow("run-1", 10, now, 10, 600, 2, true, "failed", "directory unavailable", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sync_checkpoints WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	cp, err := repo.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, cp.Status)
	require.NotNil(t, cp.FailureReason)
	assert.Equal(t, "directory unavailable", *cp.FailureReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCheckpointFindActiveNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE terminal = FALSE ORDER BY started_at DESC LIMIT 1")).
		WillReturnError(sql.ErrNoRows)

	cp, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCheckpointListRecent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSyncCheckpointRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(checkpointRowColumns).
		AddRow("run-2", 3, now, 3, 180, 1, false, "running", nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sync_checkpoints ORDER BY started_at DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(rows)

	list, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].FailureReason)
	require.NoError(t, mock.ExpectationsWereMet())
}
