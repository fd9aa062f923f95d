package models

import "time"

// SyncStatus captures the lifecycle of a profile sync run.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// SyncOutcome is how a single invocation ended.
type SyncOutcome string

const (
	SyncOutcomeContinuing SyncOutcome = "continuing"
	SyncOutcomeCompleted  SyncOutcome = "completed"
	SyncOutcomeFailed     SyncOutcome = "failed"
	SyncOutcomeCancelled  SyncOutcome = "cancelled"
)

// SyncTask identifies the run and cursor an invocation should resume from.
// An empty RunID starts a new run.
type SyncTask struct {
	RunID     string `json:"run_id"`
	StartPage int    `json:"start_page"`
}

// SyncCheckpoint is the persisted progress of a sync run.
type SyncCheckpoint struct {
	RunID          string     `db:"run_id" json:"run_id"`
	CurrentPage    int        `db:"current_page" json:"current_page"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	PagesCompleted int        `db:"pages_completed" json:"pages_completed"`
	RecordsSynced  int        `db:"records_synced" json:"records_synced"`
	Invocations    int        `db:"invocations" json:"invocations"`
	Terminal       bool       `db:"terminal" json:"terminal"`
	Status         SyncStatus `db:"status" json:"status"`
	FailureReason  *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FailedSync records a profile that could not be stored during a run.
type FailedSync struct {
	ID        string    `db:"id" json:"id"`
	RunID     string    `db:"run_id" json:"run_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Error     string    `db:"error" json:"error"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SyncRunStatus is the admin view of a run.
type SyncRunStatus struct {
	SyncCheckpoint
	FailedRecords int `json:"failed_records"`
}
