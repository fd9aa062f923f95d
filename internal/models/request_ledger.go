package models

import "time"

// RequestLedgerEntry counts issue requests for one student in one Monday-start week.
type RequestLedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	WeekStart     time.Time `db:"week_start" json:"week_start"`
	RequestCount  int       `db:"request_count" json:"request_count"`
	LastRequestAt time.Time `db:"last_request_at" json:"last_request_at"`
}
