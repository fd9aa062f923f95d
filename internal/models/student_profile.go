package models

import "time"

// StudentProfile is the locally mirrored directory profile.
type StudentProfile struct {
	StudentID        string    `db:"student_id" json:"student_id"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	StudentMobile    *string   `db:"student_mobile" json:"student_mobile,omitempty"`
	GuardianMobile   *string   `db:"guardian_mobile" json:"guardian_mobile,omitempty"`
	PreferredContact *string   `db:"preferred_contact" json:"preferred_contact,omitempty"`
	LastSyncedAt     time.Time `db:"last_synced_at" json:"last_synced_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last names.
func (p StudentProfile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
