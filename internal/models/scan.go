package models

import "time"

// VerificationStatus is the outcome of a pass scan.
type VerificationStatus string

const (
	VerificationValid            VerificationStatus = "valid"
	VerificationExpired          VerificationStatus = "expired"
	VerificationNotFound         VerificationStatus = "not_found"
	VerificationUnauthorizedScan VerificationStatus = "unauthorized_scan"
)

// ScanRecord is one append-only verification attempt against an existing pass.
type ScanRecord struct {
	ID                       string             `db:"id" json:"id"`
	PassID                   string             `db:"pass_id" json:"pass_id"`
	ScannedAt                time.Time          `db:"scanned_at" json:"scanned_at"`
	ScannedByContact         string             `db:"scanned_by_contact" json:"scanned_by_contact"`
	MatchedAuthorizedContact bool               `db:"matched_authorized_contact" json:"matched_authorized_contact"`
	Result                   VerificationStatus `db:"result" json:"result"`
}

// VerificationResult is returned to the scanner. Warning is set for unauthorized scans.
type VerificationResult struct {
	Status      VerificationStatus `json:"status"`
	Warning     bool               `json:"warning"`
	PassID      string             `json:"pass_id"`
	StudentID   string             `json:"student_id,omitempty"`
	StudentName string             `json:"student_name,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	ScannedAt   time.Time          `json:"scanned_at"`
	// AuthorizedContact is used for owner alerts and never serialised.
	AuthorizedContact string `json:"-"`
	ScannedBy         string `json:"-"`
}
