package models

import "time"

// Tier is the delivery mode granted by the weekly request count.
type Tier string

const (
	TierFull     Tier = "full"
	TierTextOnly Tier = "text_only"
	TierBlocked  Tier = "blocked"
)

// DeliveryOutcome records how an issued pass reached the requester.
type DeliveryOutcome string

const (
	DeliveryDocument DeliveryOutcome = "document"
	DeliveryText     DeliveryOutcome = "text"
	DeliveryFailed   DeliveryOutcome = "failed"
)

// GatePass is an issued, immutable authorization. DocumentRef is attached once after storage.
type GatePass struct {
	PassID            string    `db:"pass_id" json:"pass_id"`
	StudentID         string    `db:"student_id" json:"student_id"`
	IssuedAt          time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt         time.Time `db:"expires_at" json:"expires_at"`
	PaymentPercentage int       `db:"payment_percentage" json:"payment_percentage"`
	AuthorizedContact string    `db:"authorized_contact" json:"authorized_contact"`
	DocumentRef       *string   `db:"document_ref" json:"-"`
	TermCode          string    `db:"term_code" json:"term_code"`
	Tier              Tier      `db:"tier" json:"tier"`
}

// IsExpired reports whether now is past the pass expiry.
func (p GatePass) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// IssueGatePassRequest is the inbound issue payload.
type IssueGatePassRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Contact   string `json:"contact" validate:"required,e164"`
}

// IssueGatePassResult describes a successfully issued pass.
type IssueGatePassResult struct {
	PassID            string          `json:"pass_id"`
	StudentID         string          `json:"student_id"`
	IssuedAt          time.Time       `json:"issued_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
	PaymentPercentage int             `json:"payment_percentage"`
	TermCode          string          `json:"term_code"`
	Tier              Tier            `json:"tier"`
	Delivery          DeliveryOutcome `json:"delivery"`
	WeeklyRequests    int             `json:"weekly_requests"`
}
