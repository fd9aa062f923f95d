package service

import (
	"fmt"
	"time"

	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

// DenialReason classifies why an issue request was rejected.
type DenialReason string

const (
	DenialOutsideTerm         DenialReason = "outside_term"
	DenialNoBillingRecord     DenialReason = "no_billing_record"
	DenialInsufficientPayment DenialReason = "insufficient_payment"
	DenialRateLimited         DenialReason = "rate_limited"
)

// Denial is returned by GatePassService.Issue when a request fails validation.
// Denials are final and never retried.
type Denial struct {
	Reason            DenialReason
	NextTermStart     *time.Time
	NextReset         *time.Time
	PaymentPercentage int
}

// Error implements error.
func (d *Denial) Error() string {
	return fmt.Sprintf("gate pass denied: %s", d.Reason)
}

// AppError maps the denial onto the shared error envelope.
func (d *Denial) AppError() *appErrors.Error {
	var base *appErrors.Error
	details := map[string]interface{}{"reason": string(d.Reason)}
	switch d.Reason {
	case DenialOutsideTerm:
		base = appErrors.ErrOutsideTerm
		if d.NextTermStart != nil {
			details["next_term_start"] = d.NextTermStart.Format("2006-01-02")
		}
	case DenialNoBillingRecord:
		base = appErrors.ErrNoBillingRecord
	case DenialInsufficientPayment:
		base = appErrors.ErrInsufficientPayment
		details["payment_percentage"] = d.PaymentPercentage
	case DenialRateLimited:
		base = appErrors.ErrRateLimited
		if d.NextReset != nil {
			details["next_reset"] = d.NextReset.Format(time.RFC3339)
		}
	default:
		base = appErrors.ErrValidation
	}
	return base.WithDetails(details)
}
