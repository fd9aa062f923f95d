// Package policy holds the pure decision tables behind gate pass issuance.
package policy

import (
	"time"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

const (
	fullPaymentPct    = 100
	partialPaymentPct = 70
	minimumPaymentPct = 50

	partialPaymentCutback = 30 // days before term end

	maxFullRequests     = 3
	maxTextOnlyRequests = 5
)

// Expiry is the validity decision for a payment percentage.
type Expiry struct {
	Issuable  bool
	ExpiresOn time.Time
}

// ComputeExpiry maps a payment percentage to the last valid day of a pass.
// termEnd and today are dates in the school time zone. When the partial-payment
// window would end before today it is clamped to today.
func ComputeExpiry(percentage int, termEnd, today time.Time) Expiry {
	switch {
	case percentage >= fullPaymentPct:
		return Expiry{Issuable: true, ExpiresOn: termEnd}
	case percentage >= partialPaymentPct:
		on := termEnd.AddDate(0, 0, -partialPaymentCutback)
		if on.Before(today) {
			on = today
		}
		return Expiry{Issuable: true, ExpiresOn: on}
	case percentage >= minimumPaymentPct:
		return Expiry{Issuable: true, ExpiresOn: endOfMonth(today)}
	default:
		return Expiry{}
	}
}

// TierFor maps a post-increment weekly request count to a delivery tier.
func TierFor(count int) models.Tier {
	switch {
	case count <= maxFullRequests:
		return models.TierFull
	case count <= maxTextOnlyRequests:
		return models.TierTextOnly
	default:
		return models.TierBlocked
	}
}

// PaymentPercentage rounds 100*paid/billed half away from zero. ok is false when
// nothing was billed.
func PaymentPercentage(paid, billed int64) (pct int, ok bool) {
	if billed <= 0 {
		return 0, false
	}
	if paid <= 0 {
		return 0, true
	}
	return int((200*paid + billed) / (2 * billed)), true
}

func endOfMonth(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location())
}
