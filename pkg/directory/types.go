package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in minor units. The directory sends amounts as
// JSON numbers or numeric strings.
type Cents int64

// UnmarshalJSON accepts 12.5, "12.50", "1,200.00" and null.
func (c *Cents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if raw == "" {
			*c = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", raw, err)
	}
	*c = Cents(math.Round(f * 100))
	return nil
}

// Text is a string field that tolerates numbers and null.
type Text string

// UnmarshalJSON decodes strings verbatim and numbers via their literal form.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}

// Bill is one billed fee line for a term.
type Bill struct {
	FeeType string `json:"fee_type"`
	Amount  Cents  `json:"amount"`
}

// Payment is one payment received for a term.
type Payment struct {
	Amount Cents  `json:"amount"`
	Date   string `json:"date"`
}

// Profile is a student record from the bulk profile listing.
type Profile struct {
	StudentNumber  Text `json:"student_number"`
	FirstName      Text `json:"firstname"`
	LastName       Text `json:"lastname"`
	StudentMobile  Text `json:"student_mobile"`
	GuardianMobile Text `json:"guardian_mobile_number"`
}

// ProfilePage is one page of the profile listing.
type ProfilePage struct {
	Page    int
	Records []Profile
	HasMore bool
}

type billsResponse struct {
	Data struct {
		Bills []Bill `json:"bills"`
	} `json:"data"`
}

type paymentsResponse struct {
	Data struct {
		Payments []Payment `json:"payments"`
	} `json:"data"`
}

type profilesResponse struct {
	Next    *string `json:"next"`
	Results struct {
		Data []Profile `json:"data"`
	} `json:"results"`
	Error string `json:"error"`
}

// TotalBilled sums bill amounts.
func TotalBilled(bills []Bill) Cents {
	var total Cents
	for _, b := range bills {
		total += b.Amount
	}
	return total
}

// TotalPaid sums payment amounts.
func TotalPaid(payments []Payment) Cents {
	var total Cents
	for _, p := range payments {
		total += p.Amount
	}
	return total
}
