package service

import (
	"fmt"
	"strings"
	"time"
)

const deliveryDateLayout = "2006-01-02"

// passMessage carries the fields printed in gate pass messages.
type passMessage struct {
	SchoolName        string
	StudentID         string
	StudentName       string
	PassID            string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	PaymentPercentage int
	Contact           string
	VerifyURL         string
}

func (m passMessage) heading() string {
	if m.StudentName == "" {
		return fmt.Sprintf("Gate Pass for %s", m.StudentID)
	}
	return fmt.Sprintf("Gate Pass for %s (%s)", m.StudentID, m.StudentName)
}

// documentCaption accompanies the PDF attachment.
func documentCaption(m passMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.SchoolName)
	fmt.Fprintf(&b, "Your gate pass for %s is attached.\n", m.StudentID)
	fmt.Fprintf(&b, "Pass ID: %s\n", m.PassID)
	fmt.Fprintf(&b, "Expires: %s\n", m.ExpiresAt.Format(deliveryDateLayout))
	fmt.Fprintf(&b, "This pass is valid only for %s. Do not share.", m.Contact)
	return b.String()
}

// textPass is sent when no document is delivered.
func textPass(m passMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.SchoolName)
	fmt.Fprintf(&b, "%s:\n", m.heading())
	fmt.Fprintf(&b, "Pass ID: %s\n", m.PassID)
	fmt.Fprintf(&b, "Issued: %s\n", m.IssuedAt.Format(deliveryDateLayout))
	fmt.Fprintf(&b, "Expires: %s\n", m.ExpiresAt.Format(deliveryDateLayout))
	fmt.Fprintf(&b, "Payment: %d%%\n", m.PaymentPercentage)
	fmt.Fprintf(&b, "Verify: %s\n", m.VerifyURL)
	fmt.Fprintf(&b, "This pass is valid only for %s. Do not share.", m.Contact)
	return b.String()
}

// ownerAlert warns the authorized contact that their pass was scanned by someone else.
func ownerAlert(schoolName, passID, scannedBy string, scannedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", schoolName)
	fmt.Fprintf(&b, "Security alert: gate pass %s was scanned from %s at %s.\n", passID, scannedBy, scannedAt.Format("2006-01-02 15:04"))
	b.WriteString("If this was not you, contact the school office.")
	return b.String()
}
