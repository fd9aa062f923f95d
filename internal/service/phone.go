package service

import "strings"

// maxPhoneDigits is the E.164 limit.
const maxPhoneDigits = 15

// normalizePhone converts a directory phone value to E.164. Local numbers lose
// their trunk zero and gain countryCode. Empty and "nan" values are missing;
// anything but digits after separators are removed is rejected.
func normalizePhone(raw, countryCode string) (string, bool) {
	phone := strings.TrimSpace(raw)
	if phone == "" || strings.EqualFold(phone, "nan") || strings.EqualFold(phone, "none") {
		return "", false
	}
	phone = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "").Replace(phone)

	var e164 string
	switch {
	case strings.HasPrefix(phone, "+"):
		e164 = phone
	case strings.HasPrefix(phone, "00"):
		e164 = "+" + strings.TrimPrefix(phone, "00")
	default:
		digits := strings.TrimLeft(phone, "0")
		code := strings.TrimPrefix(countryCode, "+")
		if strings.HasPrefix(digits, code) && len(digits) > len(code)+8 {
			e164 = "+" + digits
		} else if digits != "" {
			e164 = "+" + code + digits
		}
	}
	if !allDigits(strings.TrimPrefix(e164, "+")) || len(e164)-1 > maxPhoneDigits {
		return "", false
	}
	return e164, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
