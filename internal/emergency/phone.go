package emergency

import (
	"errors"
	"strings"
)

// ErrInvalidPhoneNumber rejects numbers too short to dial after
// normalization.
var ErrInvalidPhoneNumber = errors.New("emergency: phone number must be at least 10 characters after normalization")

// NormalizePhoneNumber strips formatting characters and ensures a country
// code, defaulting to +1 when none is given.
func NormalizePhoneNumber(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	hasPlus := strings.HasPrefix(value, "+")
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	if hasPlus {
		return "+" + digits.String()
	}
	return "+1" + digits.String()
}

// ValidatePhoneNumber normalizes and checks the destination number before
// any provider call is attempted.
func ValidatePhoneNumber(value string) (string, error) {
	normalized := NormalizePhoneNumber(value)
	if len(normalized) < 10 {
		return "", ErrInvalidPhoneNumber
	}
	return normalized, nil
}
