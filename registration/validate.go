package registration

import (
	"strings"

	"github.com/asaskevich/govalidator"
	"golang.org/x/text/cases"

	"promo-bot/sentinel"
)

var (
	inn10Weights  = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights1 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights2 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// ValidateEmail checks the syntax of a raw email as typed by the participant.
func ValidateEmail(raw string) error {
	email := strings.TrimSpace(raw)
	if !govalidator.StringLength(email, "3", "254") || !govalidator.IsEmail(email) {
		return sentinel.ErrInvalidFormat
	}
	return nil
}

// NormalizeEmail trims and case-folds an email so eligibility lookups are exact.
func NormalizeEmail(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// ParseINN validates a company tax id and returns it as digits only.
// Spaces and hyphens between digit groups are tolerated; anything else is not.
// The value must be 10 or 12 digits and pass the control-digit rule for its length.
func ParseINN(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", sentinel.ErrInvalidFormat
		}
	}
	inn := b.String()

	digits := make([]int, len(inn))
	for i := range inn {
		digits[i] = int(inn[i] - '0')
	}

	switch len(digits) {
	case 10:
		if controlDigit(digits, inn10Weights) != digits[9] {
			return "", sentinel.ErrInvalidFormat
		}
	case 12:
		if controlDigit(digits, inn12Weights1) != digits[10] ||
			controlDigit(digits, inn12Weights2) != digits[11] {
			return "", sentinel.ErrInvalidFormat
		}
	default:
		return "", sentinel.ErrInvalidFormat
	}
	return inn, nil
}

func controlDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	return sum % 11 % 10
}
