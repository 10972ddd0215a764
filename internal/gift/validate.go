package gift

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	maxNameLength     = 100
	maxGiftNameLength = 255
	minSecretLength   = 4
	maxSecretLength   = 100
)

// Amounts are stored as decimal(10,2).
var maxAmount = decimal.RequireFromString("99999999.99")

func checkName(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid(field, "is required")
	}
	if utf8.RuneCountInString(value) > max {
		return "", invalid(field, "is too long")
	}
	return value, nil
}

func checkAmount(field string, value decimal.Decimal, allowZero bool) error {
	if value.IsNegative() || (!allowZero && value.IsZero()) {
		if allowZero {
			return invalid(field, "must be non-negative")
		}
		return invalid(field, "must be positive")
	}
	if !value.Equal(value.Round(2)) {
		return invalid(field, "must have at most two decimal places")
	}
	if value.GreaterThan(maxAmount) {
		return invalid(field, "is too large")
	}
	return nil
}

// checkLink returns nil for an empty link.
func checkLink(value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	u, err := url.ParseRequestURI(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, invalid("giftLink", "must be a valid URL")
	}
	return &value, nil
}

func checkSecret(value string) error {
	n := utf8.RuneCountInString(value)
	if n < minSecretLength {
		return invalid("organizerSecret", "must be at least 4 characters")
	}
	if n > maxSecretLength {
		return invalid("organizerSecret", "is too long")
	}
	return nil
}
