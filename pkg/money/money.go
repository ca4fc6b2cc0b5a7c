// Package money converts between integer cents and the decimal strings
// exchanged with clients and payment providers.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseLooseCents converts a client supplied price (number or string, in
// currency units) into non-negative cents. Malformed, negative or empty
// input yields ok=false and zero cents.
func ParseLooseCents(raw json.RawMessage) (cents int64, ok bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, false
	}
	text = strings.Trim(text, `"`)
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || amount.IsNegative() {
		return 0, false
	}
	return amount.Mul(hundred).Round(0).IntPart(), true
}

// FromDecimalString parses a "12.34" style amount into cents.
func FromDecimalString(value string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return amount.Mul(hundred).Round(0).IntPart(), nil
}

// Format renders cents with two decimals, e.g. 3499 -> "34.99".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ToDecimal exposes cents as a decimal currency amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
