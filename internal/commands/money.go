package commands

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount converts a user-entered amount like "12.34" or "$5" into
// integer minor units. The engine never sees floats or decimals; conversion
// happens entirely at the front door.
func parseAmount(s string) (int64, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return minor.IntPart(), nil
}

// formatAmount renders minor units as a dollar string, e.g. 1234 -> "$12.34".
func formatAmount(minor int64) string {
	return "$" + decimal.New(minor, -2).StringFixed(2)
}
