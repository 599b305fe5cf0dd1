package paradex

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantumDecimals is the fixed-point precision the settlement contract uses
// for sizes and prices.
const QuantumDecimals = 8

// ToQuantum converts a human decimal string into its integer quantum
// representation, e.g. "1.5" with 8 decimals becomes "150000000".
func ToQuantum(value string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return "", fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	return d.Shift(decimals).Truncate(0).String(), nil
}

// FromQuantum converts an integer quantum string back into a decimal string.
func FromQuantum(quantum string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(quantum)
	if err != nil {
		return "", fmt.Errorf("invalid quantum %q: %w", quantum, err)
	}
	return d.Shift(-decimals).String(), nil
}
