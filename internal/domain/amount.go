package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rescale converts a quantity to a token's canonical precision.
// Quantities that are not positive, or that carry non-zero digits beyond
// fractionDigits, fail with ErrInvalidAmount.
func Rescale(quantity decimal.Decimal, fractionDigits int32) (decimal.Decimal, error) {
	if fractionDigits < 0 || fractionDigits > MaxFractionDigits {
		return decimal.Zero, fmt.Errorf("%w: fraction digits %d out of range", ErrInvalidAmount, fractionDigits)
	}
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity %s must be positive", ErrInvalidAmount, quantity.String())
	}

	scaled := quantity.Truncate(fractionDigits)
	if !scaled.Equal(quantity) {
		return decimal.Zero, fmt.Errorf("%w: quantity %s exceeds %d fraction digits", ErrInvalidAmount, quantity.String(), fractionDigits)
	}
	return scaled, nil
}

// ParseQuantity parses a decimal string and rescales it.
func ParseQuantity(s string, fractionDigits int32) (decimal.Decimal, error) {
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	return Rescale(q, fractionDigits)
}

// FormatAmount renders an amount with exactly fractionDigits decimals.
func FormatAmount(amount decimal.Decimal, fractionDigits int32) string {
	return amount.StringFixed(fractionDigits)
}
