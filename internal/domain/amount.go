package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StroopsPerUnit is the ledger's fixed-point scale: 7 fractional digits.
const StroopsPerUnit int64 = 10_000_000

var stroopShift = int32(7)

// ParseAmount converts a human decimal string into base units (stroops).
// The fractional part beyond 7 digits is truncated toward zero, never rounded,
// so the result can never exceed what the user typed.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "parse %q", s)
	}

	scaled := d.Shift(stroopShift).Truncate(0)
	if !scaled.BigInt().IsInt64() {
		return 0, errors.Wrapf(ErrInvalidAmount, "amount %q out of range", s)
	}
	return scaled.IntPart(), nil
}

// FormatAmount renders base units with two decimal digits for display.
// This is deliberately lossy: it is a display rounding, not an inverse
// of ParseAmount.
func FormatAmount(stroops int64) string {
	return decimal.New(stroops, -stroopShift).StringFixed(2)
}

// FormatBps renders basis points as a percentage with two decimal digits.
func FormatBps(bps uint32) string {
	return decimal.New(int64(bps), -2).StringFixed(2)
}
