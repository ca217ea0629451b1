// Package types provides common types used across subvault.
package types

import (
	"fmt"
	"math"
)

// DefaultDecimals is the number of fractional digits of the settlement token
// (USDC on Stellar carries 7).
const DefaultDecimals = 7

// Amount is a fixed-point quantity in the smallest unit of the settlement
// token. All arithmetic is integer-only and every operation that can leave
// the int64 range has a checked form.
//
// Examples:
//   - Amount(10_000_0000) = 10 USDC
//   - Amount(1) = 0.0000001 USDC
type Amount int64

// Checked arithmetic

// CheckedAdd returns a+b and false if the result overflows.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// CheckedSub returns a-b and false if the result overflows.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, false
	}
	return a - b, true
}

// CheckedMul returns a*n and false if the result overflows.
func (a Amount) CheckedMul(n int64) (Amount, bool) {
	if a == 0 || n == 0 {
		return 0, true
	}
	r := int64(a) * n
	if r/n != int64(a) || (int64(a) == -1 && n == math.MinInt64) || (n == -1 && int64(a) == math.MinInt64) {
		return 0, false
	}
	return Amount(r), true
}

// SaturatingSub returns a-b floored at zero. It never overflows for
// non-negative operands.
func (a Amount) SaturatingSub(b Amount) Amount {
	d, ok := a.CheckedSub(b)
	if !ok || d < 0 {
		return 0
	}
	return d
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Formatting methods

// FormatMajor renders the amount in major units with the given number of
// fractional digits: Amount(10_000_0000).FormatMajor(7) == "10.0000000".
func (a Amount) FormatMajor(decimals int) string {
	if decimals <= 0 {
		return fmt.Sprintf("%d", int64(a))
	}

	divisor := uint64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	// Handle sign separately; MinInt64 has no positive counterpart in int64.
	isNegative := a < 0
	abs := uint64(a)
	if isNegative {
		abs = uint64(-(a + 1)) + 1
	}

	major := abs / divisor
	minor := abs % divisor

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, major, minor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns the amount in major units using DefaultDecimals.
func (a Amount) String() string {
	return a.FormatMajor(DefaultDecimals)
}
