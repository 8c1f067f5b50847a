package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// BasisPoints is the denominator of every fee rate.
	BasisPoints = 10_000
	// SecondsPerYear is 365.25 days.
	SecondsPerYear = 31_557_600
	// ShareDecimals is the fixed-point precision of fund shares.
	ShareDecimals = 18
)

// Pow10 returns 10^n as an integer decimal.
func Pow10(n int32) decimal.Decimal {
	return decimal.New(1, n)
}

// ShareUnit is one whole share (10^18 share units).
func ShareUnit() decimal.Decimal {
	return Pow10(ShareDecimals)
}

// IsUint reports whether d is a non-negative integer.
func IsUint(d decimal.Decimal) bool {
	return !d.IsNegative() && d.IsInteger()
}

// IsPositiveUint reports whether d is an integer greater than zero.
func IsPositiveUint(d decimal.Decimal) bool {
	return d.IsPositive() && d.IsInteger()
}

// MulDivFloor returns floor(a*b/c) for non-negative a, b and positive c.
// The product is exact; only the final division truncates.
func MulDivFloor(a, b, c decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// AnnualFee returns the share of base owed for elapsed seconds at bpsPerYear.
func AnnualFee(base decimal.Decimal, bpsPerYear, elapsedSeconds int64) decimal.Decimal {
	if bpsPerYear == 0 || elapsedSeconds <= 0 || base.IsZero() {
		return decimal.Zero
	}
	rate := decimal.NewFromInt(bpsPerYear).Mul(decimal.NewFromInt(elapsedSeconds))
	return MulDivFloor(base, rate, decimal.NewFromInt(SecondsPerYear*BasisPoints))
}

// BpsOf returns floor(amount*bps/10000).
func BpsOf(amount decimal.Decimal, bps int64) decimal.Decimal {
	if bps == 0 {
		return decimal.Zero
	}
	return MulDivFloor(amount, decimal.NewFromInt(bps), decimal.NewFromInt(BasisPoints))
}

// ParseAmount parses an unsigned integer amount in the smallest denomination.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount: %w", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, ErrInvalidAmount)
	}
	if !IsUint(d) {
		return decimal.Zero, fmt.Errorf("amount %q is not an unsigned integer: %w", s, ErrInvalidAmount)
	}
	return d, nil
}

// FormatUnits renders an integer amount with the given number of decimals,
// stripping trailing zeros: FormatUnits(1500000, 6) == "1.5".
func FormatUnits(amount decimal.Decimal, decimals int32) string {
	s := amount.Shift(-decimals).StringFixed(decimals)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
