package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// TokenDecimals is the base-unit scale of the staking token.
const TokenDecimals = 18

// ParseUnits converts a human decimal string such as "1000" or "0.25" into
// base units with the given number of decimals. Excess fractional digits are
// rejected rather than truncated.
func ParseUnits(s string, decimals int) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string, trimming trailing zeros.
func FormatUnits(v *uint256.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	dec := v.Dec()
	if decimals == 0 {
		return dec
	}
	if len(dec) <= decimals {
		dec = strings.Repeat("0", decimals-len(dec)+1) + dec
	}
	whole, frac := dec[:len(dec)-decimals], strings.TrimRight(dec[len(dec)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
