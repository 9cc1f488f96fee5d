// Package amount implements fixed-point token amounts with six decimal
// places. Amounts travel through the API and the stores as decimal
// strings; arithmetic happens on math/big integers denominated in the
// smallest unit (0.000001).
package amount

import (
	"math/big"
	"strings"
)

// Decimals is the fractional precision of token amounts.
const Decimals = 6

// BasisPoints is the denominator for basis-point shares.
const BasisPoints = 10_000

// Parse converts a decimal string like "1.500000", "0.004" or "10000"
// into smallest units. Signs, non-digit characters and fractions longer
// than six digits are rejected.
func Parse(s string) (*big.Int, bool) {
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) {
		return nil, false
	}
	if hasDot && (frac == "" || len(frac) > Decimals || !isDigits(frac)) {
		return nil, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	return v, true
}

// Format renders smallest units as a decimal string with six fractional
// digits, e.g. 4000 -> "0.004000". A nil value formats as zero.
func Format(v *big.Int) string {
	if v == nil {
		return "0.000000"
	}
	s := new(big.Int).Abs(v).String()
	for len(s) <= Decimals {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// IsPositive reports whether s parses to a strictly positive amount.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}

// BasisShare returns basis ten-thousandths of amt, rounded down, with a
// floor of one smallest unit for positive amounts so the share never
// truncates to nothing.
func BasisShare(amt string, basis int) (string, bool) {
	v, ok := Parse(amt)
	if !ok || basis < 0 {
		return "", false
	}
	share := new(big.Int).Mul(v, big.NewInt(int64(basis)))
	share.Quo(share, big.NewInt(BasisPoints))
	if share.Sign() == 0 && v.Sign() > 0 {
		share.SetInt64(1)
	}
	return Format(share), true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
