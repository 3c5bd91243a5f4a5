package blockchain

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits renders raw as a decimal string scaled by decimals, always
// keeping at least one fractional digit: 1000000 with 6 decimals is "1.0".
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0.0"
	}

	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	intPart, remainder := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	frac := "0"
	if decimals > 0 && remainder.Sign() != 0 {
		frac = strings.TrimRight(fmt.Sprintf("%0*s", int(decimals), remainder.String()), "0")
	}

	out := intPart.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// ParseHexQuantity parses a 0x-prefixed quantity. "0x" and "" are zero.
func ParseHexQuantity(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
