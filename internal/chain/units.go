package chain

import (
	"math/big"
	"strings"

	"github.com/aastar/faucet/internal/xerrors"
)

// Ether is 10^18 wei.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ParseUnits converts a decimal string such as "100" or "0.5" into base units.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, xerrors.New("amount is empty")
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, xerrors.Newf("amount %q has more than %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, xerrors.Newf("amount %q is not a decimal number", s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// MustParseUnits panics on malformed constants.
func MustParseUnits(s string, decimals uint8) *big.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units as a decimal string with trailing zeros
// trimmed and at least one fractional digit, e.g. 10^19 at 18 decimals is "10.0".
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0.0"
	}
	sign := ""
	abs := new(big.Int).Set(v)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	q, r := new(big.Int).QuoRem(abs, pow10(decimals), new(big.Int))
	frac := ""
	if decimals > 0 {
		frac = r.String()
		frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
		frac = strings.TrimRight(frac, "0")
	}
	if frac == "" {
		frac = "0"
	}
	return sign + q.String() + "." + frac
}

// FormatEther is FormatUnits at 18 decimals.
func FormatEther(v *big.Int) string { return FormatUnits(v, 18) }
