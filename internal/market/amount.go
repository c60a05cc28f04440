package market

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/basedguardians/marketd/internal/domain"
)

// CurrencyDecimals is the decimal precision of the chain's native currency.
const CurrencyDecimals = 18

// ParseAmount converts a human decimal string ("500", "0.5", "1.25") into the
// currency's smallest unit. It rejects empty, negative, malformed, and
// over-precise input (more fractional digits than the currency carries) with
// domain.ErrPriceInvalid.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("market: empty amount: %w", domain.ErrPriceInvalid)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("market: signed amount %q: %w", s, domain.ErrPriceInvalid)
	}

	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("market: malformed amount %q: %w", s, domain.ErrPriceInvalid)
	}
	if len(frac) > CurrencyDecimals {
		return nil, fmt.Errorf("market: amount %q exceeds %d decimal places: %w",
			s, CurrencyDecimals, domain.ErrPriceInvalid)
	}
	if whole == "" {
		whole = "0"
	}

	// Scale the fraction up to full precision and parse the whole string of
	// digits as an integer.
	digits := whole + frac + strings.Repeat("0", CurrencyDecimals-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("market: malformed amount %q: %w", s, domain.ErrPriceInvalid)
	}
	return value, nil
}

// FormatAmount renders a smallest-unit value as a human decimal string,
// trimming trailing fractional zeros.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(CurrencyDecimals), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).Set(v), scale, new(big.Int))

	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%0*s", CurrencyDecimals, frac.String()), "0")
	return whole.String() + "." + fracStr
}
