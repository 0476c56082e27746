package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeAmount parses raw into an exact positive decimal and returns it
// with its canonical string form. The canonical string keeps the scale the
// caller gave ("250.50" stays "250.50"); it is what gets recorded on the
// chain, so no float rounding ever reaches the ledger record.
func NormalizeAmount(raw string) (decimal.Decimal, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, "", ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, "", ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, "", ErrInvalidAmount
	}
	// String() trims trailing zeros; StringFixed at the parsed exponent keeps
	// the caller's scale.
	canonical := d.String()
	if exp := d.Exponent(); exp < 0 {
		canonical = d.StringFixed(-exp)
	}
	return d, canonical, nil
}
