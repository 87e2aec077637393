package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for amounts, quantities and rates.
const MoneyScale int32 = 4

// BalanceTolerance is the maximum accepted gap between total debit and total credit.
var BalanceTolerance = decimal.New(1, -MoneyScale)

// Round applies the ledger rounding mode (half-even at MoneyScale).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyScale)
}

// ParseAmount parses a decimal string at the boundary and rounds it.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
	}
	return Round(d), nil
}

// FormatAmount renders d with the fixed ledger scale, e.g. "12.5000".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixedBank(MoneyScale)
}

// WithinTolerance reports whether |a-b| <= BalanceTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(BalanceTolerance)
}
