package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places kept for an amount.
	MoneyScale = 2
	// MaxIntegerDigits matches the NUMERIC(14,2) money columns.
	MaxIntegerDigits = 12

	maxFractionDigits = 18
	maxCoefficientBit = 64
)

// MaxAmount is the first amount that no longer fits a money column.
var MaxAmount = decimal.New(1, MaxIntegerDigits)

// CheckAmount returns a message describing why d is not a storable amount,
// or "" when it is. The exponent and coefficient are bounded before any
// comparison, so untrusted input never forces a large rescale.
func CheckAmount(d decimal.Decimal) string {
	exp := d.Exponent()
	if exp > MaxIntegerDigits || exp < -maxFractionDigits || d.Coefficient().BitLen() > maxCoefficientBit {
		return "amount has too many digits"
	}
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Sprintf("amount must have at most %d decimal places", MoneyScale)
	}
	if d.Abs().GreaterThanOrEqual(MaxAmount) {
		return fmt.Sprintf("amount must be below %s", MaxAmount.String())
	}
	return ""
}
