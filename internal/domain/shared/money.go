package shared

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount keeps.
// The DECIMAL(18,4) columns round anything finer on write, one column at a
// time, which would break the equations that tie the columns together.
const MoneyScale int32 = 4

// CodeInvalidAmountScale is reported for amounts finer than MoneyScale
const CodeInvalidAmountScale = "INVALID_AMOUNT_SCALE"

// HasMoneyScale reports whether amount is exact at MoneyScale decimal places
func HasMoneyScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyScale))
}

// CheckMoneyScale rejects an amount with more than MoneyScale decimal places.
// field names the amount in the error message.
func CheckMoneyScale(field string, amount decimal.Decimal) error {
	if HasMoneyScale(amount) {
		return nil
	}
	return NewValidationError(CodeInvalidAmountScale,
		"%s %s has more than %d decimal places", field, amount.String(), MoneyScale)
}
