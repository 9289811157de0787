package utils

import (
	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with exactly two decimals, e.g. 26.25 -> "26.25".
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
