// Package money formats GBP minor units for people.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pounds converts pence to a decimal pound amount.
func Pounds(pence int64) decimal.Decimal {
	return decimal.NewFromInt(pence).Div(hundred)
}

// FormatGBP renders pence as "£12.50". Negative amounts keep their sign
// before the symbol.
func FormatGBP(pence int64) string {
	amount := Pounds(pence)
	if amount.IsNegative() {
		return "-£" + amount.Abs().StringFixed(2)
	}
	return "£" + amount.StringFixed(2)
}

