// Package money centralises decimal arithmetic and the rounding policy for
// the billing engine. All monetary values flow through shopspring/decimal;
// float64 money is not allowed anywhere in the ledger path.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Zero is the canonical zero amount.
var Zero = decimal.Zero

var usd = message.NewPrinter(language.AmericanEnglish)

// LineTotal returns quantity times unit price without rounding.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// ProratedShare splits a line total by an ownership percentage (0-100) and
// rounds the result to the minor currency unit using round-half-to-even.
// The rounding is applied once, to the total only; prorated unit prices are
// carried unrounded (see ProratedUnitPrice).
func ProratedShare(total, percentage decimal.Decimal) decimal.Decimal {
	return total.Mul(percentage).Div(decimal.NewFromInt(100)).RoundBank(2)
}

// ProratedUnitPrice scales a unit price by an ownership percentage without
// rounding. Line totals are the only place the rounding policy applies.
func ProratedUnitPrice(unitPrice, percentage decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(percentage).Div(decimal.NewFromInt(100))
}

// FormatUSD renders an amount as a dollar string for ledger and audit
// descriptions, e.g. "$1,234.50".
func FormatUSD(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return usd.Sprintf("$%.2f", f)
}
