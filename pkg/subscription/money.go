package subscription

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ToMinor converts a major unit amount into the gateway's integer minor units.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinor converts gateway minor units into a major unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatAmount renders an amount for display, for example "NGN 500.00".
// Unknown currency codes fall back to the plain decimal.
func FormatAmount(amount decimal.Decimal, code string) string {
	fixed := amount.StringFixed(2)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fixed
	}
	return unit.String() + " " + fixed
}
