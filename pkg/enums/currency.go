package enums

import (
	"slices"
	"strings"
)

// Currency is the ISO 4217 code a payment settles in. Paystack accounts here are naira only.
type Currency string

const CurrencyNGN Currency = "NGN"

var validCurrencies = []Currency{CurrencyNGN}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	return slices.Contains(validCurrencies, c)
}

// ParseCurrency accepts ISO codes in any case.
func ParseCurrency(value string) (Currency, error) {
	return parse(validCurrencies, strings.ToUpper(strings.TrimSpace(value)), "currency")
}
