package enums

import "slices"

// PaymentType describes what a payment settles. Only whole-booking payments exist.
type PaymentType string

const (
	PaymentTypeFull PaymentType = "full"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeFull,
}

func (p PaymentType) String() string {
	return string(p)
}

func (p PaymentType) IsValid() bool {
	return slices.Contains(validPaymentTypes, p)
}

// ParsePaymentType converts raw input into a PaymentType, defaulting empty input to full.
func ParsePaymentType(value string) (PaymentType, error) {
	if value == "" {
		return PaymentTypeFull, nil
	}
	return parse(validPaymentTypes, value, "payment type")
}
