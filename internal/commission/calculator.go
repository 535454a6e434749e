// Package commission derives the platform/landlord split of a booking total.
package commission

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
)

const amountPlaces = 2

var one = decimal.NewFromInt(1)

// Breakdown is the deterministic money split for a set of lease terms.
type Breakdown struct {
	Rent           decimal.Decimal
	Total          decimal.Decimal
	Commission     decimal.Decimal
	LandlordPayout decimal.Decimal
}

// Calculate computes total = rent*months + deposit, commission = rent*months*rate
// rounded half-up to two places, payout = total - commission.
func Calculate(monthlyRent decimal.Decimal, months int, deposit decimal.Decimal, rate decimal.Decimal) (Breakdown, error) {
	if !monthlyRent.IsPositive() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "monthly rent must be greater than zero")
	}
	if months <= 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "lease duration must be greater than zero")
	}
	if deposit.IsNegative() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "security deposit cannot be negative")
	}
	if err := ValidateRate(rate); err != nil {
		return Breakdown{}, err
	}

	rent := monthlyRent.Mul(decimal.NewFromInt(int64(months)))
	total := rent.Add(deposit)
	commission := rent.Mul(rate).Round(amountPlaces)

	return Breakdown{
		Rent:           rent,
		Total:          total,
		Commission:     commission,
		LandlordPayout: total.Sub(commission),
	}, nil
}

// ValidateRate ensures a commission rate lies within [0, 1].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1").
			WithDetails(map[string]any{"rate": rate.String()})
	}
	return nil
}

// ValidateRateBounds checks an admin-configured [min, max] commission range.
func ValidateRateBounds(min, max decimal.Decimal) error {
	if err := ValidateRate(min); err != nil {
		return err
	}
	if err := ValidateRate(max); err != nil {
		return err
	}
	if !min.LessThan(max) {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum commission rate must be less than maximum").
			WithDetails(map[string]any{"min": min.String(), "max": max.String()})
	}
	return nil
}
