// Package cancellation computes refund eligibility for cancelled bookings.
package cancellation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// Tier names the refund band a cancellation fell into.
type Tier string

const (
	TierNotPaid     Tier = "not_paid"
	TierFull        Tier = "full"
	TierPartial     Tier = "partial"
	TierAfterMoveIn Tier = "after_move_in"
)

var hundred = decimal.NewFromInt(100)

// Input carries the booking facts the policy needs.
type Input struct {
	MoveInDate    time.Time
	Now           time.Time
	PaymentStatus enums.BookingPaymentStatus
	TotalAmount   decimal.Decimal
}

// Refund is the policy outcome.
type Refund struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
	Tier    Tier
}

// Policy is pure: the same input always yields the same refund.
type Policy struct {
	fullRefundWindow   time.Duration
	partialPercent     decimal.Decimal
	afterMoveInPercent decimal.Decimal
}

// NewPolicy builds a policy from the configured tiers.
func NewPolicy(cfg config.CancellationConfig) Policy {
	return Policy{
		fullRefundWindow:   cfg.FullRefundWindow,
		partialPercent:     cfg.PartialRefundPercent,
		afterMoveInPercent: cfg.AfterMoveInRefundPercent,
	}
}

// Evaluate returns the refund owed when a booking is cancelled at in.Now.
// More than the full-refund window before move-in refunds everything, up to
// move-in refunds the partial percentage, from move-in on the after-move-in percentage.
func (p Policy) Evaluate(in Input) Refund {
	if in.PaymentStatus != enums.BookingPaymentPaid {
		return Refund{Amount: decimal.Zero, Percent: decimal.Zero, Tier: TierNotPaid}
	}

	untilMoveIn := in.MoveInDate.Sub(in.Now)
	var (
		percent decimal.Decimal
		tier    Tier
	)
	switch {
	case untilMoveIn > p.fullRefundWindow:
		percent, tier = hundred, TierFull
	case untilMoveIn > 0:
		percent, tier = p.partialPercent, TierPartial
	default:
		percent, tier = p.afterMoveInPercent, TierAfterMoveIn
	}

	amount := in.TotalAmount.Mul(percent).Div(hundred).Round(2)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(in.TotalAmount) {
		amount = in.TotalAmount
	}
	return Refund{Amount: amount, Percent: percent, Tier: tier}
}
