package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// InitiateInput names either a booking or a bare property charge.
// A zero Amount with a booking charges the booking total.
type InitiateInput struct {
	BookingID    *uuid.UUID
	PropertyID   uuid.UUID
	Amount       decimal.Decimal
	PaymentType  enums.PaymentType
	StudentID    uuid.UUID
	StudentEmail string
}

// InitiateResult is what the student needs to complete checkout.
type InitiateResult struct {
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
}

// ReconciliationResult describes a recorded payment.
type ReconciliationResult struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	BookingID         *uuid.UUID      `json:"booking_id,omitempty"`
	PropertyID        uuid.UUID       `json:"property_id"`
	StudentID         uuid.UUID       `json:"student_id"`
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          enums.Currency  `json:"currency"`
	Channel           string          `json:"channel,omitempty"`
	AuthorizationCode string          `json:"-"`
	CustomerEmail     string          `json:"customer_email,omitempty"`
	GatewayStatus     string          `json:"gateway_status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	Paid              bool            `json:"paid"`
	AlreadyRecorded   bool            `json:"already_recorded"`
}

func resultFromPayment(p *models.Payment, alreadyRecorded bool) *ReconciliationResult {
	result := &ReconciliationResult{
		PaymentID:       p.ID,
		BookingID:       p.BookingID,
		PropertyID:      p.PropertyID,
		StudentID:       p.StudentID,
		Reference:       p.PaymentReference,
		Amount:          p.Amount,
		Currency:        p.Currency,
		GatewayStatus:   p.GatewayStatus,
		PaidAt:          p.PaidAt,
		Paid:            p.PaymentStatus == enums.PaymentStatusCompleted,
		AlreadyRecorded: alreadyRecorded,
	}
	if p.PaymentMethod != nil {
		result.Channel = *p.PaymentMethod
	}
	if p.AuthorizationCode != nil {
		result.AuthorizationCode = *p.AuthorizationCode
	}
	if p.CustomerEmail != nil {
		result.CustomerEmail = *p.CustomerEmail
	}
	return result
}
