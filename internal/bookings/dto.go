package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// Actor identifies who is driving a booking operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// CreateInput carries a student's rental request. Nil rent or deposit falls back to
// the property's listed values.
type CreateInput struct {
	Actor               Actor
	StudentID           uuid.UUID
	LandlordID          uuid.UUID
	PropertyID          uuid.UUID
	MoveInDate          time.Time
	LeaseDurationMonths int
	MonthlyRent         *decimal.Decimal
	SecurityDeposit     *decimal.Decimal
	Notes               string
}

// ActionInput carries approve/reject/cancel/complete requests.
type ActionInput struct {
	BookingID uuid.UUID
	Actor     Actor
	Reason    string
}

// CancelResult reports the refund owed for a cancellation.
type CancelResult struct {
	Booking      *models.Booking
	RefundAmount decimal.Decimal
}

// ListInput pages through the bookings visible to the actor.
type ListInput struct {
	Actor  Actor
	Status string
	Limit  int
	Cursor string
}

// ListResult is one page of bookings plus the cursor for the next page, if any.
type ListResult struct {
	Items  []models.Booking
	Cursor string
}

// BookingDTO is the API representation of a booking.
type BookingDTO struct {
	ID                  uuid.UUID                  `json:"id"`
	BookingReference    string                     `json:"booking_reference"`
	StudentID           uuid.UUID                  `json:"student_id"`
	LandlordID          uuid.UUID                  `json:"landlord_id"`
	PropertyID          uuid.UUID                  `json:"property_id"`
	MoveInDate          string                     `json:"move_in_date"`
	LeaseDurationMonths int                        `json:"lease_duration_months"`
	MonthlyRent         decimal.Decimal            `json:"monthly_rent"`
	SecurityDeposit     decimal.Decimal            `json:"security_deposit"`
	TotalAmount         decimal.Decimal            `json:"total_amount"`
	CommissionAmount    decimal.Decimal            `json:"commission_amount"`
	LandlordPayout      decimal.Decimal            `json:"landlord_payout"`
	Status              enums.BookingStatus        `json:"status"`
	PaymentStatus       enums.BookingPaymentStatus `json:"payment_status"`
	Notes               *string                    `json:"notes,omitempty"`
	RejectionReason     *string                    `json:"rejection_reason,omitempty"`
	CancellationReason  *string                    `json:"cancellation_reason,omitempty"`
	RefundAmount        *decimal.Decimal           `json:"refund_amount,omitempty"`
	PaymentReference    *string                    `json:"payment_reference,omitempty"`
	ApprovedAt          *time.Time                 `json:"approved_at,omitempty"`
	RejectedAt          *time.Time                 `json:"rejected_at,omitempty"`
	CancelledAt         *time.Time                 `json:"cancelled_at,omitempty"`
	CompletedAt         *time.Time                 `json:"completed_at,omitempty"`
	CreatedAt           time.Time                  `json:"created_at"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

// BookingEventDTO is the API representation of an audit entry.
type BookingEventDTO struct {
	ID         uuid.UUID              `json:"id"`
	ActorID    *uuid.UUID             `json:"actor_id,omitempty"`
	Action     enums.BookingEventType `json:"action"`
	FromStatus *enums.BookingStatus   `json:"from_status,omitempty"`
	ToStatus   *enums.BookingStatus   `json:"to_status,omitempty"`
	Reason     *string                `json:"reason,omitempty"`
	Amount     *decimal.Decimal       `json:"amount,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

const moveInDateLayout = "2006-01-02"

// FromModel maps a booking row onto its DTO.
func FromModel(b *models.Booking) BookingDTO {
	return BookingDTO{
		ID:                  b.ID,
		BookingReference:    b.BookingReference,
		StudentID:           b.StudentID,
		LandlordID:          b.LandlordID,
		PropertyID:          b.PropertyID,
		MoveInDate:          b.MoveInDate.UTC().Format(moveInDateLayout),
		LeaseDurationMonths: b.LeaseDurationMonths,
		MonthlyRent:         b.MonthlyRent,
		SecurityDeposit:     b.SecurityDeposit,
		TotalAmount:         b.TotalAmount,
		CommissionAmount:    b.CommissionAmount,
		LandlordPayout:      b.LandlordPayout,
		Status:              b.Status,
		PaymentStatus:       b.PaymentStatus,
		Notes:               b.Notes,
		RejectionReason:     b.RejectionReason,
		CancellationReason:  b.CancellationReason,
		RefundAmount:        b.RefundAmount,
		PaymentReference:    b.PaymentReference,
		ApprovedAt:          b.ApprovedAt,
		RejectedAt:          b.RejectedAt,
		CancelledAt:         b.CancelledAt,
		CompletedAt:         b.CompletedAt,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

// EventsFromModels maps audit rows onto DTOs.
func EventsFromModels(events []models.BookingEvent) []BookingEventDTO {
	out := make([]BookingEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, BookingEventDTO{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Reason:     e.Reason,
			Amount:     e.Amount,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
