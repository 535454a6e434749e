package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// BookingCreatedEvent announces a new rental request awaiting the landlord.
type BookingCreatedEvent struct {
	BookingID        uuid.UUID       `json:"booking_id"`
	BookingReference string          `json:"booking_reference"`
	StudentID        uuid.UUID       `json:"student_id"`
	LandlordID       uuid.UUID       `json:"landlord_id"`
	PropertyID       uuid.UUID       `json:"property_id"`
	MoveInDate       string          `json:"move_in_date"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// BookingStatusChangedEvent covers approve, reject, cancel and complete.
type BookingStatusChangedEvent struct {
	BookingID        uuid.UUID           `json:"booking_id"`
	BookingReference string              `json:"booking_reference"`
	StudentID        uuid.UUID           `json:"student_id"`
	LandlordID       uuid.UUID           `json:"landlord_id"`
	FromStatus       enums.BookingStatus `json:"from_status"`
	ToStatus         enums.BookingStatus `json:"to_status"`
	Reason           string              `json:"reason,omitempty"`
	RefundAmount     *decimal.Decimal    `json:"refund_amount,omitempty"`
	ChangedAt        time.Time           `json:"changed_at"`
}

// BookingPaidEvent is emitted once a verified payment settles a booking.
type BookingPaidEvent struct {
	BookingID        uuid.UUID       `json:"booking_id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	StudentID        uuid.UUID       `json:"student_id"`
	PropertyID       uuid.UUID       `json:"property_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency"`
	PaidAt           time.Time       `json:"paid_at"`
}
