package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// Booking is a student's rental request for a property and its settlement state.
type Booking struct {
	ID                  uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingReference    string                     `gorm:"column:booking_reference;not null;uniqueIndex:ux_bookings_booking_reference"`
	StudentID           uuid.UUID                  `gorm:"column:student_id;type:uuid;not null"`
	LandlordID          uuid.UUID                  `gorm:"column:landlord_id;type:uuid;not null"`
	PropertyID          uuid.UUID                  `gorm:"column:property_id;type:uuid;not null"`
	MoveInDate          time.Time                  `gorm:"column:move_in_date;type:date;not null"`
	LeaseDurationMonths int                        `gorm:"column:lease_duration_months;not null"`
	MonthlyRent         decimal.Decimal            `gorm:"column:monthly_rent;type:numeric(12,2);not null"`
	SecurityDeposit     decimal.Decimal            `gorm:"column:security_deposit;type:numeric(12,2);not null"`
	TotalAmount         decimal.Decimal            `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CommissionAmount    decimal.Decimal            `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	LandlordPayout      decimal.Decimal            `gorm:"column:landlord_payout;type:numeric(12,2);not null"`
	Status              enums.BookingStatus        `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	PaymentStatus       enums.BookingPaymentStatus `gorm:"column:payment_status;type:booking_payment_status;not null;default:'pending'"`
	Notes               *string                    `gorm:"column:notes"`
	RejectionReason     *string                    `gorm:"column:rejection_reason"`
	CancellationReason  *string                    `gorm:"column:cancellation_reason"`
	RefundAmount        *decimal.Decimal           `gorm:"column:refund_amount;type:numeric(12,2)"`
	PaymentReference    *string                    `gorm:"column:payment_reference"`
	ApprovedBy          *uuid.UUID                 `gorm:"column:approved_by;type:uuid"`
	RejectedBy          *uuid.UUID                 `gorm:"column:rejected_by;type:uuid"`
	CancelledBy         *uuid.UUID                 `gorm:"column:cancelled_by;type:uuid"`
	CompletedBy         *uuid.UUID                 `gorm:"column:completed_by;type:uuid"`
	ApprovedAt          *time.Time                 `gorm:"column:approved_at"`
	RejectedAt          *time.Time                 `gorm:"column:rejected_at"`
	CancelledAt         *time.Time                 `gorm:"column:cancelled_at"`
	CompletedAt         *time.Time                 `gorm:"column:completed_at"`
	CreatedAt           time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
