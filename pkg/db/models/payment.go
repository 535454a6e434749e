package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// Payment is a gateway charge confirmed by the reconciler. One row per reference.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentReference  string              `gorm:"column:payment_reference;not null;uniqueIndex:ux_payments_payment_reference"`
	BookingID         *uuid.UUID          `gorm:"column:booking_id;type:uuid"`
	StudentID         uuid.UUID           `gorm:"column:student_id;type:uuid;not null"`
	PropertyID        uuid.UUID           `gorm:"column:property_id;type:uuid;not null"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency      `gorm:"column:currency;type:text;not null;default:'NGN'"`
	PaymentType       enums.PaymentType   `gorm:"column:payment_type;type:text;not null;default:'full'"`
	PaymentMethod     *string             `gorm:"column:payment_method"`
	AuthorizationCode *string             `gorm:"column:authorization_code"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	GatewayStatus     string              `gorm:"column:gateway_status;not null"`
	CustomerEmail     *string             `gorm:"column:customer_email"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
