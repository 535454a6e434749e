package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// Property is the listing a booking is made against. Listings are managed elsewhere;
// this service only reads them.
type Property struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LandlordID      uuid.UUID            `gorm:"column:landlord_id;type:uuid;not null"`
	Title           string               `gorm:"column:title;not null"`
	MonthlyRent     decimal.Decimal      `gorm:"column:monthly_rent;type:numeric(12,2);not null"`
	SecurityDeposit decimal.Decimal      `gorm:"column:security_deposit;type:numeric(12,2);not null"`
	Status          enums.PropertyStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
