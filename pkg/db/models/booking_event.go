package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/pkg/enums"
)

// BookingEvent records an immutable booking lifecycle step.
type BookingEvent struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID  uuid.UUID              `gorm:"column:booking_id;type:uuid;not null"`
	ActorID    *uuid.UUID             `gorm:"column:actor_id;type:uuid"`
	Action     enums.BookingEventType `gorm:"column:action;type:booking_event_type;not null"`
	FromStatus *enums.BookingStatus   `gorm:"column:from_status;type:booking_status"`
	ToStatus   *enums.BookingStatus   `gorm:"column:to_status;type:booking_status"`
	Reason     *string                `gorm:"column:reason"`
	Amount     *decimal.Decimal       `gorm:"column:amount;type:numeric(12,2)"`
	Metadata   json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}
