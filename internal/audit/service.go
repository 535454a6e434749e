// Package audit keeps the append-only trail of booking lifecycle steps.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

const savepointName = "booking_audit"

// Recorder is what domain services depend on to write audit rows.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry)
}

type failureCounter interface {
	IncAuditFailure()
}

// Entry captures the immutable data an audit row requires.
type Entry struct {
	BookingID  uuid.UUID
	ActorID    *uuid.UUID
	Action     enums.BookingEventType
	FromStatus *enums.BookingStatus
	ToStatus   *enums.BookingStatus
	Reason     string
	Amount     *decimal.Decimal
	Metadata   map[string]any
}

type Service struct {
	repo    Repository
	logg    *logger.Logger
	metrics failureCounter
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository, logg *logger.Logger, metrics failureCounter) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &Service{repo: repo, logg: logg, metrics: metrics}, nil
}

// Record appends entry inside tx under a savepoint. A failed write is rolled back to the
// savepoint, logged and counted; the caller's transaction carries on.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) {
	if err := s.record(ctx, tx, entry); err != nil {
		if s.logg != nil {
			ctx = s.logg.WithBookingID(ctx, entry.BookingID.String())
			ctx = s.logg.WithField(ctx, "audit_action", entry.Action.String())
			s.logg.Error(ctx, "booking audit write failed", err)
		}
		if s.metrics != nil {
			s.metrics.IncAuditFailure()
		}
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if entry.BookingID == uuid.Nil {
		return fmt.Errorf("booking id is required")
	}
	if !entry.Action.IsValid() {
		return fmt.Errorf("invalid audit action %q", entry.Action)
	}

	event := &models.BookingEvent{
		ID:         uuid.New(),
		BookingID:  entry.BookingID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		Amount:     entry.Amount,
	}
	if entry.Reason != "" {
		reason := entry.Reason
		event.Reason = &reason
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		event.Metadata = raw
	}

	if err := tx.SavePoint(savepointName).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		if rbErr := tx.RollbackTo(savepointName).Error; rbErr != nil {
			return fmt.Errorf("insert audit event: %w (rollback to savepoint: %v)", err, rbErr)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// History lists a booking's audit trail, oldest first.
func (s *Service) History(ctx context.Context, bookingID uuid.UUID) ([]models.BookingEvent, error) {
	if bookingID == uuid.Nil {
		return nil, fmt.Errorf("booking id is required")
	}
	return s.repo.ListByBookingID(ctx, bookingID)
}
