package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/internal/audit"
	"github.com/campusdigs/campusdigs-backend/internal/cancellation"
	"github.com/campusdigs/campusdigs-backend/internal/commission"
	"github.com/campusdigs/campusdigs-backend/internal/properties"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox/payloads"
	"github.com/campusdigs/campusdigs-backend/pkg/pagination"
)

const (
	maxReferenceAttempts = 5
	referenceSavepoint   = "booking_reference"
)

// bookingReferenceIndexes names the unique index as Postgres and sqlite report it.
var bookingReferenceIndexes = []string{"ux_bookings_booking_reference", "bookings.booking_reference"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rateSource interface {
	CommissionRate(ctx context.Context) (decimal.Decimal, error)
}

type auditTrail interface {
	audit.Recorder
	History(ctx context.Context, bookingID uuid.UUID) ([]models.BookingEvent, error)
}

// Service drives bookings through the status state machine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Booking, error)
	Approve(ctx context.Context, input ActionInput) (*models.Booking, error)
	Reject(ctx context.Context, input ActionInput) (*models.Booking, error)
	Cancel(ctx context.Context, input ActionInput) (*CancelResult, error)
	Complete(ctx context.Context, input ActionInput) (*models.Booking, error)
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Booking, error)
	History(ctx context.Context, id uuid.UUID, actor Actor) ([]models.BookingEvent, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
}

// ServiceParams bundles the collaborators of the booking service.
type ServiceParams struct {
	Repo       Repository
	Properties properties.Repository
	Rates      rateSource
	Audit      auditTrail
	Outbox     outbox.Emitter
	Tx         txRunner
	Policy     cancellation.Policy
	Config     config.BookingConfig
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	properties properties.Repository
	rates      rateSource
	audit      auditTrail
	outbox     outbox.Emitter
	tx         txRunner
	policy     cancellation.Policy
	cfg        config.BookingConfig
	logg       *logger.Logger
	now        func() time.Time
}

// transitionPlan is what an action contributes to a status change beyond the status itself.
type transitionPlan struct {
	expectPayment enums.BookingPaymentStatus
	updates       map[string]any
	reason        string
	refund        *decimal.Decimal
	extraAudit    []audit.Entry
}

// NewService builds a booking service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if p.Properties == nil {
		return nil, fmt.Errorf("properties repository required")
	}
	if p.Rates == nil {
		return nil, fmt.Errorf("commission rate source required")
	}
	if p.Audit == nil {
		return nil, fmt.Errorf("audit trail required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Config.MinLeaseMonths <= 0 || p.Config.MinLeaseMonths >= p.Config.MaxLeaseMonths {
		return nil, fmt.Errorf("invalid lease bounds %d..%d", p.Config.MinLeaseMonths, p.Config.MaxLeaseMonths)
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       p.Repo,
		properties: p.Properties,
		rates:      p.Rates,
		audit:      p.Audit,
		outbox:     p.Outbox,
		tx:         p.Tx,
		policy:     p.Policy,
		cfg:        p.Config,
		logg:       p.Logger,
		now:        now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Booking, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	property, err := s.properties.FindByID(ctx, input.PropertyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "property not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load property")
	}
	if property.Status != enums.PropertyStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "property is not accepting bookings")
	}
	if property.LandlordID != input.LandlordID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "landlord does not own property")
	}

	rent := property.MonthlyRent
	if input.MonthlyRent != nil {
		rent = *input.MonthlyRent
	}
	deposit := property.SecurityDeposit
	if input.SecurityDeposit != nil {
		deposit = *input.SecurityDeposit
	}

	rate, err := s.rates.CommissionRate(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission rate")
	}
	breakdown, err := commission.Calculate(rent, input.LeaseDurationMonths, deposit, rate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	booking := &models.Booking{
		ID:                  uuid.New(),
		StudentID:           input.StudentID,
		LandlordID:          input.LandlordID,
		PropertyID:          input.PropertyID,
		MoveInDate:          dateOf(input.MoveInDate),
		LeaseDurationMonths: input.LeaseDurationMonths,
		MonthlyRent:         rent,
		SecurityDeposit:     deposit,
		TotalAmount:         breakdown.Total,
		CommissionAmount:    breakdown.Commission,
		LandlordPayout:      breakdown.LandlordPayout,
		Status:              enums.BookingStatusPending,
		PaymentStatus:       enums.BookingPaymentPending,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		booking.Notes = &notes
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.insertWithReference(ctx, tx, booking, now); err != nil {
			return err
		}

		to := enums.BookingStatusPending
		s.audit.Record(ctx, tx, audit.Entry{
			BookingID: booking.ID,
			ActorID:   &input.Actor.UserID,
			Action:    enums.BookingEventCreated,
			ToStatus:  &to,
			Amount:    &booking.TotalAmount,
			Metadata: map[string]any{
				"booking_reference": booking.BookingReference,
				"commission_rate":   rate.String(),
			},
		})

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingCreatedEvent{
				BookingID:        booking.ID,
				BookingReference: booking.BookingReference,
				StudentID:        booking.StudentID,
				LandlordID:       booking.LandlordID,
				PropertyID:       booking.PropertyID,
				MoveInDate:       booking.MoveInDate.Format(moveInDateLayout),
				TotalAmount:      booking.TotalAmount,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, serviceError(err, "create booking")
	}

	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, booking.ID.String())
		logCtx = s.logg.WithField(logCtx, "booking_reference", booking.BookingReference)
		s.logg.Info(logCtx, "booking created")
	}
	return booking, nil
}

func (s *service) validateCreate(input CreateInput) error {
	if input.Actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	switch input.Actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleStudent:
		if input.Actor.UserID != input.StudentID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "students may only book for themselves")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "only students may request bookings")
	}

	var missing []string
	if input.StudentID == uuid.Nil {
		missing = append(missing, "student_id")
	}
	if input.LandlordID == uuid.Nil {
		missing = append(missing, "landlord_id")
	}
	if input.PropertyID == uuid.Nil {
		missing = append(missing, "property_id")
	}
	if input.MoveInDate.IsZero() {
		missing = append(missing, "move_in_date")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}

	if !dateOf(input.MoveInDate).After(dateOf(s.now())) {
		return pkgerrors.New(pkgerrors.CodeValidation, "move-in date must be after today")
	}
	if input.LeaseDurationMonths < s.cfg.MinLeaseMonths || input.LeaseDurationMonths > s.cfg.MaxLeaseMonths {
		return pkgerrors.New(pkgerrors.CodeValidation, "lease duration out of range").
			WithDetails(map[string]any{
				"min_months": s.cfg.MinLeaseMonths,
				"max_months": s.cfg.MaxLeaseMonths,
			})
	}
	if input.MonthlyRent != nil && !input.MonthlyRent.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "monthly rent must be positive")
	}
	if input.SecurityDeposit != nil && input.SecurityDeposit.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "security deposit must not be negative")
	}
	return nil
}

// insertWithReference allocates CD<YYYY><MM><seq4> and retries on a reference collision.
func (s *service) insertWithReference(ctx context.Context, tx *gorm.DB, booking *models.Booking, now time.Time) error {
	repo := s.repo.WithTx(tx)
	prefix := s.cfg.ReferencePrefix + now.Format("200601")

	count, err := repo.CountByReferencePrefix(ctx, prefix)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count booking references")
	}

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		booking.BookingReference = fmt.Sprintf("%s%04d", prefix, count+int64(attempt)+1)

		if err := tx.SavePoint(referenceSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "savepoint")
		}
		err := repo.Create(ctx, booking)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, bookingReferenceIndexes...) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert booking")
		}
		if rbErr := tx.RollbackTo(referenceSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback booking reference")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a booking reference")
}

func (s *service) Approve(ctx context.Context, input ActionInput) (*models.Booking, error) {
	booking, _, err := s.transition(ctx, input, enums.BookingActionApprove, func(b *models.Booking, now time.Time) (*transitionPlan, error) {
		return &transitionPlan{updates: map[string]any{
			"approved_at": now,
			"approved_by": input.Actor.UserID,
		}}, nil
	})
	return booking, err
}

func (s *service) Reject(ctx context.Context, input ActionInput) (*models.Booking, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	booking, _, err := s.transition(ctx, input, enums.BookingActionReject, func(b *models.Booking, now time.Time) (*transitionPlan, error) {
		return &transitionPlan{
			reason: reason,
			updates: map[string]any{
				"rejected_at":      now,
				"rejected_by":      input.Actor.UserID,
				"rejection_reason": reason,
			},
		}, nil
	})
	return booking, err
}

func (s *service) Cancel(ctx context.Context, input ActionInput) (*CancelResult, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	booking, plan, err := s.transition(ctx, input, enums.BookingActionCancel, func(b *models.Booking, now time.Time) (*transitionPlan, error) {
		refund := s.policy.Evaluate(cancellation.Input{
			MoveInDate:    b.MoveInDate,
			Now:           now,
			PaymentStatus: b.PaymentStatus,
			TotalAmount:   b.TotalAmount,
		})
		plan := &transitionPlan{
			expectPayment: b.PaymentStatus,
			reason:        reason,
			refund:        &refund.Amount,
			updates: map[string]any{
				"cancelled_at":        now,
				"cancelled_by":        input.Actor.UserID,
				"cancellation_reason": reason,
				"refund_amount":       refund.Amount,
			},
		}
		if b.PaymentStatus == enums.BookingPaymentPaid {
			plan.updates["payment_status"] = enums.BookingPaymentRefunded
			plan.extraAudit = append(plan.extraAudit, audit.Entry{
				Action: enums.BookingEventRefundRecorded,
				Reason: reason,
				Amount: &refund.Amount,
				Metadata: map[string]any{
					"tier":    string(refund.Tier),
					"percent": refund.Percent.String(),
				},
			})
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{Booking: booking, RefundAmount: *plan.refund}, nil
}

func (s *service) Complete(ctx context.Context, input ActionInput) (*models.Booking, error) {
	booking, _, err := s.transition(ctx, input, enums.BookingActionComplete, func(b *models.Booking, now time.Time) (*transitionPlan, error) {
		if b.PaymentStatus != enums.BookingPaymentPaid {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "booking must be paid before completion").
				WithDetails(map[string]any{"payment_status": b.PaymentStatus})
		}
		return &transitionPlan{
			expectPayment: enums.BookingPaymentPaid,
			updates: map[string]any{
				"completed_at": now,
				"completed_by": input.Actor.UserID,
			},
		}, nil
	})
	return booking, err
}

// transition loads the booking under lock, checks the actor and the matrix, applies the
// action's plan with a conditional update and records audit and outbox entries in one
// transaction.
func (s *service) transition(
	ctx context.Context,
	input ActionInput,
	action enums.BookingAction,
	plan func(b *models.Booking, now time.Time) (*transitionPlan, error),
) (*models.Booking, *transitionPlan, error) {
	if input.BookingID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		updated *models.Booking
		applied *transitionPlan
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, input.BookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		if err := authorize(action, booking, input.Actor); err != nil {
			return err
		}

		next, ok := NextStatus(booking.Status, action)
		if !ok {
			return invalidTransition(booking.Status, action)
		}

		now := s.now().UTC()
		p, err := plan(booking, now)
		if err != nil {
			return err
		}
		p.updates["status"] = next
		p.updates["updated_at"] = now

		from := booking.Status
		changed, err := repo.ConditionalUpdate(ctx, booking.ID, Expect{Status: from, PaymentStatus: p.expectPayment}, p.updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}
		if !changed {
			return invalidTransition(from, action)
		}

		events := actionEvents[action]
		actorID := input.Actor.UserID
		s.audit.Record(ctx, tx, audit.Entry{
			BookingID:  booking.ID,
			ActorID:    &actorID,
			Action:     events.audit,
			FromStatus: &from,
			ToStatus:   &next,
			Reason:     p.reason,
		})
		for _, extra := range p.extraAudit {
			extra.BookingID = booking.ID
			extra.ActorID = &actorID
			s.audit.Record(ctx, tx, extra)
		}

		updated, err = repo.FindByID(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload booking")
		}
		applied = p

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     events.outbox,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingStatusChangedEvent{
				BookingID:        booking.ID,
				BookingReference: booking.BookingReference,
				StudentID:        booking.StudentID,
				LandlordID:       booking.LandlordID,
				FromStatus:       from,
				ToStatus:         next,
				Reason:           p.reason,
				RefundAmount:     p.refund,
				ChangedAt:        now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, nil, serviceError(err, "booking "+string(action))
	}

	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, updated.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"action": string(action),
			"status": string(updated.Status),
		})
		s.logg.Info(logCtx, "booking status changed")
	}
	return updated, applied, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Booking, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if !isParty(booking, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking not visible to user")
	}
	return booking, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID, actor Actor) ([]models.BookingEvent, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	events, err := s.audit.History(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking history")
	}
	return events, nil
}

// List returns the caller's bookings newest first. Students see their requests,
// landlords see bookings on their properties and admins see everything.
func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	filter := listFilter{Limit: input.Limit}
	switch input.Actor.Role {
	case enums.ActorRoleStudent:
		filter.StudentID = input.Actor.UserID
	case enums.ActorRoleLandlord:
		filter.LandlordID = input.Actor.UserID
	case enums.ActorRoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list bookings")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseBookingStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = status
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.Cursor = cursor

	rows, next, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// authorize: the landlord (or an admin) decides and completes; any party may cancel.
func authorize(action enums.BookingAction, booking *models.Booking, actor Actor) error {
	if actor.Role == enums.ActorRoleAdmin {
		return nil
	}
	switch action {
	case enums.BookingActionCancel:
		if isParty(booking, actor) {
			return nil
		}
	default:
		if actor.Role == enums.ActorRoleLandlord && actor.UserID == booking.LandlordID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("actor may not %s this booking", action))
}

func isParty(booking *models.Booking, actor Actor) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return true
	case enums.ActorRoleStudent:
		return actor.UserID == booking.StudentID
	case enums.ActorRoleLandlord:
		return actor.UserID == booking.LandlordID
	default:
		return false
	}
}

func invalidTransition(from enums.BookingStatus, action enums.BookingAction) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot %s a %s booking", action, from)).
		WithDetails(map[string]any{"status": from, "action": action})
}

func buildActor(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func serviceError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// dateOf truncates t to its UTC calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
