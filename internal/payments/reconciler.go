package payments

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
	"github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/metrics"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox/payloads"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
)

// errDuplicatePayment unwinds the transaction when another writer recorded the reference first.
var errDuplicatePayment = errors.New("payment already recorded")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reconcileMetrics interface {
	IncReconciliation(outcome string)
	IncAmountMismatch()
}

// ReconcilerParams bundles the collaborators of the reconciler.
type ReconcilerParams struct {
	Payments Repository
	Bookings bookings.Repository
	Gateway  Gateway
	Intents  IntentStore
	Audit    audit.Recorder
	Outbox   outbox.Emitter
	Tx       txRunner
	Metrics  reconcileMetrics
	Config   config.PaymentConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// Reconciler turns a verified gateway charge into exactly one Payment row.
type Reconciler struct {
	payments  Repository
	bookings  bookings.Repository
	gateway   Gateway
	intents   IntentStore
	audit     audit.Recorder
	outbox    outbox.Emitter
	tx        txRunner
	metrics   reconcileMetrics
	tolerance decimal.Decimal
	currency  enums.Currency
	logg      *logger.Logger
	now       func() time.Time
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	switch {
	case p.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case p.Bookings == nil:
		return nil, fmt.Errorf("bookings repository required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case p.Intents == nil:
		return nil, fmt.Errorf("intent store required")
	case p.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Config.AmountTolerance.IsNegative() {
		return nil, fmt.Errorf("amount tolerance must be non-negative")
	}
	currency, err := enums.ParseCurrency(p.Config.Currency)
	if err != nil {
		return nil, err
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		payments:  p.Payments,
		bookings:  p.Bookings,
		gateway:   p.Gateway,
		intents:   p.Intents,
		audit:     p.Audit,
		outbox:    p.Outbox,
		tx:        p.Tx,
		metrics:   p.Metrics,
		tolerance: p.Config.AmountTolerance,
		currency:  currency,
		logg:      p.Logger,
		now:       now,
	}, nil
}

// settlement is what the reconciler knows about a charge before writing it.
type settlement struct {
	bookingID   *uuid.UUID
	propertyID  uuid.UUID
	studentID   uuid.UUID
	paymentType enums.PaymentType
	expected    decimal.Decimal
}

// Reconcile verifies reference with the gateway and records it once. Repeated and
// concurrent calls for the same reference return the first recorded result.
func (r *Reconciler) Reconcile(ctx context.Context, reference string) (*ReconciliationResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if r.logg != nil {
		ctx = r.logg.WithReference(ctx, reference)
	}

	if existing, err := r.existing(ctx, reference); err != nil || existing != nil {
		return existing, err
	}

	txn, err := r.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		r.count(metrics.OutcomeGatewayError)
		r.logError(ctx, "gateway verify failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "verify payment")
	}
	if txn == nil {
		r.count(metrics.OutcomeGatewayError)
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "empty verification response")
	}
	if !txn.Succeeded() {
		r.count(metrics.OutcomeFailed)
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "gateway_status", txn.Status), "payment not successful")
		}
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "gateway reported "+txn.Status).
			WithDetails(map[string]any{detailGatewayStatus: txn.Status})
	}

	intent, err := r.intents.Get(ctx, reference)
	if err != nil {
		r.logError(ctx, "intent lookup failed, falling back to gateway metadata", err)
		intent = nil
	}

	plan, err := r.settle(ctx, intent, txn)
	if err != nil {
		r.count(metrics.OutcomeError)
		return nil, err
	}
	if err := r.checkAmount(ctx, plan, txn); err != nil {
		return nil, err
	}

	result, err := r.record(ctx, reference, plan, txn)
	if errors.Is(err, errDuplicatePayment) {
		return r.existing(ctx, reference)
	}
	if err != nil {
		r.count(metrics.OutcomeError)
		r.logError(ctx, "recording payment failed", err)
		return nil, serviceError(err, "record payment")
	}

	if err := r.intents.Delete(ctx, reference); err != nil {
		r.logError(ctx, "failed to delete payment intent", err)
	}
	r.count(metrics.OutcomeRecorded)
	if r.logg != nil {
		r.logg.Info(ctx, "payment recorded")
	}
	return result, nil
}

// Owner returns the student a reference belongs to, read from the recorded payment
// or the pending intent without calling the gateway. uuid.Nil means neither exists.
func (r *Reconciler) Owner(ctx context.Context, reference string) (uuid.UUID, error) {
	reference = strings.TrimSpace(reference)
	payment, err := r.payments.FindByReference(ctx, reference)
	switch {
	case err == nil:
		return payment.StudentID, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	intent, err := r.intents.Get(ctx, reference)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent == nil {
		return uuid.Nil, nil
	}
	return intent.StudentID, nil
}

func (r *Reconciler) existing(ctx context.Context, reference string) (*ReconciliationResult, error) {
	payment, err := r.payments.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	r.count(metrics.OutcomeAlreadyRecorded)
	return resultFromPayment(payment, true), nil
}

// settle resolves ownership and the expected amount from the intent, then from
// gateway metadata and the booking it names.
func (r *Reconciler) settle(ctx context.Context, intent *Intent, txn *paystack.Transaction) (*settlement, error) {
	plan := &settlement{paymentType: enums.PaymentTypeFull}
	if intent != nil {
		plan.bookingID = intent.BookingID
		plan.propertyID = intent.PropertyID
		plan.studentID = intent.StudentID
		plan.expected = intent.Amount
		if intent.PaymentType != "" {
			plan.paymentType = intent.PaymentType
		}
		return plan, nil
	}

	meta := txn.Metadata
	if id, ok := parseUUID(meta[metaBookingID]); ok {
		plan.bookingID = &id
	}
	if id, ok := parseUUID(meta[metaPropertyID]); ok {
		plan.propertyID = id
	}
	if id, ok := parseUUID(meta[metaStudentID]); ok {
		plan.studentID = id
	}
	if pt, err := enums.ParsePaymentType(meta[metaPaymentType]); err == nil {
		plan.paymentType = pt
	}

	if plan.bookingID != nil {
		booking, err := r.bookings.FindByID(ctx, *plan.bookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment names an unknown booking")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		plan.expected = booking.TotalAmount
		if plan.propertyID == uuid.Nil {
			plan.propertyID = booking.PropertyID
		}
		if plan.studentID == uuid.Nil {
			plan.studentID = booking.StudentID
		}
	} else if amount, ok := expectedFromMetadata(meta); ok {
		plan.expected = amount
	}

	if !plan.expected.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected payment amount unknown")
	}
	if plan.propertyID == uuid.Nil || plan.studentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment owner unknown")
	}
	return plan, nil
}

func (r *Reconciler) checkAmount(ctx context.Context, plan *settlement, txn *paystack.Transaction) error {
	drift := txn.Amount.Sub(plan.expected).Abs()
	currencyOK := txn.Currency == "" || strings.EqualFold(txn.Currency, string(r.currency))
	if drift.LessThanOrEqual(r.tolerance) && currencyOK {
		return nil
	}

	r.count(metrics.OutcomeAmountMismatch)
	if r.metrics != nil {
		r.metrics.IncAmountMismatch()
	}
	err := pkgerrors.New(pkgerrors.CodeAmountMismatch, "reported amount does not match expected amount").
		WithDetails(map[string]any{
			"expected": plan.expected.StringFixed(2),
			"reported": txn.Amount.StringFixed(2),
			"currency": txn.Currency,
		})
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"expected_amount": plan.expected.StringFixed(2),
			"reported_amount": txn.Amount.StringFixed(2),
			"currency":        txn.Currency,
		})
		r.logg.Error(logCtx, "payment amount mismatch", err)
	}
	return err
}

func (r *Reconciler) record(ctx context.Context, reference string, plan *settlement, txn *paystack.Transaction) (*ReconciliationResult, error) {
	payment := &models.Payment{
		ID:                uuid.New(),
		PaymentReference:  reference,
		BookingID:         plan.bookingID,
		StudentID:         plan.studentID,
		PropertyID:        plan.propertyID,
		Amount:            txn.Amount,
		Currency:          r.currency,
		PaymentType:       plan.paymentType,
		PaymentMethod:     optional(txn.Channel),
		AuthorizationCode: optional(txn.AuthorizationCode),
		PaymentStatus:     enums.PaymentStatusCompleted,
		GatewayStatus:     txn.Status,
		CustomerEmail:     optional(txn.CustomerEmail),
		PaidAt:            txn.PaidAt,
	}
	if payment.PaidAt == nil {
		now := r.now().UTC()
		payment.PaidAt = &now
	}

	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.payments.WithTx(tx).Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, paymentReferenceIndexes...) {
				return errDuplicatePayment
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment")
		}
		if plan.bookingID == nil {
			return nil
		}

		bookingRepo := r.bookings.WithTx(tx)
		booking, err := bookingRepo.FindByIDForUpdate(ctx, *plan.bookingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		switch booking.Status {
		case enums.BookingStatusCancelled, enums.BookingStatusRejected:
			return r.refundClosed(ctx, tx, booking, plan, payment)
		}

		marked, err := bookingRepo.MarkPaid(ctx, booking.ID, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark booking paid")
		}
		if !marked {
			return pkgerrors.New(pkgerrors.CodeConflict, "booking is no longer awaiting payment").
				WithDetails(map[string]any{"payment_status": booking.PaymentStatus, "status": booking.Status})
		}

		r.audit.Record(ctx, tx, paymentEntry(booking.ID, plan, payment))

		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingPaid,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         &outbox.ActorRef{UserID: plan.studentID, Role: string(enums.ActorRoleStudent)},
			Data: payloads.BookingPaidEvent{
				BookingID:        booking.ID,
				PaymentID:        payment.ID,
				PaymentReference: reference,
				StudentID:        plan.studentID,
				PropertyID:       plan.propertyID,
				Amount:           payment.Amount,
				Currency:         payment.Currency,
				PaidAt:           *payment.PaidAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return resultFromPayment(payment, false), nil
}

// refundClosed settles a charge that landed after the booking was cancelled or
// rejected. The money was captured, so the payment is kept and the whole amount is
// recorded as owed back to the student.
func (r *Reconciler) refundClosed(ctx context.Context, tx *gorm.DB, booking *models.Booking, plan *settlement, payment *models.Payment) error {
	changed, err := r.bookings.WithTx(tx).ConditionalUpdate(ctx, booking.ID,
		bookings.Expect{Status: booking.Status, PaymentStatus: enums.BookingPaymentPending},
		map[string]any{
			"payment_status":    enums.BookingPaymentRefunded,
			"payment_reference": payment.PaymentReference,
			"refund_amount":     payment.Amount,
		})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund on closed booking")
	}
	if !changed {
		return pkgerrors.New(pkgerrors.CodeConflict, "booking is no longer awaiting payment").
			WithDetails(map[string]any{"payment_status": booking.PaymentStatus, "status": booking.Status})
	}

	r.audit.Record(ctx, tx, paymentEntry(booking.ID, plan, payment))
	r.audit.Record(ctx, tx, audit.Entry{
		BookingID: booking.ID,
		ActorID:   &plan.studentID,
		Action:    enums.BookingEventRefundRecorded,
		Amount:    &payment.Amount,
		Metadata: map[string]any{
			"payment_id":        payment.ID.String(),
			"payment_reference": payment.PaymentReference,
			"booking_status":    string(booking.Status),
			"reason":            "payment captured after booking closed",
		},
	})

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"booking_id":     booking.ID.String(),
			"booking_status": string(booking.Status),
			"refund_amount":  payment.Amount.StringFixed(2),
		})
		r.logg.Warn(logCtx, "payment captured on closed booking, full refund recorded")
	}
	return nil
}

func paymentEntry(bookingID uuid.UUID, plan *settlement, payment *models.Payment) audit.Entry {
	metadata := map[string]any{
		"payment_id":        payment.ID.String(),
		"payment_reference": payment.PaymentReference,
	}
	if payment.PaymentMethod != nil {
		metadata["channel"] = *payment.PaymentMethod
	}
	return audit.Entry{
		BookingID: bookingID,
		ActorID:   &plan.studentID,
		Action:    enums.BookingEventPaymentRecorded,
		Amount:    &payment.Amount,
		Metadata:  metadata,
	}
}

func (r *Reconciler) count(outcome string) {
	if r.metrics != nil {
		r.metrics.IncReconciliation(outcome)
	}
}

func (r *Reconciler) logError(ctx context.Context, msg string, err error) {
	if r.logg != nil {
		r.logg.Error(ctx, msg, err)
	}
}

const detailGatewayStatus = "gateway_status"

// GatewayStatusOf extracts the gateway status carried by a PAYMENT_FAILED error.
func GatewayStatusOf(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentFailed {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	status, _ := details[detailGatewayStatus].(string)
	return status
}

func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func serviceError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
