package payments

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
)

type bookingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// InitiatorParams bundles the collaborators of the initiator.
type InitiatorParams struct {
	Bookings    bookingReader
	Gateway     Gateway
	Intents     IntentStore
	References  *ReferenceGenerator
	Config      config.PaymentConfig
	CallbackURL string
	Logger      *logger.Logger
	Now         func() time.Time
}

// Initiator opens gateway checkouts and remembers them as pending intents.
type Initiator struct {
	bookings    bookingReader
	gateway     Gateway
	intents     IntentStore
	refs        *ReferenceGenerator
	currency    enums.Currency
	callbackURL string
	logg        *logger.Logger
	now         func() time.Time
}

func NewInitiator(p InitiatorParams) (*Initiator, error) {
	if p.Bookings == nil {
		return nil, fmt.Errorf("bookings reader required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Intents == nil {
		return nil, fmt.Errorf("intent store required")
	}
	currency, err := enums.ParseCurrency(p.Config.Currency)
	if err != nil {
		return nil, err
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	refs := p.References
	if refs == nil {
		refs = NewReferenceGenerator(p.Config.ReferencePrefix, now)
	}
	return &Initiator{
		bookings:    p.Bookings,
		gateway:     p.Gateway,
		intents:     p.Intents,
		refs:        refs,
		currency:    currency,
		callbackURL: p.CallbackURL,
		logg:        p.Logger,
		now:         now,
	}, nil
}

// Initiate validates the charge, opens a hosted checkout and stores the pending intent.
// Gateway failures are returned as is; callers start over with a fresh reference.
func (i *Initiator) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	email := strings.TrimSpace(input.StudentEmail)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid email required")
	}
	paymentType := input.PaymentType
	if paymentType == "" {
		paymentType = enums.PaymentTypeFull
	}
	if !paymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment type")
	}

	amount := input.Amount
	propertyID := input.PropertyID
	if input.BookingID != nil {
		booking, err := i.payableBooking(ctx, *input.BookingID, input.StudentID)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			amount = booking.TotalAmount
		}
		if !amount.Equal(booking.TotalAmount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must equal the booking total").
				WithDetails(map[string]any{"expected": booking.TotalAmount.StringFixed(2)})
		}
		propertyID = booking.PropertyID
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if propertyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "property id required")
	}

	reference := i.refs.Next(propertyID, input.StudentID)
	ctx = i.withReference(ctx, reference)

	metadata := map[string]string{
		metaPropertyID:  propertyID.String(),
		metaStudentID:   input.StudentID.String(),
		metaPaymentType: string(paymentType),
		metaAmount:      amount.StringFixed(2),
	}
	if input.BookingID != nil {
		metadata[metaBookingID] = input.BookingID.String()
	}

	checkout, err := i.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Amount:      amount,
		Email:       email,
		Reference:   reference,
		Currency:    string(i.currency),
		CallbackURL: i.callbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		if i.logg != nil {
			i.logg.Error(ctx, "gateway initialize failed", err)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "initialize payment")
	}

	intent := Intent{
		Reference:   reference,
		BookingID:   input.BookingID,
		PropertyID:  propertyID,
		StudentID:   input.StudentID,
		Amount:      amount,
		Currency:    i.currency,
		PaymentType: paymentType,
		Email:       email,
		CreatedAt:   i.now().UTC(),
	}
	if err := i.intents.Save(ctx, intent); err != nil && i.logg != nil {
		// the gateway metadata still carries everything reconciliation needs
		i.logg.Error(ctx, "failed to store payment intent", err)
	}

	if i.logg != nil {
		i.logg.Info(ctx, "payment initialized")
	}
	return &InitiateResult{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        reference,
		Amount:           amount,
	}, nil
}

func (i *Initiator) payableBooking(ctx context.Context, bookingID, studentID uuid.UUID) (*models.Booking, error) {
	booking, err := i.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if booking.StudentID != studentID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another student")
	}
	if booking.PaymentStatus == enums.BookingPaymentPaid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking is already paid")
	}
	if booking.Status != enums.BookingStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking must be approved before payment").
			WithDetails(map[string]any{"status": booking.Status})
	}
	if booking.PaymentStatus != enums.BookingPaymentPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking is not awaiting payment").
			WithDetails(map[string]any{"payment_status": booking.PaymentStatus})
	}
	return booking, nil
}

func (i *Initiator) withReference(ctx context.Context, reference string) context.Context {
	if i.logg == nil {
		return ctx
	}
	return i.logg.WithReference(ctx, reference)
}

// expectedFromMetadata parses the amount the initiator recorded in gateway metadata.
func expectedFromMetadata(metadata map[string]string) (decimal.Decimal, bool) {
	raw, ok := metadata[metaAmount]
	if !ok {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}
