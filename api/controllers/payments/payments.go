package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/api/middleware"
	"github.com/campusdigs/campusdigs-backend/api/responses"
	"github.com/campusdigs/campusdigs-backend/api/validators"
	internalpayments "github.com/campusdigs/campusdigs-backend/internal/payments"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

type PaymentInitiator interface {
	Initiate(ctx context.Context, input internalpayments.InitiateInput) (*internalpayments.InitiateResult, error)
}

type PaymentReconciler interface {
	Owner(ctx context.Context, reference string) (uuid.UUID, error)
	Reconcile(ctx context.Context, reference string) (*internalpayments.ReconciliationResult, error)
}

type initializeRequest struct {
	BookingID   string          `json:"booking_id,omitempty" validate:"omitempty,uuid"`
	PropertyID  string          `json:"property_id,omitempty" validate:"omitempty,uuid"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	PaymentType string          `json:"payment_type,omitempty"`
	Email       string          `json:"email,omitempty" validate:"omitempty,email"`
}

// Initialize opens a hosted checkout for the calling student.
func Initialize(svc PaymentInitiator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment initiator unavailable"))
			return
		}
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload initializeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpayments.InitiateInput{
			Amount:       payload.Amount,
			StudentID:    identity.UserID,
			StudentEmail: identity.Email,
		}
		if email := strings.TrimSpace(payload.Email); email != "" {
			input.StudentEmail = email
		}
		if payload.PaymentType != "" {
			paymentType, err := enums.ParsePaymentType(payload.PaymentType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_type"))
				return
			}
			input.PaymentType = paymentType
		}
		if payload.BookingID != "" {
			bookingID, err := uuid.Parse(payload.BookingID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking_id"))
				return
			}
			input.BookingID = &bookingID
		}
		if payload.PropertyID != "" {
			propertyID, err := uuid.Parse(payload.PropertyID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid property_id"))
				return
			}
			input.PropertyID = propertyID
		}

		result, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Verify reconciles a reference after the gateway redirects the student back.
// Students may only verify their own references; ownership is settled before the
// gateway is called.
func Verify(svc PaymentReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler unavailable"))
			return
		}
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReference(ctx, reference)
		}
		if identity.Role != enums.ActorRoleAdmin {
			if err := checkOwner(ctx, svc, reference, identity.UserID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		result, err := svc.Reconcile(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if identity.Role != enums.ActorRoleAdmin && result.StudentID != identity.UserID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another student"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// checkOwner trusts the recorded payment or intent, then falls back to the student
// id embedded in generated references.
func checkOwner(ctx context.Context, svc PaymentReconciler, reference string, userID uuid.UUID) error {
	owner, err := svc.Owner(ctx, reference)
	if err != nil {
		return err
	}
	if owner == uuid.Nil && internalpayments.ReferenceNamesStudent(reference, userID) {
		return nil
	}
	if owner != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another student")
	}
	return nil
}
