package bookings

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusdigs/campusdigs-backend/api/middleware"
	"github.com/campusdigs/campusdigs-backend/api/responses"
	"github.com/campusdigs/campusdigs-backend/api/validators"
	internalbookings "github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

const (
	bookingIDParam = "bookingId"
	maxNotesLength = 2000
	maxReasonLen   = 500
)

type createBookingRequest struct {
	PropertyID          string           `json:"property_id" validate:"required,uuid"`
	LandlordID          string           `json:"landlord_id" validate:"required,uuid"`
	MoveInDate          string           `json:"move_in_date" validate:"required,datetime=2006-01-02"`
	LeaseDurationMonths int              `json:"lease_duration_months" validate:"required,gt=0"`
	MonthlyRent         *decimal.Decimal `json:"monthly_rent,omitempty"`
	SecurityDeposit     *decimal.Decimal `json:"security_deposit,omitempty"`
	Notes               string           `json:"notes,omitempty"`
}

type actionRequest struct {
	Reason string `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type cancelResponse struct {
	Booking      internalbookings.BookingDTO `json:"booking"`
	RefundAmount decimal.Decimal             `json:"refund_amount"`
}

// Create opens a pending booking for the calling student.
func Create(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		moveIn, err := time.Parse("2006-01-02", payload.MoveInDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid move_in_date"))
			return
		}
		propertyID, err := uuid.Parse(payload.PropertyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid property_id"))
			return
		}
		landlordID, err := uuid.Parse(payload.LandlordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid landlord_id"))
			return
		}

		booking, err := svc.Create(r.Context(), internalbookings.CreateInput{
			Actor:               actor,
			StudentID:           actor.UserID,
			LandlordID:          landlordID,
			PropertyID:          propertyID,
			MoveInDate:          moveIn,
			LeaseDurationMonths: payload.LeaseDurationMonths,
			MonthlyRent:         payload.MonthlyRent,
			SecurityDeposit:     payload.SecurityDeposit,
			Notes:               validators.SanitizeString(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalbookings.FromModel(booking))
	}
}

type listResponse struct {
	Items  []internalbookings.BookingDTO `json:"items"`
	Cursor string                        `json:"cursor,omitempty"`
}

// List pages through the caller's bookings. Supports ?status=, ?limit= and ?cursor=.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		input := internalbookings.ListInput{
			Actor:  actor,
			Status: query.Get("status"),
			Cursor: query.Get("cursor"),
		}
		if raw := query.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer").WithDetails(map[string]any{"field": "limit"}))
				return
			}
			input.Limit = limit
		}

		page, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]internalbookings.BookingDTO, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, internalbookings.FromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, listResponse{Items: items, Cursor: page.Cursor})
	}
}

// Get returns a booking visible to the caller.
func Get(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Get(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.FromModel(booking))
	}
}

// History returns the booking's audit trail, oldest first.
func History(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		actor, bookingID, err := actorAndBooking(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.History(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.EventsFromModels(events))
	}
}

func Approve(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, false, internalbookings.Service.Approve)
}

func Complete(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, false, internalbookings.Service.Complete)
}

func Reject(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, true, internalbookings.Service.Reject)
}

// Cancel cancels the booking and reports the refund owed.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		input, err := actionInput(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelResponse{
			Booking:      internalbookings.FromModel(result.Booking),
			RefundAmount: result.RefundAmount,
		})
	}
}

type transitionFunc func(internalbookings.Service, context.Context, internalbookings.ActionInput) (*models.Booking, error)

func transition(svc internalbookings.Service, logg *logger.Logger, reasonRequired bool, apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}
		input, err := actionInput(r, reasonRequired)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := apply(svc, r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.FromModel(booking))
	}
}

func actionInput(r *http.Request, reasonRequired bool) (internalbookings.ActionInput, error) {
	actor, bookingID, err := actorAndBooking(r)
	if err != nil {
		return internalbookings.ActionInput{}, err
	}
	var reason string
	if reasonRequired {
		var payload reasonRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return internalbookings.ActionInput{}, err
		}
		reason = payload.Reason
	} else if r.ContentLength > 0 {
		var payload actionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return internalbookings.ActionInput{}, err
		}
		reason = payload.Reason
	}
	return internalbookings.ActionInput{
		BookingID: bookingID,
		Actor:     actor,
		Reason:    validators.SanitizeString(reason, maxReasonLen),
	}, nil
}

func actorAndBooking(r *http.Request) (internalbookings.Actor, uuid.UUID, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return internalbookings.Actor{}, uuid.Nil, err
	}
	bookingID, err := validators.ParseUUIDParam(r, bookingIDParam)
	if err != nil {
		return internalbookings.Actor{}, uuid.Nil, err
	}
	return actor, bookingID, nil
}

func actorFrom(r *http.Request) (internalbookings.Actor, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return internalbookings.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return internalbookings.Actor{UserID: id.UserID, Role: id.Role}, nil
}
