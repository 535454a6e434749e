package paystackwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/campusdigs/campusdigs-backend/internal/payments"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

const EventChargeSuccess = "charge.success"

// Event is the subset of a gateway webhook delivery the service reads.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	ID        json.Number `json:"id"`
	Reference string      `json:"reference"`
	Status    string      `json:"status"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var event Event
	if err := dec.Decode(&event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	return &event, nil
}

// Key identifies a delivery for deduplication.
func (e *Event) Key() string {
	id := e.Data.ID.String()
	if id == "" {
		id = e.Data.Reference
	}
	return e.Event + ":" + id
}

type reconciler interface {
	Reconcile(ctx context.Context, reference string) (*payments.ReconciliationResult, error)
}

type ServiceParams struct {
	Reconciler reconciler
	Logger     *logger.Logger
}

// Service routes gateway webhooks into payment reconciliation.
type Service struct {
	reconciler reconciler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{reconciler: params.Reconciler, logg: params.Logger}, nil
}

// HandleEvent reconciles charge.success deliveries and ignores everything else.
// Only retryable failures are returned; the gateway redelivers on a non-2xx reply.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	if event.Event != EventChargeSuccess {
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "event", event.Event), "ignoring webhook event")
		}
		return nil
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}
	if s.logg != nil {
		ctx = s.logg.WithReference(ctx, reference)
	}

	result, err := s.reconciler.Reconcile(ctx, reference)
	if err != nil {
		typed := pkgerrors.As(err)
		if typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
			if s.logg != nil {
				s.logg.Error(ctx, "webhook charge not reconciled", err)
			}
			return nil
		}
		return err
	}

	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "already_recorded", result.AlreadyRecorded)
		s.logg.Info(ctx, "webhook charge reconciled")
	}
	return nil
}
