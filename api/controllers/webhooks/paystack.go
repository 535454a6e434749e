package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/campusdigs/campusdigs-backend/api/responses"
	paystackwebhook "github.com/campusdigs/campusdigs-backend/internal/webhooks/paystack"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
)

const maxWebhookBody = 1 << 20

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystackwebhook.Event) error
}

type PaystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// PaystackWebhook handles gateway deliveries. Duplicates are acknowledged without reprocessing.
func PaystackWebhook(svc PaystackWebhookService, verifier SignatureVerifier, guard PaystackWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystack.SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature missing"))
			return
		}
		if !verifier.VerifySignature(payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature invalid"))
			return
		}

		event, err := paystackwebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"webhook_event": event.Event})
			if event.Data.Reference != "" {
				ctx = logg.WithReference(ctx, event.Data.Reference)
			}
		}

		key := event.Key()
		alreadyProcessed, err := guard.CheckAndMark(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, key)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "paystack webhook processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
