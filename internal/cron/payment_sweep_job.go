package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/campusdigs/campusdigs-backend/internal/payments"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

const (
	defaultSweepGrace = 15 * time.Minute
	defaultSweepBatch = 50
)

// Gateway statuses after which a reference can never succeed.
var terminalGatewayStatuses = map[string]struct{}{
	"failed":   {},
	"reversed": {},
}

type pendingIntents interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Get(ctx context.Context, reference string) (*payments.Intent, error)
	Delete(ctx context.Context, reference string) error
	Forget(ctx context.Context, references ...string) error
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, reference string) (*payments.ReconciliationResult, error)
}

type PaymentSweepJobParams struct {
	Logger     *logger.Logger
	Intents    pendingIntents
	Reconciler paymentReconciler
	Grace      time.Duration
	BatchSize  int
}

// NewPaymentSweepJob re-verifies intents whose checkout never reported back, so a
// closed browser or a lost webhook does not leave a paid booking pending.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent store required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &paymentSweepJob{
		logg:       params.Logger,
		intents:    params.Intents,
		reconciler: params.Reconciler,
		grace:      grace,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentSweepJob struct {
	logg       *logger.Logger
	intents    pendingIntents
	reconciler paymentReconciler
	grace      time.Duration
	batch      int
	now        func() time.Time
}

type sweepStats struct {
	recorded, discarded, pruned, parked, pending int
}

func (j *paymentSweepJob) Name() string { return "payment-sweep" }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	refs, err := j.intents.ListCreatedBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list pending intents: %w", err)
	}

	var (
		stats sweepStats
		errs  []error
		stale []string
	)
	for _, ref := range refs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		intent, err := j.intents.Get(ctx, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("load intent %s: %w", ref, err))
			continue
		}
		if intent == nil {
			stale = append(stale, ref)
			continue
		}
		if err := j.sweep(ctx, ref, &stats); err != nil {
			errs = append(errs, err)
		}
	}

	if len(stale) > 0 {
		if err := j.intents.Forget(ctx, stale...); err != nil {
			errs = append(errs, fmt.Errorf("prune expired intents: %w", err))
		} else {
			stats.pruned = len(stale)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"scanned":   len(refs),
		"recorded":  stats.recorded,
		"discarded": stats.discarded,
		"pruned":    stats.pruned,
		"parked":    stats.parked,
		"pending":   stats.pending,
	}), "payment sweep complete")
	return multierr.Combine(errs...)
}

func (j *paymentSweepJob) sweep(ctx context.Context, ref string, stats *sweepStats) error {
	refCtx := j.logg.WithReference(ctx, ref)
	_, err := j.reconciler.Reconcile(refCtx, ref)
	if err == nil {
		stats.recorded++
		return nil
	}

	typed := pkgerrors.As(err)
	switch {
	case typed != nil && typed.Code() == pkgerrors.CodePaymentFailed:
		if _, terminal := terminalGatewayStatuses[payments.GatewayStatusOf(err)]; !terminal {
			// abandoned or ongoing checkouts may still complete until the intent expires
			stats.pending++
			return nil
		}
		if delErr := j.intents.Delete(refCtx, ref); delErr != nil {
			return fmt.Errorf("discard failed intent %s: %w", ref, delErr)
		}
		stats.discarded++
		return nil
	case typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable:
		// needs an operator; keep the intent for manual verification but stop sweeping it
		j.logg.Error(refCtx, "sweep cannot reconcile payment", err)
		if fgErr := j.intents.Forget(refCtx, ref); fgErr != nil {
			return fmt.Errorf("park intent %s: %w", ref, fgErr)
		}
		stats.parked++
		return nil
	default:
		return fmt.Errorf("reconcile %s: %w", ref, err)
	}
}
