package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation outcomes.
const (
	OutcomeRecorded        = "recorded"
	OutcomeAlreadyRecorded = "already_recorded"
	OutcomeFailed          = "payment_failed"
	OutcomeAmountMismatch  = "amount_mismatch"
	OutcomeGatewayError    = "gateway_error"
	OutcomeError           = "error"
)

// PaymentMetrics tracks gateway calls and how verifications are settled.
type PaymentMetrics struct {
	reconciliations *prometheus.CounterVec
	mismatches      prometheus.Counter
	gatewayLatency  *prometheus.HistogramVec
	auditFailures   prometheus.Counter
}

// NewPaymentMetrics registers payment metrics on reg. A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciliations := counterVec("payment_reconciliations_total", "Payment verifications by outcome.", "outcome")
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_amount_mismatch_total",
		Help:      "Verifications whose reported amount differed from the expected amount beyond tolerance.",
	})
	gatewayLatency := histogramVec("payment_gateway_request_duration_seconds", "Latency of payment gateway calls.", "operation", "outcome")
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_audit_write_failures_total",
		Help:      "Audit rows that could not be written and were skipped.",
	})
	reg.MustRegister(reconciliations, mismatches, gatewayLatency, auditFailures)
	return &PaymentMetrics{
		reconciliations: reconciliations,
		mismatches:      mismatches,
		gatewayLatency:  gatewayLatency,
		auditFailures:   auditFailures,
	}
}

// IncReconciliation counts one verification with the given outcome.
func (m *PaymentMetrics) IncReconciliation(outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAmountMismatch counts a rejected verification due to amount drift.
func (m *PaymentMetrics) IncAmountMismatch() {
	if m == nil || m.mismatches == nil {
		return
	}
	m.mismatches.Inc()
}

// ObserveGatewayCall records the duration of a gateway request.
func (m *PaymentMetrics) ObserveGatewayCall(operation string, err error, duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(operation), outcome).Observe(duration.Seconds())
}

// IncAuditFailure counts an audit row dropped after a write error.
func (m *PaymentMetrics) IncAuditFailure() {
	if m == nil || m.auditFailures == nil {
		return
	}
	m.auditFailures.Inc()
}
