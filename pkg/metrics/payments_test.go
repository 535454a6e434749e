package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsExportsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncReconciliation(OutcomeRecorded)
	m.IncReconciliation(OutcomeRecorded)
	m.IncReconciliation(OutcomeAmountMismatch)
	m.IncAmountMismatch()
	m.ObserveGatewayCall("verify", errors.New("timeout"), 150*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "campusdigs_payment_reconciliations_total", "outcome", OutcomeRecorded); err != nil {
		t.Fatalf("fetch recorded: %v", err)
	} else if got != 2 {
		t.Fatalf("expected recorded=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "campusdigs_payment_reconciliations_total", "outcome", OutcomeAmountMismatch); err != nil {
		t.Fatalf("fetch mismatch outcome: %v", err)
	} else if got != 1 {
		t.Fatalf("expected mismatch outcome=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "campusdigs_payment_amount_mismatch_total")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected mismatch counter of 1")
	}

	if got, err := fetchHistogramSum(mfs, "campusdigs_payment_gateway_request_duration_seconds", "outcome", "error"); err != nil {
		t.Fatalf("fetch latency: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}
}

func TestNilPaymentMetricsIsNoop(t *testing.T) {
	var m *PaymentMetrics
	m.IncReconciliation(OutcomeRecorded)
	m.IncAmountMismatch()
	m.IncAuditFailure()
	m.ObserveGatewayCall("initialize", nil, time.Second)

	NewPaymentMetrics(nil).IncReconciliation(OutcomeError)
}
