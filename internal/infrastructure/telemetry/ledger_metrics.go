package telemetry

import (
	"context"
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome values recorded with AttrOutcome
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// LedgerMetrics records payroll ledger counters. It subscribes to domain
// events so that only committed changes are counted.
type LedgerMetrics struct {
	paymentsCreated   *Counter
	paymentsCompleted *Counter
	paymentsCancelled *Counter
	debtsIssued       *Counter
	debtsPaid         *Counter
	deductions        *Counter
	netPay            *Histogram
	deductionAmount   *Histogram
	rpcRequests       *Counter
	rpcDuration       *Histogram
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}
	counters := []struct {
		target **Counter
		name   string
		desc   string
	}{
		{&m.paymentsCreated, "farmpay_payments_created_total", "Payments created"},
		{&m.paymentsCompleted, "farmpay_payments_completed_total", "Payments completed"},
		{&m.paymentsCancelled, "farmpay_payments_cancelled_total", "Payments cancelled"},
		{&m.debtsIssued, "farmpay_debts_issued_total", "Debts issued"},
		{&m.debtsPaid, "farmpay_debts_paid_total", "Debts fully paid"},
		{&m.deductions, "farmpay_debt_deductions_total", "Debt deductions applied to payments"},
		{&m.rpcRequests, "farmpay_rpc_requests_total", "RPC requests by method and outcome"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, "{count}")
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	amountBuckets := []float64{100, 500, 1000, 2500, 5000, 10000, 25000, 50000}
	if m.netPay, err = NewHistogram(meter, HistogramOpts{
		Name:        "farmpay_payment_net_pay",
		Description: "Net pay of completed payments",
		Unit:        "{PHP}",
		Boundaries:  amountBuckets,
	}); err != nil {
		return nil, err
	}
	if m.deductionAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "farmpay_debt_deduction_amount",
		Description: "Amount of each debt deduction",
		Unit:        "{PHP}",
		Boundaries:  amountBuckets,
	}); err != nil {
		return nil, err
	}
	if m.rpcDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "farmpay_rpc_duration_seconds",
		Description: "RPC handling latency",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// Handle updates counters for a committed domain event
func (m *LedgerMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *payroll.PaymentCreatedEvent:
		m.paymentsCreated.Inc(ctx)
	case *payroll.PaymentCompletedEvent:
		method := AttrPaymentMethod.String(string(e.PaymentMethod))
		m.paymentsCompleted.Inc(ctx, method)
		m.netPay.Record(ctx, e.NetPay.InexactFloat64(), method)
	case *payroll.PaymentCancelledEvent:
		m.paymentsCancelled.Inc(ctx)
	case *payroll.DebtDeductionAppliedEvent:
		pooled := attribute.Bool("pooled", e.Pooled)
		m.deductions.Inc(ctx, pooled)
		m.deductionAmount.Record(ctx, e.Amount.InexactFloat64(), pooled)
	case *payroll.DebtIssuedEvent:
		m.debtsIssued.Inc(ctx)
	case *payroll.DebtPaidEvent:
		m.debtsPaid.Inc(ctx)
	}
	return nil
}

// EventTypes returns the ledger event types
func (m *LedgerMetrics) EventTypes() []string {
	return []string{
		payroll.EventTypePaymentCreated,
		payroll.EventTypePaymentCompleted,
		payroll.EventTypePaymentCancelled,
		payroll.EventTypeDebtDeductionApplied,
		payroll.EventTypeDebtIssued,
		payroll.EventTypeDebtPaid,
	}
}

// RecordRPC records one dispatched RPC call. errorKind is empty on success.
func (m *LedgerMetrics) RecordRPC(ctx context.Context, method string, d time.Duration, errorKind string) {
	outcome := OutcomeSuccess
	if errorKind != "" {
		outcome = OutcomeError
	}
	attrs := []attribute.KeyValue{AttrRPCMethod.String(method), AttrOutcome.String(outcome)}
	if errorKind != "" {
		attrs = append(attrs, AttrErrorKind.String(errorKind))
	}
	m.rpcRequests.Inc(ctx, attrs...)
	m.rpcDuration.RecordDuration(ctx, d, AttrRPCMethod.String(method))
}

var _ shared.EventHandler = (*LedgerMetrics)(nil)
