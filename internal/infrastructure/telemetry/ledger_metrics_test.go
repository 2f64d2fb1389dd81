package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
)

func newTestLedgerMetrics(t *testing.T) (*LedgerMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewLedgerMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func event(eventType, aggType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, aggType, uuid.New())
}

func TestLedgerMetricsHandle(t *testing.T) {
	m, reader := newTestLedgerMetrics(t)
	ctx := context.Background()

	events := []shared.DomainEvent{
		&payroll.PaymentCreatedEvent{BaseDomainEvent: event(payroll.EventTypePaymentCreated, payroll.AggregateTypePayment)},
		&payroll.PaymentCreatedEvent{BaseDomainEvent: event(payroll.EventTypePaymentCreated, payroll.AggregateTypePayment)},
		&payroll.PaymentCompletedEvent{
			BaseDomainEvent: event(payroll.EventTypePaymentCompleted, payroll.AggregateTypePayment),
			NetPay:          decimal.NewFromInt(800),
			PaymentMethod:   payroll.PaymentMethodCash,
		},
		&payroll.DebtDeductionAppliedEvent{
			BaseDomainEvent: event(payroll.EventTypeDebtDeductionApplied, payroll.AggregateTypePayment),
			Amount:          decimal.NewFromInt(200),
			Pooled:          true,
		},
		&payroll.DebtIssuedEvent{BaseDomainEvent: event(payroll.EventTypeDebtIssued, payroll.AggregateTypeDebt)},
		&payroll.DebtPaidEvent{BaseDomainEvent: event(payroll.EventTypeDebtPaid, payroll.AggregateTypeDebt)},
	}
	for _, e := range events {
		require.NoError(t, m.Handle(ctx, e))
	}

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["farmpay_payments_created_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["farmpay_payments_completed_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["farmpay_debt_deductions_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["farmpay_debts_issued_total"]))
	assert.Equal(t, int64(1), sumOf(t, data["farmpay_debts_paid_total"]))
	assert.NotContains(t, data, "farmpay_payments_cancelled_total")

	netPay, ok := data["farmpay_payment_net_pay"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, netPay.DataPoints, 1)
	assert.Equal(t, 800.0, netPay.DataPoints[0].Sum)
	method, _ := netPay.DataPoints[0].Attributes.Value(AttrPaymentMethod)
	assert.Equal(t, string(payroll.PaymentMethodCash), method.AsString())
}

func TestLedgerMetricsEventTypes(t *testing.T) {
	m, _ := newTestLedgerMetrics(t)
	assert.ElementsMatch(t, []string{
		payroll.EventTypePaymentCreated,
		payroll.EventTypePaymentCompleted,
		payroll.EventTypePaymentCancelled,
		payroll.EventTypeDebtDeductionApplied,
		payroll.EventTypeDebtIssued,
		payroll.EventTypeDebtPaid,
	}, m.EventTypes())
}

func TestLedgerMetricsRecordRPC(t *testing.T) {
	m, reader := newTestLedgerMetrics(t)
	ctx := context.Background()

	m.RecordRPC(ctx, "payment.create", 10*time.Millisecond, "")
	m.RecordRPC(ctx, "payment.create", 20*time.Millisecond, "VALIDATION")

	data := collect(t, reader)
	requests, ok := data["farmpay_rpc_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, requests.DataPoints, 2)

	byOutcome := map[string]int64{}
	for _, dp := range requests.DataPoints {
		outcome, _ := dp.Attributes.Value(AttrOutcome)
		byOutcome[outcome.AsString()] += dp.Value
		if outcome.AsString() == OutcomeError {
			kind, present := dp.Attributes.Value(AttrErrorKind)
			assert.True(t, present)
			assert.Equal(t, "VALIDATION", kind.AsString())
		}
	}
	assert.Equal(t, map[string]int64{OutcomeSuccess: 1, OutcomeError: 1}, byOutcome)

	duration, ok := data["farmpay_rpc_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(2), duration.DataPoints[0].Count)
	assert.Equal(t, attribute.NewSet(AttrRPCMethod.String("payment.create")), duration.DataPoints[0].Attributes)
}
