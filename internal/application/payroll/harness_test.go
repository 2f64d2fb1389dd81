package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "clerk@farm"

type ledgerHarness struct {
	store      *memoryStore
	publisher  *recordingPublisher
	uow        *UnitOfWork
	recorder   *AuditTrailRecorder
	aggregator *WorkerBalanceAggregator
	allocator  *DebtAllocator
	ledger     *PaymentLedger
	bulk       *BulkOperationCoordinator
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	logger := zap.NewNop()

	uow := NewUnitOfWork(store, publisher, logger)
	recorder := NewAuditTrailRecorder(uow, logger)
	aggregator := NewWorkerBalanceAggregator(uow, recorder, logger)
	allocator := NewDebtAllocator(uow, aggregator, recorder, logger)
	ledger := NewPaymentLedger(PaymentLedgerConfig{
		UnitOfWork: uow,
		Allocator:  allocator,
		Aggregator: aggregator,
		Recorder:   recorder,
		Logger:     logger,
	})
	return &ledgerHarness{
		store:      store,
		publisher:  publisher,
		uow:        uow,
		recorder:   recorder,
		aggregator: aggregator,
		allocator:  allocator,
		ledger:     ledger,
		bulk:       NewBulkOperationCoordinator(uow, ledger, 10, logger),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func (h *ledgerHarness) issueDebt(t *testing.T, workerID uuid.UUID, amount string, due *time.Time) *DebtResponse {
	t.Helper()
	debt, err := h.allocator.Issue(context.Background(), IssueDebtInput{
		WorkerID:    workerID,
		Amount:      dec(amount),
		DueDate:     due,
		Reason:      "cash advance",
		PerformedBy: testUser,
	})
	require.NoError(t, err)
	return debt
}

func (h *ledgerHarness) createPayment(t *testing.T, workerID uuid.UUID, gross string) *PaymentResponse {
	t.Helper()
	payment, err := h.ledger.Create(context.Background(), CreatePaymentInput{
		WorkerID:    workerID,
		SessionID:   uuid.New(),
		GrossPay:    dec(gross),
		PerformedBy: testUser,
	})
	require.NoError(t, err)
	return payment
}

func (h *ledgerHarness) process(t *testing.T, paymentID uuid.UUID) *ProcessResult {
	t.Helper()
	result, err := h.ledger.Process(context.Background(), ProcessInput{
		PaymentID:     paymentID,
		PaymentDate:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		PaymentMethod: payroll.PaymentMethodCash,
		PerformedBy:   testUser,
	})
	require.NoError(t, err)
	return result
}

func (h *ledgerHarness) worker(t *testing.T, id uuid.UUID) payroll.Worker {
	t.Helper()
	w, ok := h.store.snapshot().workers[id]
	require.True(t, ok, "worker %s not stored", id)
	return w
}

func (h *ledgerHarness) debt(t *testing.T, id uuid.UUID) payroll.Debt {
	t.Helper()
	d, ok := h.store.snapshot().debts[id]
	require.True(t, ok, "debt %s not stored", id)
	return d
}

func (h *ledgerHarness) payment(t *testing.T, id uuid.UUID) payroll.Payment {
	t.Helper()
	p, ok := h.store.snapshot().payments[id]
	require.True(t, ok, "payment %s not stored", id)
	return p
}

// requireStoreInvariants checks every stored payment and debt
func (h *ledgerHarness) requireStoreInvariants(t *testing.T) {
	t.Helper()
	snap := h.store.snapshot()
	for _, p := range snap.payments {
		require.NoError(t, p.CheckInvariants(), "payment %s", p.ID)
	}
	for _, d := range snap.debts {
		require.NoError(t, d.CheckInvariants(), "debt %s", d.ID)
	}
	for _, row := range snap.paymentHistory {
		require.NotEmpty(t, row.PerformedBy)
		require.NotEmpty(t, row.ChangeReason)
	}
	for _, row := range snap.debtHistory {
		require.NotEmpty(t, row.PerformedBy)
		require.NotEmpty(t, row.ChangeReason)
	}
}
