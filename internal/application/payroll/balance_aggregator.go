package payroll

import (
	"context"
	"fmt"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WorkerBalanceAggregator is the only writer of Worker.totalPaid and
// Worker.currentBalance. Every adjustment is a delta applied to a row-locked,
// version-checked worker.
type WorkerBalanceAggregator struct {
	uow      *UnitOfWork
	recorder *AuditTrailRecorder
	logger   *zap.Logger
}

// NewWorkerBalanceAggregator creates a WorkerBalanceAggregator. The recorder
// audits the corrections made by Reconcile.
func NewWorkerBalanceAggregator(uow *UnitOfWork, recorder *AuditTrailRecorder, logger *zap.Logger) *WorkerBalanceAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerBalanceAggregator{uow: uow, recorder: recorder, logger: logger}
}

// AdjustForPaymentCompletion adds netPay to totalPaid and lowers currentBalance
// by netPay, floored at zero. It returns the balance reduction actually applied.
func (a *WorkerBalanceAggregator) AdjustForPaymentCompletion(ctx context.Context, workerID uuid.UUID, netPay decimal.Decimal) (decimal.Decimal, error) {
	var applied decimal.Decimal
	err := a.adjust(ctx, "adjust_for_payment_completion", workerID, func(w *payroll.Worker) error {
		var err error
		applied, err = w.Credit(netPay)
		return err
	})
	return applied, err
}

// AdjustForDebtAllocation applies the same delta as a payment completion for an amount repaid to debts
func (a *WorkerBalanceAggregator) AdjustForDebtAllocation(ctx context.Context, workerID uuid.UUID, amount decimal.Decimal) error {
	return a.adjust(ctx, "adjust_for_debt_allocation", workerID, func(w *payroll.Worker) error {
		_, err := w.Credit(amount)
		return err
	})
}

// Reverse undoes a completion delta: totalPaid drops by paid and currentBalance
// rises by the reduction that completion applied
func (a *WorkerBalanceAggregator) Reverse(ctx context.Context, workerID uuid.UUID, paid, balanceApplied decimal.Decimal) error {
	return a.adjust(ctx, "reverse", workerID, func(w *payroll.Worker) error {
		return w.Reverse(paid, balanceApplied)
	})
}

// AdjustForDebtIssued raises currentBalance by a newly issued debt amount
func (a *WorkerBalanceAggregator) AdjustForDebtIssued(ctx context.Context, workerID uuid.UUID, amount decimal.Decimal) error {
	return a.adjust(ctx, "adjust_for_debt_issued", workerID, func(w *payroll.Worker) error {
		return w.RaiseBalance(amount)
	})
}

func (a *WorkerBalanceAggregator) adjust(ctx context.Context, method string, workerID uuid.UUID, apply func(w *payroll.Worker) error) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "worker_balance", method)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrWorkerID, workerID.String())

	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		worker, err := tx.WorkerRepo().FindByIDForUpdate(ctx, workerID)
		if err != nil {
			return mapNotFound(err, CodeWorkerNotFound, workerID, "Worker")
		}

		before := worker.CurrentBalance
		if err := apply(worker); err != nil {
			return err
		}
		if err := tx.WorkerRepo().SaveWithLock(ctx, worker); err != nil {
			return fmt.Errorf("failed to save worker %s: %w", workerID, err)
		}

		a.logger.Debug("Worker balance adjusted",
			zap.String("worker_id", workerID.String()),
			zap.String("method", method),
			zap.String("balance_before", before.String()),
			zap.String("balance_after", worker.CurrentBalance.String()),
			zap.String("total_paid", worker.TotalPaid.String()))
		return nil
	})
	telemetry.RecordError(span, err)
	return err
}

// ReconcileResult reports the difference between the stored and derived balance
type ReconcileResult struct {
	WorkerID        uuid.UUID       `json:"workerId"`
	StoredBalance   decimal.Decimal `json:"storedBalance"`
	OpenDebtBalance decimal.Decimal `json:"openDebtBalance"`
	Drift           decimal.Decimal `json:"drift"`
	Applied         bool            `json:"applied"`
}

// ReconcileInput asks for a worker's balance to be checked against its open debts
type ReconcileInput struct {
	WorkerID    uuid.UUID `json:"workerId" validate:"required"`
	Apply       bool      `json:"apply"`
	PerformedBy string    `json:"-"`
	Reason      string    `json:"reason,omitempty" validate:"max=500"`
}

// Reconcile recomputes currentBalance from the worker's open debt balances.
// With Apply the stored balance is corrected and a worker balance history row
// records the correction; otherwise the drift is only reported.
func (a *WorkerBalanceAggregator) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "worker_balance", "reconcile")
	defer span.End()
	workerID, apply := input.WorkerID, input.Apply
	telemetry.SetAttributes(span, telemetry.SpanAttrWorkerID, workerID.String(), "apply", apply)

	if apply {
		if err := requirePerformer(input.PerformedBy); err != nil {
			return nil, err
		}
	}

	var result *ReconcileResult
	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		worker, err := tx.WorkerRepo().FindByIDForUpdate(ctx, workerID)
		if err != nil {
			return mapNotFound(err, CodeWorkerNotFound, workerID, "Worker")
		}
		// Locking the open debts keeps the sum stable until commit
		debts, err := tx.DebtRepo().FindOpenByWorkerForUpdate(ctx, workerID)
		if err != nil {
			return fmt.Errorf("failed to load open debts: %w", err)
		}
		openTotal := payroll.OpenBalanceTotal(debts)

		result = &ReconcileResult{
			WorkerID:        workerID,
			StoredBalance:   worker.CurrentBalance,
			OpenDebtBalance: openTotal,
			Drift:           worker.CurrentBalance.Sub(openTotal),
		}
		if result.Drift.IsZero() || !apply {
			return nil
		}

		worker.Reconcile(openTotal)
		if err := tx.WorkerRepo().SaveWithLock(ctx, worker); err != nil {
			return fmt.Errorf("failed to save worker %s: %w", workerID, err)
		}
		if _, err := a.recorder.RecordWorkerBalance(ctx, workerID, payroll.WorkerBalanceReconcile,
			result.StoredBalance, worker.CurrentBalance, input.PerformedBy,
			defaultReason(input.Reason, "Balance reconciled to open debts")); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !result.Drift.IsZero() {
		a.logger.Warn("Worker balance drift detected",
			zap.String("worker_id", workerID.String()),
			zap.String("stored", result.StoredBalance.String()),
			zap.String("derived", result.OpenDebtBalance.String()),
			zap.Bool("applied", result.Applied))
	}
	return result, nil
}

// Balance returns the worker's current counters
func (a *WorkerBalanceAggregator) Balance(ctx context.Context, workerID uuid.UUID) (*payroll.Worker, error) {
	var worker *payroll.Worker
	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		worker, err = tx.WorkerRepo().FindByID(ctx, workerID)
		return mapNotFound(err, CodeWorkerNotFound, workerID, "Worker")
	})
	return worker, err
}
