package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DebtAllocator is the only writer of Debt rows. It consumes amounts across
// a worker's open debts and writes one DebtHistory row per debt touched.
type DebtAllocator struct {
	uow        *UnitOfWork
	aggregator *WorkerBalanceAggregator
	recorder   *AuditTrailRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewDebtAllocator creates a DebtAllocator
func NewDebtAllocator(uow *UnitOfWork, aggregator *WorkerBalanceAggregator, recorder *AuditTrailRecorder, logger *zap.Logger) *DebtAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebtAllocator{
		uow:        uow,
		aggregator: aggregator,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Allocate spreads amount across the worker's open debts, earliest due first.
// Whatever no debt can absorb is returned in Remaining.
func (a *DebtAllocator) Allocate(ctx context.Context, input AllocateInput) (*AllocationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt_allocator", "allocate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrWorkerID, input.WorkerID.String(),
		telemetry.SpanAttrAmount, input.Amount.String(),
	)

	if !input.Amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if strings.TrimSpace(input.PerformedBy) == "" {
		return nil, shared.NewValidationError("MISSING_PERFORMED_BY", "Acting user is required")
	}
	reason := defaultReason(input.Reason, "Debt repayment")

	var result *AllocationResult
	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, input.WorkerID); err != nil {
			return mapNotFound(err, CodeWorkerNotFound, input.WorkerID, "Worker")
		}
		debts, err := tx.DebtRepo().FindOpenByWorkerForUpdate(ctx, input.WorkerID)
		if err != nil {
			return fmt.Errorf("failed to load open debts: %w", err)
		}

		plan, err := payroll.PlanFIFO(input.Amount, debts)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*payroll.Debt, len(debts))
		for _, d := range debts {
			byID[d.ID] = d
		}

		result = &AllocationResult{
			WorkerID:       input.WorkerID,
			Requested:      input.Amount,
			Allocations:    make([]AllocationLine, 0, len(plan.Allocations)),
			TotalAllocated: decimal.Zero,
			Remaining:      plan.Remaining,
		}
		for _, alloc := range plan.Allocations {
			line, err := a.applyToDebt(ctx, tx, byID[alloc.DebtID], alloc.Amount, input.PaymentID, input.PerformedBy, reason)
			if err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, *line)
			result.TotalAllocated = result.TotalAllocated.Add(alloc.Amount)
		}

		if result.TotalAllocated.IsPositive() {
			if err := a.aggregator.AdjustForDebtAllocation(ctx, input.WorkerID, result.TotalAllocated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.Remaining.IsPositive() {
		a.logger.Info("Allocation left an unallocated remainder",
			zap.String("worker_id", input.WorkerID.String()),
			zap.String("requested", input.Amount.String()),
			zap.String("remaining", result.Remaining.String()))
	}
	return result, nil
}

// AllocateToSpecificDebt applies the whole amount to one debt or fails.
// It never allocates partially.
func (a *DebtAllocator) AllocateToSpecificDebt(ctx context.Context, input SpecificAllocationInput) (*AllocationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt_allocator", "allocate_to_specific_debt")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDebtID, input.DebtID.String(),
		telemetry.SpanAttrAmount, input.Amount.String(),
	)

	if !input.Amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if strings.TrimSpace(input.PerformedBy) == "" {
		return nil, shared.NewValidationError("MISSING_PERFORMED_BY", "Acting user is required")
	}
	reason := defaultReason(input.Reason, "Debt repayment")

	var result *AllocationResult
	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		// Read the owner first so the worker row is locked before the debt row
		unlocked, err := tx.DebtRepo().FindByID(ctx, input.DebtID)
		if err != nil {
			return mapNotFound(err, CodeDebtNotFound, input.DebtID, "Debt")
		}
		if input.ExpectedWorkerID != nil && *input.ExpectedWorkerID != unlocked.WorkerID {
			return shared.NewValidationError("DEBT_WORKER_MISMATCH",
				"Debt %s does not belong to worker %s", input.DebtID, *input.ExpectedWorkerID).WithEntity(input.DebtID)
		}
		if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, unlocked.WorkerID); err != nil {
			return mapNotFound(err, CodeWorkerNotFound, unlocked.WorkerID, "Worker")
		}
		debt, err := tx.DebtRepo().FindByIDForUpdate(ctx, input.DebtID)
		if err != nil {
			return mapNotFound(err, CodeDebtNotFound, input.DebtID, "Debt")
		}

		line, err := a.applyToDebt(ctx, tx, debt, input.Amount, input.PaymentID, input.PerformedBy, reason)
		if err != nil {
			return err
		}
		if err := a.aggregator.AdjustForDebtAllocation(ctx, debt.WorkerID, input.Amount); err != nil {
			return err
		}

		result = &AllocationResult{
			WorkerID:       debt.WorkerID,
			Requested:      input.Amount,
			Allocations:    []AllocationLine{*line},
			TotalAllocated: input.Amount,
			Remaining:      decimal.Zero,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// applyToDebt mutates one locked debt, saves it and records its history row
func (a *DebtAllocator) applyToDebt(
	ctx context.Context,
	tx *Tx,
	debt *payroll.Debt,
	amount decimal.Decimal,
	paymentID *uuid.UUID,
	performedBy, reason string,
) (*AllocationLine, error) {
	if debt == nil {
		return nil, fmt.Errorf("allocation plan references an unloaded debt")
	}
	previous := debt.Balance
	if err := debt.ApplyPayment(amount, a.now()); err != nil {
		return nil, err
	}
	if err := tx.DebtRepo().SaveWithLock(ctx, debt); err != nil {
		return nil, fmt.Errorf("failed to save debt %s: %w", debt.ID, err)
	}

	txType := payroll.DebtTransactionPayment
	if paymentID != nil {
		txType = payroll.DebtTransactionDeduction
	}
	if _, err := a.recorder.RecordDebt(ctx, debt.ID, paymentID, txType, amount, previous, debt.Balance, performedBy, reason); err != nil {
		return nil, err
	}
	tx.Collect(debt)

	return &AllocationLine{
		DebtID:          debt.ID,
		Amount:          amount,
		PreviousBalance: previous,
		NewBalance:      debt.Balance,
		Status:          string(debt.Status),
	}, nil
}

// Issue creates a new pending debt for a worker and raises the worker's balance
func (a *DebtAllocator) Issue(ctx context.Context, input IssueDebtInput) (*DebtResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "debt_allocator", "issue")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrWorkerID, input.WorkerID.String(),
		telemetry.SpanAttrAmount, input.Amount.String(),
	)

	if strings.TrimSpace(input.PerformedBy) == "" {
		return nil, shared.NewValidationError("MISSING_PERFORMED_BY", "Acting user is required")
	}
	debt, err := payroll.NewDebt(input.WorkerID, input.Amount, input.DueDate, input.InterestRate, input.Reason)
	if err != nil {
		return nil, err
	}
	reason := defaultReason(input.Reason, "Debt issued")

	err = a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, input.WorkerID); err != nil {
			return mapNotFound(err, CodeWorkerNotFound, input.WorkerID, "Worker")
		}
		if err := tx.DebtRepo().Create(ctx, debt); err != nil {
			return fmt.Errorf("failed to create debt: %w", err)
		}
		if _, err := a.recorder.RecordDebt(ctx, debt.ID, nil, payroll.DebtTransactionIssue,
			debt.OriginalAmount, decimal.Zero, debt.Balance, input.PerformedBy, reason); err != nil {
			return err
		}
		if err := a.aggregator.AdjustForDebtIssued(ctx, input.WorkerID, debt.OriginalAmount); err != nil {
			return err
		}
		tx.Collect(debt)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	a.logger.Info("Debt issued",
		zap.String("debt_id", debt.ID.String()),
		zap.String("worker_id", debt.WorkerID.String()),
		zap.String("amount", debt.OriginalAmount.String()))
	return ToDebtResponse(debt), nil
}

// Get returns a debt by id
func (a *DebtAllocator) Get(ctx context.Context, debtID uuid.UUID) (*DebtResponse, error) {
	var resp *DebtResponse
	err := a.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		debt, err := tx.DebtRepo().FindByID(ctx, debtID)
		if err != nil {
			return mapNotFound(err, CodeDebtNotFound, debtID, "Debt")
		}
		resp = ToDebtResponse(debt)
		return nil
	})
	return resp, err
}

func defaultReason(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}
