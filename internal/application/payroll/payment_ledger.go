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

// PaymentLedger owns the payment state machine. It computes net pay and
// delegates debt and worker mutations to DebtAllocator and WorkerBalanceAggregator.
type PaymentLedger struct {
	uow        *UnitOfWork
	allocator  *DebtAllocator
	aggregator *WorkerBalanceAggregator
	recorder   *AuditTrailRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// PaymentLedgerConfig holds the collaborators of a PaymentLedger
type PaymentLedgerConfig struct {
	UnitOfWork *UnitOfWork
	Allocator  *DebtAllocator
	Aggregator *WorkerBalanceAggregator
	Recorder   *AuditTrailRecorder
	Logger     *zap.Logger
}

// NewPaymentLedger creates a PaymentLedger
func NewPaymentLedger(config PaymentLedgerConfig) *PaymentLedger {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentLedger{
		uow:        config.UnitOfWork,
		allocator:  config.Allocator,
		aggregator: config.Aggregator,
		recorder:   config.Recorder,
		logger:     logger,
		now:        time.Now,
	}
}

func requirePerformer(performedBy string) error {
	if strings.TrimSpace(performedBy) == "" {
		return shared.NewValidationError("MISSING_PERFORMED_BY", "Acting user is required")
	}
	return nil
}

// lockPayment locks the payment's worker and then the payment itself
func (l *PaymentLedger) lockPayment(ctx context.Context, tx *Tx, paymentID uuid.UUID) (*payroll.Payment, error) {
	unlocked, err := tx.PaymentRepo().FindByID(ctx, paymentID)
	if err != nil {
		return nil, mapNotFound(err, CodePaymentNotFound, paymentID, "Payment")
	}
	if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, unlocked.WorkerID); err != nil {
		return nil, mapNotFound(err, CodeWorkerNotFound, unlocked.WorkerID, "Worker")
	}
	payment, err := tx.PaymentRepo().FindByIDForUpdate(ctx, paymentID)
	if err != nil {
		return nil, mapNotFound(err, CodePaymentNotFound, paymentID, "Payment")
	}
	if payment.WorkerID != unlocked.WorkerID {
		return nil, fmt.Errorf("payment %s was reassigned while locking: %w", paymentID, shared.ErrConcurrencyConflict)
	}
	return payment, nil
}

// checkAssignment fails with a DuplicateError when another payment holds the triple
func checkAssignment(ctx context.Context, tx *Tx, pitakID *uuid.UUID, workerID, sessionID, self uuid.UUID) error {
	if pitakID == nil {
		return nil
	}
	existing, err := tx.PaymentRepo().FindByAssignment(ctx, *pitakID, workerID, sessionID)
	if err == nil && existing.ID != self {
		return shared.NewDuplicateError(CodeDuplicateAssign, existing.ID,
			"Worker already has payment %s for this pitak in the session", existing.ID)
	}
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to check assignment: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return shared.IsKind(err, shared.KindNotFound)
}

func (l *PaymentLedger) save(ctx context.Context, tx *Tx, payment *payroll.Payment) error {
	if err := payment.CheckInvariants(); err != nil {
		return err
	}
	if err := tx.PaymentRepo().SaveWithLock(ctx, payment); err != nil {
		return fmt.Errorf("failed to save payment %s: %w", payment.ID, err)
	}
	tx.Collect(payment)
	return nil
}

// Create records a new pending payment
func (l *PaymentLedger) Create(ctx context.Context, input CreatePaymentInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrWorkerID, input.WorkerID.String(),
		telemetry.SpanAttrAmount, input.GrossPay.String(),
	)

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}
	payment, err := payroll.NewPayment(input.WorkerID, input.SessionID, input.GrossPay, input.PitakID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	err = l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, input.WorkerID); err != nil {
			if isNotFound(err) {
				return shared.NewValidationError(CodeWorkerNotFound, "Worker %s does not exist", input.WorkerID).WithEntity(input.WorkerID)
			}
			return err
		}

		if payment.IdempotencyKey != nil {
			existing, err := tx.PaymentRepo().FindByIdempotencyKey(ctx, *payment.IdempotencyKey)
			if err == nil {
				return shared.NewDuplicateError(CodeDuplicateKey, existing.ID,
					"Payment %s was already created with this idempotency key", existing.ID)
			}
			if !isNotFound(err) {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
		}
		if err := checkAssignment(ctx, tx, payment.PitakID, payment.WorkerID, payment.SessionID, payment.ID); err != nil {
			return err
		}

		if err := tx.PaymentRepo().Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		if err := l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionCreate, input.PerformedBy,
			defaultReason(input.Reason, "Payment created"),
			payroll.AmountChange("gross_pay", decimal.Zero, payment.GrossPay),
			payroll.ValueChange("status", "", string(payment.Status)),
		); err != nil {
			return err
		}
		tx.Collect(payment)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	l.logger.Info("Payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("worker_id", payment.WorkerID.String()),
		zap.String("gross_pay", payment.GrossPay.String()))
	return ToPaymentResponse(payment), nil
}

// ApplyDebtDeduction withholds amount from a payment's net pay. With a debt id the
// debt is repaid immediately; without one the amount is pooled until Process.
func (l *PaymentLedger) ApplyDebtDeduction(ctx context.Context, input ApplyDeductionInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "apply_debt_deduction")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, input.PaymentID.String(),
		telemetry.SpanAttrAmount, input.Amount.String(),
	)

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}
	reason := defaultReason(input.Reason, "Debt deduction")

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}

		oldTotal, oldNet := payment.TotalDebtDeduction, payment.NetPay
		pooled := input.DebtID == nil
		if err := payment.ApplyDebtDeduction(input.Amount, pooled); err != nil {
			return err
		}

		if pooled {
			openTotal, err := tx.DebtRepo().SumOpenBalanceByWorker(ctx, payment.WorkerID)
			if err != nil {
				return fmt.Errorf("failed to sum open debts: %w", err)
			}
			if payment.PooledDebtDeduction.GreaterThan(openTotal) {
				return shared.NewInsufficientFundsError("EXCEEDS_OPEN_DEBT",
					"Pooled deduction %s exceeds the worker's open debt balance %s",
					payment.PooledDebtDeduction.StringFixed(2), openTotal.StringFixed(2))
			}
		} else {
			paymentID := payment.ID
			if _, err := l.allocator.AllocateToSpecificDebt(ctx, SpecificAllocationInput{
				DebtID:           *input.DebtID,
				Amount:           input.Amount,
				PaymentID:        &paymentID,
				ExpectedWorkerID: &payment.WorkerID,
				PerformedBy:      input.PerformedBy,
				Reason:           reason,
			}); err != nil {
				return err
			}
		}

		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionDeduction, input.PerformedBy, reason,
			payroll.AmountChange("total_debt_deduction", oldTotal, payment.TotalDebtDeduction),
			payroll.AmountChange("net_pay", oldNet, payment.NetPay),
		)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

// UpdateDeductions replaces manual and other deductions and recomputes net pay
func (l *PaymentLedger) UpdateDeductions(ctx context.Context, input UpdateDeductionsInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "update_deductions")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}
	if input.ManualDeduction == nil && input.OtherDeductions == nil {
		return nil, shared.NewValidationError("NO_CHANGES", "Provide manualDeduction or otherDeductions")
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if n, err := tx.HistoryRepo().CountDebtHistoryByPayment(ctx, payment.ID); err != nil {
			return fmt.Errorf("failed to count debt history: %w", err)
		} else if n > 0 {
			return shared.NewStateError(CodeHasDebtDeductions, "Payment has linked debt deductions; reverse them first")
		}

		oldManual, oldOther, oldNet := payment.ManualDeduction, payment.OtherDeductions, payment.NetPay
		if err := payment.UpdateDeductions(input.ManualDeduction, input.OtherDeductions); err != nil {
			return err
		}

		changes := make([]payroll.FieldChange, 0, 3)
		if !oldManual.Equal(payment.ManualDeduction) {
			changes = append(changes, payroll.AmountChange("manual_deduction", oldManual, payment.ManualDeduction))
		}
		if !oldOther.Equal(payment.OtherDeductions) {
			changes = append(changes, payroll.AmountChange("other_deductions", oldOther, payment.OtherDeductions))
		}
		if len(changes) == 0 {
			return nil
		}
		changes = append(changes, payroll.AmountChange("net_pay", oldNet, payment.NetPay))

		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionUpdate, input.PerformedBy,
			defaultReason(input.Reason, "Deductions updated"), changes...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

// MarkProcessing holds a pending payment for settlement
func (l *PaymentLedger) MarkProcessing(ctx context.Context, input PaymentActionInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "mark_processing")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status == payroll.PaymentStatusProcessing {
			return nil
		}
		old := payment.Status
		if err := payment.MarkProcessing(); err != nil {
			return err
		}
		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionStatusChange, input.PerformedBy,
			defaultReason(input.Reason, "Held for processing"),
			payroll.ValueChange("status", string(old), string(payment.Status)))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

// Process settles a pending payment: pending to processing to completed in one
// transaction. The pooled deduction is allocated FIFO; what no debt can absorb is
// released back into net pay. The worker is then credited with net pay.
func (l *PaymentLedger) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "process")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}
	reason := defaultReason(input.Reason, "Payment processed")
	reference := strings.TrimSpace(input.ReferenceNumber)

	result := &ProcessResult{Released: decimal.Zero}
	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != payroll.PaymentStatusPending {
			return shared.NewStateError("INVALID_STATE", "Only pending payments can be processed, current status is %s", payment.Status).WithEntity(payment.ID)
		}
		if err := payment.ValidateSettlement(input.PaymentDate, input.PaymentMethod); err != nil {
			return err
		}
		if reference != "" {
			existing, err := tx.PaymentRepo().FindByReference(ctx, payment.SessionID, reference)
			if err == nil && existing.ID != payment.ID {
				return shared.NewDuplicateError(CodeDuplicateRef, existing.ID,
					"Reference number %q is already used by payment %s in this session", reference, existing.ID)
			}
			if err != nil && !isNotFound(err) {
				return fmt.Errorf("failed to check reference number: %w", err)
			}
		}

		if err := payment.MarkProcessing(); err != nil {
			return err
		}
		if err := l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionStatusChange, input.PerformedBy, reason,
			payroll.ValueChange("status", string(payroll.PaymentStatusPending), string(payroll.PaymentStatusProcessing))); err != nil {
			return err
		}

		if payment.PooledDebtDeduction.IsPositive() {
			paymentID := payment.ID
			allocation, err := l.allocator.Allocate(ctx, AllocateInput{
				WorkerID:    payment.WorkerID,
				Amount:      payment.PooledDebtDeduction,
				PaymentID:   &paymentID,
				PerformedBy: input.PerformedBy,
				Reason:      reason,
			})
			if err != nil {
				return err
			}
			result.Allocation = allocation

			oldTotal, oldNet := payment.TotalDebtDeduction, payment.NetPay
			released, err := payment.SettlePool(allocation.TotalAllocated)
			if err != nil {
				return err
			}
			result.Released = released
			if released.IsPositive() {
				if err := l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionDeduction, input.PerformedBy,
					"Unallocated pooled deduction released to net pay",
					payroll.AmountChange("total_debt_deduction", oldTotal, payment.TotalDebtDeduction),
					payroll.AmountChange("net_pay", oldNet, payment.NetPay),
				); err != nil {
					return err
				}
			}
		}

		if err := payment.Complete(input.PaymentDate, input.PaymentMethod, reference); err != nil {
			return err
		}
		applied, err := l.aggregator.AdjustForPaymentCompletion(ctx, payment.WorkerID, payment.NetPay)
		if err != nil {
			return err
		}
		if err := payment.RecordBalanceCredit(applied); err != nil {
			return err
		}
		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		changes := []payroll.FieldChange{
			payroll.ValueChange("status", string(payroll.PaymentStatusProcessing), string(payroll.PaymentStatusCompleted)),
			payroll.ValueChange("payment_method", "", string(payment.PaymentMethod)),
			payroll.ValueChange("payment_date", "", payment.PaymentDate.Format(time.RFC3339)),
		}
		if payment.ReferenceNumber != "" {
			changes = append(changes, payroll.ValueChange("reference_number", "", payment.ReferenceNumber))
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionStatusChange, input.PerformedBy, reason, changes...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result.Payment = ToPaymentResponse(payment)
	l.logger.Info("Payment processed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("worker_id", payment.WorkerID.String()),
		zap.String("net_pay", payment.NetPay.String()),
		zap.String("released", result.Released.String()))
	return result, nil
}

// Cancel cancels a pending or processing payment. Completed payments cannot be cancelled.
func (l *PaymentLedger) Cancel(ctx context.Context, input CancelInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status.IsTerminal() {
			return shared.NewStateError("INVALID_STATE", "Cannot cancel payment in %s status", payment.Status).WithEntity(payment.ID)
		}
		if n, err := tx.HistoryRepo().CountDebtHistoryByPayment(ctx, payment.ID); err != nil {
			return fmt.Errorf("failed to count debt history: %w", err)
		} else if n > 0 {
			return shared.NewStateError(CodeHasDebtDeductions, "Payment has deductions applied to specific debts; reverse them first")
		}

		old := payment.Status
		oldTotal, oldNet := payment.TotalDebtDeduction, payment.NetPay
		released, err := payment.Cancel(input.Reason)
		if err != nil {
			return err
		}
		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}

		changes := []payroll.FieldChange{payroll.ValueChange("status", string(old), string(payment.Status))}
		if released.IsPositive() {
			changes = append(changes,
				payroll.AmountChange("total_debt_deduction", oldTotal, payment.TotalDebtDeduction),
				payroll.AmountChange("net_pay", oldNet, payment.NetPay))
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionStatusChange, input.PerformedBy, input.Reason, changes...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	l.logger.Info("Payment cancelled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reason", input.Reason))
	return ToPaymentResponse(payment), nil
}

// Delete hard deletes a pending or processing payment without debt history.
// A delete history row is written first and survives the payment.
func (l *PaymentLedger) Delete(ctx context.Context, input PaymentActionInput) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "delete")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return err
	}

	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		payment, err := l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if err := payment.CanDelete(); err != nil {
			return err
		}
		if n, err := tx.HistoryRepo().CountDebtHistoryByPayment(ctx, payment.ID); err != nil {
			return fmt.Errorf("failed to count debt history: %w", err)
		} else if n > 0 {
			return shared.NewStateError(CodeHasDebtDeductions, "Payment is referenced by debt history; reverse it first")
		}

		if err := l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionDelete, input.PerformedBy,
			defaultReason(input.Reason, "Payment deleted"),
			payroll.FieldChange{
				Field:     "payment",
				OldValue:  fmt.Sprintf("status=%s gross=%s net=%s", payment.Status, payment.GrossPay.StringFixed(2), payment.NetPay.StringFixed(2)),
				OldAmount: &payment.NetPay,
			},
		); err != nil {
			return err
		}
		if err := tx.PaymentRepo().Delete(ctx, payment.ID); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	l.logger.Info("Payment deleted", zap.String("payment_id", input.PaymentID.String()))
	return nil
}

// AssignWorker moves a payment to another worker. A completed payment's net pay
// moves with it between the two worker aggregates.
func (l *PaymentLedger) AssignWorker(ctx context.Context, input AssignWorkerInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "assign_worker")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, input.PaymentID.String(),
		telemetry.SpanAttrWorkerID, input.WorkerID.String(),
	)

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		unlocked, err := tx.PaymentRepo().FindByID(ctx, input.PaymentID)
		if err != nil {
			return mapNotFound(err, CodePaymentNotFound, input.PaymentID, "Payment")
		}
		if unlocked.WorkerID == input.WorkerID {
			payment = unlocked
			return nil
		}

		// Both worker rows are locked in id order so concurrent swaps cannot deadlock
		oldWorkerID := unlocked.WorkerID
		first, second := oldWorkerID, input.WorkerID
		if second.String() < first.String() {
			first, second = second, first
		}
		for _, id := range []uuid.UUID{first, second} {
			if _, err := tx.WorkerRepo().FindByIDForUpdate(ctx, id); err != nil {
				return mapNotFound(err, CodeWorkerNotFound, id, "Worker")
			}
		}
		payment, err = tx.PaymentRepo().FindByIDForUpdate(ctx, input.PaymentID)
		if err != nil {
			return mapNotFound(err, CodePaymentNotFound, input.PaymentID, "Payment")
		}
		if payment.WorkerID != oldWorkerID {
			return fmt.Errorf("payment %s was reassigned while locking: %w", payment.ID, shared.ErrConcurrencyConflict)
		}

		if err := checkAssignment(ctx, tx, payment.PitakID, input.WorkerID, payment.SessionID, payment.ID); err != nil {
			return err
		}
		if err := payment.ReassignWorker(input.WorkerID); err != nil {
			return err
		}

		changes := []payroll.FieldChange{payroll.ValueChange("worker_id", oldWorkerID.String(), input.WorkerID.String())}
		if payment.Status == payroll.PaymentStatusCompleted && payment.NetPay.IsPositive() {
			oldCredit := payment.BalanceCredit
			if err := l.aggregator.Reverse(ctx, oldWorkerID, payment.NetPay, oldCredit); err != nil {
				return err
			}
			applied, err := l.aggregator.AdjustForPaymentCompletion(ctx, input.WorkerID, payment.NetPay)
			if err != nil {
				return err
			}
			if err := payment.RecordBalanceCredit(applied); err != nil {
				return err
			}
			if !oldCredit.Equal(applied) {
				changes = append(changes, payroll.AmountChange("balance_credit", oldCredit, applied))
			}
		}

		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionAssignment, input.PerformedBy,
			defaultReason(input.Reason, "Worker reassigned"), changes...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

// AssignPitak moves a payment to another pitak, or detaches it when PitakID is nil
func (l *PaymentLedger) AssignPitak(ctx context.Context, input AssignPitakInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "assign_pitak")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, input.PaymentID.String())

	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.SamePitak(input.PitakID) {
			return nil
		}
		if err := checkAssignment(ctx, tx, input.PitakID, payment.WorkerID, payment.SessionID, payment.ID); err != nil {
			return err
		}

		old := pitakString(payment.PitakID)
		if err := payment.ReassignPitak(input.PitakID); err != nil {
			return err
		}
		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionAssignment, input.PerformedBy,
			defaultReason(input.Reason, "Pitak reassigned"),
			payroll.ValueChange("pitak_id", old, pitakString(payment.PitakID)))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

func pitakString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// AddNote appends a line to the payment's notes log
func (l *PaymentLedger) AddNote(ctx context.Context, input AddNoteInput) (*PaymentResponse, error) {
	if err := requirePerformer(input.PerformedBy); err != nil {
		return nil, err
	}

	var payment *payroll.Payment
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		payment, err = l.lockPayment(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if err := payment.AppendNote(input.Note, l.now()); err != nil {
			return err
		}
		if err := l.save(ctx, tx, payment); err != nil {
			return err
		}
		return l.recorder.RecordPayment(ctx, payment.ID, payroll.PaymentActionNote, input.PerformedBy, "Note added",
			payroll.ValueChange("notes", "", strings.TrimSpace(input.Note)))
	})
	if err != nil {
		return nil, err
	}
	return ToPaymentResponse(payment), nil
}

// Get returns a payment by id
func (l *PaymentLedger) Get(ctx context.Context, paymentID uuid.UUID) (*PaymentResponse, error) {
	var resp *PaymentResponse
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		payment, err := tx.PaymentRepo().FindByID(ctx, paymentID)
		if err != nil {
			return mapNotFound(err, CodePaymentNotFound, paymentID, "Payment")
		}
		resp = ToPaymentResponse(payment)
		return nil
	})
	return resp, err
}

// List returns payments matching the filter
func (l *PaymentLedger) List(ctx context.Context, filter payroll.PaymentFilter) ([]PaymentResponse, int64, error) {
	var (
		out   []PaymentResponse
		total int64
	)
	err := l.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		payments, err := tx.PaymentRepo().FindAll(ctx, filter)
		if err != nil {
			return err
		}
		total, err = tx.PaymentRepo().Count(ctx, filter)
		if err != nil {
			return err
		}
		out = make([]PaymentResponse, 0, len(payments))
		for i := range payments {
			out = append(out, *ToPaymentResponse(&payments[i]))
		}
		return nil
	})
	return out, total, err
}
