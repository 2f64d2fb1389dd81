package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityType selects the history table a record is appended to
type EntityType string

const (
	EntityTypePayment EntityType = "payment"
	EntityTypeDebt    EntityType = "debt"
)

// AuditTrailRecorder appends immutable history rows. It offers no update or delete.
type AuditTrailRecorder struct {
	uow    *UnitOfWork
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditTrailRecorder creates an AuditTrailRecorder
func NewAuditTrailRecorder(uow *UnitOfWork, logger *zap.Logger) *AuditTrailRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrailRecorder{uow: uow, logger: logger, now: time.Now}
}

// Record appends one row to the history table of entityType.
// For debts, actionType is the debt transaction type and old/new are balances.
func (r *AuditTrailRecorder) Record(
	ctx context.Context,
	entityType EntityType,
	entityID uuid.UUID,
	actionType string,
	change payroll.FieldChange,
	performedBy, changeReason string,
) error {
	switch entityType {
	case EntityTypePayment:
		return r.RecordPayment(ctx, entityID, payroll.PaymentAction(actionType), performedBy, changeReason, change)
	case EntityTypeDebt:
		if change.OldAmount == nil || change.NewAmount == nil {
			return shared.NewValidationError("INVALID_DEBT_CHANGE", "Debt history requires old and new balances")
		}
		amount := change.OldAmount.Sub(*change.NewAmount).Abs()
		_, err := r.RecordDebt(ctx, entityID, nil, payroll.DebtTransactionType(actionType),
			amount, *change.OldAmount, *change.NewAmount, performedBy, changeReason)
		return err
	default:
		return shared.NewValidationError("INVALID_ENTITY_TYPE", "Unknown history entity type %q", entityType)
	}
}

// RecordPayment appends one payment history row per changed field.
// A call with no changes is rejected: every mutation leaves a trace.
func (r *AuditTrailRecorder) RecordPayment(
	ctx context.Context,
	paymentID uuid.UUID,
	action payroll.PaymentAction,
	performedBy, changeReason string,
	changes ...payroll.FieldChange,
) error {
	if len(changes) == 0 {
		return shared.NewValidationError("NO_CHANGES", "At least one change is required for a history record")
	}

	at := r.now()
	rows := make([]*payroll.PaymentHistory, 0, len(changes))
	for _, change := range changes {
		row, err := payroll.NewPaymentHistory(paymentID, action, change, performedBy, changeReason, at)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.HistoryRepo().AppendPaymentHistory(ctx, rows...); err != nil {
			return fmt.Errorf("failed to append payment history: %w", err)
		}
		r.logger.Debug("Payment history recorded",
			zap.String("payment_id", paymentID.String()),
			zap.String("action", string(action)),
			zap.Int("rows", len(rows)))
		return nil
	})
}

// RecordDebt appends one debt history row
func (r *AuditTrailRecorder) RecordDebt(
	ctx context.Context,
	debtID uuid.UUID,
	paymentID *uuid.UUID,
	txType payroll.DebtTransactionType,
	amount, previousBalance, newBalance decimal.Decimal,
	performedBy, changeReason string,
) (*payroll.DebtHistory, error) {
	row, err := payroll.NewDebtHistory(debtID, paymentID, txType, amount, previousBalance, newBalance, performedBy, changeReason, r.now())
	if err != nil {
		return nil, err
	}

	err = r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.HistoryRepo().AppendDebtHistory(ctx, row); err != nil {
			return fmt.Errorf("failed to append debt history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// RecordWorkerBalance appends one worker balance history row
func (r *AuditTrailRecorder) RecordWorkerBalance(
	ctx context.Context,
	workerID uuid.UUID,
	action payroll.WorkerBalanceAction,
	previousBalance, newBalance decimal.Decimal,
	performedBy, changeReason string,
) (*payroll.WorkerBalanceHistory, error) {
	row, err := payroll.NewWorkerBalanceHistory(workerID, action, previousBalance, newBalance, performedBy, changeReason, r.now())
	if err != nil {
		return nil, err
	}

	err = r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.HistoryRepo().AppendWorkerBalanceHistory(ctx, row); err != nil {
			return fmt.Errorf("failed to append worker balance history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// PaymentHistory lists the history of a payment, including deleted ones
func (r *AuditTrailRecorder) PaymentHistory(ctx context.Context, paymentID uuid.UUID) ([]payroll.PaymentHistory, error) {
	var rows []payroll.PaymentHistory
	err := r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		rows, err = tx.HistoryRepo().FindPaymentHistory(ctx, paymentID)
		return err
	})
	return rows, err
}

// DebtHistory lists the history of a debt
func (r *AuditTrailRecorder) DebtHistory(ctx context.Context, debtID uuid.UUID) ([]payroll.DebtHistory, error) {
	var rows []payroll.DebtHistory
	err := r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		rows, err = tx.HistoryRepo().FindDebtHistory(ctx, debtID)
		return err
	})
	return rows, err
}

// WorkerBalanceHistory lists the balance corrections of a worker
func (r *AuditTrailRecorder) WorkerBalanceHistory(ctx context.Context, workerID uuid.UUID) ([]payroll.WorkerBalanceHistory, error) {
	var rows []payroll.WorkerBalanceHistory
	err := r.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		rows, err = tx.HistoryRepo().FindWorkerBalanceHistory(ctx, workerID)
		return err
	})
	return rows, err
}
