package payroll

import (
	"strings"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DebtTransactionType classifies a debt history row
type DebtTransactionType string

const (
	DebtTransactionIssue     DebtTransactionType = "issue"     // Debt created
	DebtTransactionPayment   DebtTransactionType = "payment"   // Direct repayment, not tied to a worker payment
	DebtTransactionDeduction DebtTransactionType = "deduction" // Withheld from a worker payment
)

// IsValid checks if the transaction type is known
func (t DebtTransactionType) IsValid() bool {
	switch t {
	case DebtTransactionIssue, DebtTransactionPayment, DebtTransactionDeduction:
		return true
	}
	return false
}

// DebtHistory is an append-only record of one debt balance change
type DebtHistory struct {
	ID              uuid.UUID           `json:"id"`
	DebtID          uuid.UUID           `json:"debt_id"`
	PaymentID       *uuid.UUID          `json:"payment_id,omitempty"`
	AmountPaid      decimal.Decimal     `json:"amount_paid"`
	PreviousBalance decimal.Decimal     `json:"previous_balance"`
	NewBalance      decimal.Decimal     `json:"new_balance"`
	TransactionType DebtTransactionType `json:"transaction_type"`
	PerformedBy     string              `json:"performed_by"`
	ChangeReason    string              `json:"change_reason"`
	TransactionDate time.Time           `json:"transaction_date"`
}

// NewDebtHistory creates a debt history row
func NewDebtHistory(
	debtID uuid.UUID,
	paymentID *uuid.UUID,
	txType DebtTransactionType,
	amount, previousBalance, newBalance decimal.Decimal,
	performedBy, changeReason string,
	at time.Time,
) (*DebtHistory, error) {
	if debtID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_DEBT", "Debt ID cannot be empty")
	}
	if !txType.IsValid() {
		return nil, shared.NewValidationError("INVALID_TRANSACTION_TYPE", "Unknown debt transaction type %q", txType)
	}
	if err := requireAttribution(performedBy, changeReason); err != nil {
		return nil, err
	}
	return &DebtHistory{
		ID:              uuid.New(),
		DebtID:          debtID,
		PaymentID:       paymentID,
		AmountPaid:      amount,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
		TransactionType: txType,
		PerformedBy:     performedBy,
		ChangeReason:    changeReason,
		TransactionDate: at,
	}, nil
}

// PaymentAction classifies a payment history row
type PaymentAction string

const (
	PaymentActionCreate       PaymentAction = "create"
	PaymentActionUpdate       PaymentAction = "update"
	PaymentActionStatusChange PaymentAction = "status_change"
	PaymentActionDeduction    PaymentAction = "deduction"
	PaymentActionAssignment   PaymentAction = "assignment"
	PaymentActionNote         PaymentAction = "note"
	PaymentActionDelete       PaymentAction = "delete"
)

// IsValid checks if the action is known
func (a PaymentAction) IsValid() bool {
	switch a {
	case PaymentActionCreate, PaymentActionUpdate, PaymentActionStatusChange, PaymentActionDeduction,
		PaymentActionAssignment, PaymentActionNote, PaymentActionDelete:
		return true
	}
	return false
}

// PaymentHistory is an append-only record of one payment field change.
// PaymentID is not a foreign key so rows outlive the payment.
type PaymentHistory struct {
	ID           uuid.UUID        `json:"id"`
	PaymentID    uuid.UUID        `json:"payment_id"`
	ActionType   PaymentAction    `json:"action_type"`
	ChangedField string           `json:"changed_field"`
	OldValue     string           `json:"old_value,omitempty"`
	NewValue     string           `json:"new_value,omitempty"`
	OldAmount    *decimal.Decimal `json:"old_amount,omitempty"`
	NewAmount    *decimal.Decimal `json:"new_amount,omitempty"`
	PerformedBy  string           `json:"performed_by"`
	ChangeReason string           `json:"change_reason"`
	ChangeDate   time.Time        `json:"change_date"`
}

// FieldChange is one changed field of a payment mutation
type FieldChange struct {
	Field     string
	OldValue  string
	NewValue  string
	OldAmount *decimal.Decimal
	NewAmount *decimal.Decimal
}

// AmountChange builds a FieldChange for a monetary field
func AmountChange(field string, oldAmount, newAmount decimal.Decimal) FieldChange {
	return FieldChange{
		Field:     field,
		OldValue:  oldAmount.StringFixed(2),
		NewValue:  newAmount.StringFixed(2),
		OldAmount: &oldAmount,
		NewAmount: &newAmount,
	}
}

// ValueChange builds a FieldChange for a textual field
func ValueChange(field, oldValue, newValue string) FieldChange {
	return FieldChange{Field: field, OldValue: oldValue, NewValue: newValue}
}

// NewPaymentHistory creates a payment history row for one field change
func NewPaymentHistory(paymentID uuid.UUID, action PaymentAction, change FieldChange, performedBy, changeReason string, at time.Time) (*PaymentHistory, error) {
	if paymentID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}
	if !action.IsValid() {
		return nil, shared.NewValidationError("INVALID_ACTION", "Unknown payment action %q", action)
	}
	if err := requireAttribution(performedBy, changeReason); err != nil {
		return nil, err
	}
	return &PaymentHistory{
		ID:           uuid.New(),
		PaymentID:    paymentID,
		ActionType:   action,
		ChangedField: change.Field,
		OldValue:     change.OldValue,
		NewValue:     change.NewValue,
		OldAmount:    change.OldAmount,
		NewAmount:    change.NewAmount,
		PerformedBy:  performedBy,
		ChangeReason: changeReason,
		ChangeDate:   at,
	}, nil
}

// WorkerBalanceAction classifies a worker balance history row
type WorkerBalanceAction string

const (
	// WorkerBalanceReconcile resets currentBalance to the open debt total
	WorkerBalanceReconcile WorkerBalanceAction = "reconcile"
)

// WorkerBalanceHistory is an append-only record of a direct correction of a
// worker's currentBalance. Deltas from payments and debts are audited on
// their own history rows instead.
type WorkerBalanceHistory struct {
	ID              uuid.UUID           `json:"id"`
	WorkerID        uuid.UUID           `json:"worker_id"`
	ActionType      WorkerBalanceAction `json:"action_type"`
	PreviousBalance decimal.Decimal     `json:"previous_balance"`
	NewBalance      decimal.Decimal     `json:"new_balance"`
	PerformedBy     string              `json:"performed_by"`
	ChangeReason    string              `json:"change_reason"`
	ChangeDate      time.Time           `json:"change_date"`
}

// NewWorkerBalanceHistory creates a worker balance history row
func NewWorkerBalanceHistory(
	workerID uuid.UUID,
	action WorkerBalanceAction,
	previousBalance, newBalance decimal.Decimal,
	performedBy, changeReason string,
	at time.Time,
) (*WorkerBalanceHistory, error) {
	if workerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_WORKER", "Worker ID cannot be empty")
	}
	if action != WorkerBalanceReconcile {
		return nil, shared.NewValidationError("INVALID_ACTION", "Unknown worker balance action %q", action)
	}
	if err := requireAttribution(performedBy, changeReason); err != nil {
		return nil, err
	}
	return &WorkerBalanceHistory{
		ID:              uuid.New(),
		WorkerID:        workerID,
		ActionType:      action,
		PreviousBalance: previousBalance,
		NewBalance:      newBalance,
		PerformedBy:     performedBy,
		ChangeReason:    changeReason,
		ChangeDate:      at,
	}, nil
}

func requireAttribution(performedBy, changeReason string) error {
	if strings.TrimSpace(performedBy) == "" {
		return shared.NewValidationError("MISSING_PERFORMED_BY", "Acting user is required for the audit trail")
	}
	if strings.TrimSpace(changeReason) == "" {
		return shared.NewValidationError("MISSING_CHANGE_REASON", "Change reason is required for the audit trail")
	}
	return nil
}
