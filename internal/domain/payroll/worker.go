package payroll

import (
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// WorkerStatus is the employment status maintained by the worker registry
type WorkerStatus string

const (
	WorkerStatusActive     WorkerStatus = "active"
	WorkerStatusInactive   WorkerStatus = "inactive"
	WorkerStatusTerminated WorkerStatus = "terminated"
)

// IsValid checks if the status is a valid WorkerStatus
func (s WorkerStatus) IsValid() bool {
	switch s {
	case WorkerStatusActive, WorkerStatusInactive, WorkerStatusTerminated:
		return true
	}
	return false
}

// Worker is the ledger's view of a farm worker. Only the two counters are
// owned here; everything else is maintained by the worker registry.
type Worker struct {
	shared.BaseAggregateRoot
	Name           string          `json:"name"`
	Status         WorkerStatus    `json:"status"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

// NewWorker creates a worker record with zeroed counters
func NewWorker(name string) (*Worker, error) {
	if name == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Worker name cannot be empty")
	}
	return &Worker{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Status:            WorkerStatusActive,
		TotalPaid:         decimal.Zero,
		CurrentBalance:    decimal.Zero,
	}, nil
}

// Credit records amount as paid to the worker and lowers the balance, floored
// at zero. It returns the balance reduction actually applied, which Reverse
// needs to undo the credit exactly.
func (w *Worker) Credit(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, shared.NewValidationError("INVALID_AMOUNT", "Amount cannot be negative")
	}
	applied := decimal.Min(amount, w.CurrentBalance)
	w.TotalPaid = w.TotalPaid.Add(amount)
	w.CurrentBalance = w.CurrentBalance.Sub(applied)
	w.Touch()
	return applied, nil
}

// Reverse undoes a prior Credit of paid that lowered the balance by balanceApplied
func (w *Worker) Reverse(paid, balanceApplied decimal.Decimal) error {
	if paid.IsNegative() || balanceApplied.IsNegative() {
		return shared.NewValidationError("INVALID_AMOUNT", "Amount cannot be negative")
	}
	if balanceApplied.GreaterThan(paid) {
		return shared.NewValidationError("INVALID_AMOUNT",
			"Balance reduction %s cannot exceed the credited amount %s", balanceApplied.StringFixed(2), paid.StringFixed(2))
	}
	if paid.GreaterThan(w.TotalPaid) {
		return shared.NewInsufficientFundsError("EXCEEDS_TOTAL_PAID",
			"Cannot reverse %s, worker total paid is %s", paid.StringFixed(2), w.TotalPaid.StringFixed(2)).WithEntity(w.ID)
	}
	w.TotalPaid = w.TotalPaid.Sub(paid)
	w.CurrentBalance = w.CurrentBalance.Add(balanceApplied)
	w.Touch()
	return nil
}

// RaiseBalance records a newly issued debt
func (w *Worker) RaiseBalance(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Amount must be positive")
	}
	if err := shared.CheckMoneyScale("Amount", amount); err != nil {
		return err
	}
	w.CurrentBalance = w.CurrentBalance.Add(amount)
	w.Touch()
	return nil
}

// Reconcile sets the balance to the given open-debt total and returns the drift
// (stored balance minus derived balance) that was corrected
func (w *Worker) Reconcile(openDebtTotal decimal.Decimal) decimal.Decimal {
	drift := w.CurrentBalance.Sub(openDebtTotal)
	if !drift.IsZero() {
		w.CurrentBalance = openDebtTotal
		w.Touch()
	}
	return drift
}
