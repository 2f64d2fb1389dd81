package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DebtStatus represents the repayment state of a debt
type DebtStatus string

const (
	DebtStatusPending       DebtStatus = "pending"        // Nothing repaid yet
	DebtStatusPartiallyPaid DebtStatus = "partially_paid" // 0 < totalPaid, balance > 0
	DebtStatusPaid          DebtStatus = "paid"           // balance = 0
	DebtStatusCancelled     DebtStatus = "cancelled"
	DebtStatusSettled       DebtStatus = "settled" // Closed by agreement outside the ledger
)

// IsValid checks if the status is a valid DebtStatus
func (s DebtStatus) IsValid() bool {
	switch s {
	case DebtStatusPending, DebtStatusPartiallyPaid, DebtStatusPaid, DebtStatusCancelled, DebtStatusSettled:
		return true
	}
	return false
}

// String returns the string representation of DebtStatus
func (s DebtStatus) String() string {
	return string(s)
}

// IsOpen returns true if deductions can still be allocated to the debt
func (s DebtStatus) IsOpen() bool {
	return s == DebtStatusPending || s == DebtStatusPartiallyPaid
}

// OpenDebtStatuses returns the statuses FIFO allocation draws from
func OpenDebtStatuses() []DebtStatus {
	return []DebtStatus{DebtStatusPending, DebtStatusPartiallyPaid}
}

// Debt is an amount owed by a worker, reduced by allocated deductions
type Debt struct {
	shared.BaseAggregateRoot
	WorkerID        uuid.UUID        `json:"worker_id"`
	OriginalAmount  decimal.Decimal  `json:"original_amount"`
	Balance         decimal.Decimal  `json:"balance"`
	TotalPaid       decimal.Decimal  `json:"total_paid"`
	Status          DebtStatus       `json:"status"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	LastPaymentDate *time.Time       `json:"last_payment_date,omitempty"`
	InterestRate    *decimal.Decimal `json:"interest_rate,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}

// NewDebt issues a new pending debt
func NewDebt(workerID uuid.UUID, amount decimal.Decimal, dueDate *time.Time, interestRate *decimal.Decimal, reason string) (*Debt, error) {
	if workerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_WORKER", "Worker ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Debt amount must be positive")
	}
	if err := shared.CheckMoneyScale("Debt amount", amount); err != nil {
		return nil, err
	}
	if interestRate != nil && interestRate.IsNegative() {
		return nil, shared.NewValidationError("INVALID_INTEREST_RATE", "Interest rate cannot be negative")
	}
	if interestRate != nil {
		if err := shared.CheckMoneyScale("Interest rate", *interestRate); err != nil {
			return nil, err
		}
	}

	d := &Debt{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		WorkerID:          workerID,
		OriginalAmount:    amount,
		Balance:           amount,
		TotalPaid:         decimal.Zero,
		Status:            DebtStatusPending,
		DueDate:           dueDate,
		InterestRate:      interestRate,
		Reason:            strings.TrimSpace(reason),
	}

	d.AddDomainEvent(NewDebtIssuedEvent(d))

	return d, nil
}

// ApplyPayment reduces the balance by amount. It never allocates partially:
// an amount above the balance is rejected.
func (d *Debt) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if !d.Status.IsOpen() {
		return shared.NewStateError("DEBT_NOT_OPEN", "Cannot apply payment to debt in %s status", d.Status).WithEntity(d.ID)
	}
	if !amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if err := shared.CheckMoneyScale("Payment amount", amount); err != nil {
		return err
	}
	if amount.GreaterThan(d.Balance) {
		return shared.NewInsufficientFundsError("EXCEEDS_BALANCE",
			"Amount %s exceeds debt balance %s", amount.StringFixed(2), d.Balance.StringFixed(2)).WithEntity(d.ID)
	}

	d.TotalPaid = d.TotalPaid.Add(amount)
	d.Balance = d.OriginalAmount.Sub(d.TotalPaid)
	paidAt := at
	d.LastPaymentDate = &paidAt
	d.refreshStatus()
	d.Touch()

	if d.Status == DebtStatusPaid {
		d.AddDomainEvent(NewDebtPaidEvent(d))
	}
	return nil
}

func (d *Debt) refreshStatus() {
	switch {
	case !d.Balance.IsPositive():
		d.Status = DebtStatusPaid
	case d.TotalPaid.IsPositive():
		d.Status = DebtStatusPartiallyPaid
	default:
		d.Status = DebtStatusPending
	}
}

// CheckInvariants verifies the balance equation and the status rule
func (d *Debt) CheckInvariants() error {
	if !d.Balance.Equal(d.OriginalAmount.Sub(d.TotalPaid)) {
		return fmt.Errorf("debt %s: balance %s != original %s - paid %s", d.ID, d.Balance, d.OriginalAmount, d.TotalPaid)
	}
	if d.Balance.IsNegative() {
		return fmt.Errorf("debt %s: negative balance %s", d.ID, d.Balance)
	}
	if d.Status == DebtStatusCancelled || d.Status == DebtStatusSettled {
		return nil
	}
	if (d.Status == DebtStatusPaid) != d.Balance.IsZero() {
		return fmt.Errorf("debt %s: status %s inconsistent with balance %s", d.ID, d.Status, d.Balance)
	}
	partial := d.TotalPaid.IsPositive() && d.Balance.IsPositive()
	if (d.Status == DebtStatusPartiallyPaid) != partial {
		return fmt.Errorf("debt %s: status %s inconsistent with paid %s", d.ID, d.Status, d.TotalPaid)
	}
	return nil
}

// IsPaid returns true if the debt is fully repaid
func (d *Debt) IsPaid() bool {
	return d.Status == DebtStatusPaid
}

// IsOverdue returns true if the debt is open and past its due date
func (d *Debt) IsOverdue(now time.Time) bool {
	if !d.Status.IsOpen() || d.DueDate == nil {
		return false
	}
	return now.After(*d.DueDate)
}
