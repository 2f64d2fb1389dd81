package payroll

import (
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeDebtIssued = "DebtIssued"
	EventTypeDebtPaid   = "DebtPaid"

	AggregateTypeDebt = "Debt"
)

// DebtIssuedEvent is raised when a debt is issued to a worker
type DebtIssuedEvent struct {
	shared.BaseDomainEvent
	DebtID   uuid.UUID       `json:"debt_id"`
	WorkerID uuid.UUID       `json:"worker_id"`
	Amount   decimal.Decimal `json:"amount"`
	DueDate  *time.Time      `json:"due_date,omitempty"`
}

// NewDebtIssuedEvent creates a new DebtIssuedEvent
func NewDebtIssuedEvent(d *Debt) *DebtIssuedEvent {
	return &DebtIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtIssued, AggregateTypeDebt, d.ID),
		DebtID:          d.ID,
		WorkerID:        d.WorkerID,
		Amount:          d.OriginalAmount,
		DueDate:         d.DueDate,
	}
}

// DebtPaidEvent is raised when a debt balance reaches zero
type DebtPaidEvent struct {
	shared.BaseDomainEvent
	DebtID         uuid.UUID       `json:"debt_id"`
	WorkerID       uuid.UUID       `json:"worker_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PaidAt         time.Time       `json:"paid_at"`
}

// NewDebtPaidEvent creates a new DebtPaidEvent
func NewDebtPaidEvent(d *Debt) *DebtPaidEvent {
	paidAt := time.Now()
	if d.LastPaymentDate != nil {
		paidAt = *d.LastPaymentDate
	}
	return &DebtPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtPaid, AggregateTypeDebt, d.ID),
		DebtID:          d.ID,
		WorkerID:        d.WorkerID,
		OriginalAmount:  d.OriginalAmount,
		PaidAt:          paidAt,
	}
}
