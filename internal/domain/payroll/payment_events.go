package payroll

import (
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCreated       = "PaymentCreated"
	EventTypePaymentCompleted     = "PaymentCompleted"
	EventTypePaymentCancelled     = "PaymentCancelled"
	EventTypeDebtDeductionApplied = "DebtDeductionApplied"

	AggregateTypePayment = "Payment"
)

// PaymentCreatedEvent is raised when a new payment is created
type PaymentCreatedEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	WorkerID  uuid.UUID       `json:"worker_id"`
	SessionID uuid.UUID       `json:"session_id"`
	PitakID   *uuid.UUID      `json:"pitak_id,omitempty"`
	GrossPay  decimal.Decimal `json:"gross_pay"`
}

// NewPaymentCreatedEvent creates a new PaymentCreatedEvent
func NewPaymentCreatedEvent(p *Payment) *PaymentCreatedEvent {
	return &PaymentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCreated, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		WorkerID:        p.WorkerID,
		SessionID:       p.SessionID,
		PitakID:         p.PitakID,
		GrossPay:        p.GrossPay,
	}
}

// PaymentCompletedEvent is raised when a payment is settled
type PaymentCompletedEvent struct {
	shared.BaseDomainEvent
	PaymentID          uuid.UUID       `json:"payment_id"`
	WorkerID           uuid.UUID       `json:"worker_id"`
	GrossPay           decimal.Decimal `json:"gross_pay"`
	TotalDebtDeduction decimal.Decimal `json:"total_debt_deduction"`
	NetPay             decimal.Decimal `json:"net_pay"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	PaymentDate        time.Time       `json:"payment_date"`
}

// NewPaymentCompletedEvent creates a new PaymentCompletedEvent
func NewPaymentCompletedEvent(p *Payment) *PaymentCompletedEvent {
	paidAt := time.Now()
	if p.PaymentDate != nil {
		paidAt = *p.PaymentDate
	}
	return &PaymentCompletedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypePaymentCompleted, AggregateTypePayment, p.ID),
		PaymentID:          p.ID,
		WorkerID:           p.WorkerID,
		GrossPay:           p.GrossPay,
		TotalDebtDeduction: p.TotalDebtDeduction,
		NetPay:             p.NetPay,
		PaymentMethod:      p.PaymentMethod,
		PaymentDate:        paidAt,
	}
}

// PaymentCancelledEvent is raised when a payment is cancelled
type PaymentCancelledEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID `json:"payment_id"`
	WorkerID  uuid.UUID `json:"worker_id"`
	Reason    string    `json:"reason"`
}

// NewPaymentCancelledEvent creates a new PaymentCancelledEvent
func NewPaymentCancelledEvent(p *Payment, reason string) *PaymentCancelledEvent {
	return &PaymentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCancelled, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		WorkerID:        p.WorkerID,
		Reason:          reason,
	}
}

// DebtDeductionAppliedEvent is raised when part of net pay is withheld for debts
type DebtDeductionAppliedEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	WorkerID  uuid.UUID       `json:"worker_id"`
	Amount    decimal.Decimal `json:"amount"`
	Pooled    bool            `json:"pooled"`
	NetPay    decimal.Decimal `json:"net_pay"`
}

// NewDebtDeductionAppliedEvent creates a new DebtDeductionAppliedEvent
func NewDebtDeductionAppliedEvent(p *Payment, amount decimal.Decimal, pooled bool) *DebtDeductionAppliedEvent {
	return &DebtDeductionAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtDeductionApplied, AggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		WorkerID:        p.WorkerID,
		Amount:          amount,
		Pooled:          pooled,
		NetPay:          p.NetPay,
	}
}
