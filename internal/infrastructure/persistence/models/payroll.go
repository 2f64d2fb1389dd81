package models

import (
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for the Payment aggregate root.
// ReferenceNumber is NULL until processing so the per-session unique index
// ignores unprocessed payments.
type PaymentModel struct {
	AggregateModel
	WorkerID            uuid.UUID                  `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_assignment,priority:2"`
	PitakID             *uuid.UUID                 `gorm:"type:uuid;uniqueIndex:idx_payment_assignment,priority:1"`
	SessionID           uuid.UUID                  `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_assignment,priority:3;uniqueIndex:idx_payment_reference,priority:1"`
	GrossPay            decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	ManualDeduction     decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	OtherDeductions     decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	TotalDebtDeduction  decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	PooledDebtDeduction decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	NetPay              decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	BalanceCredit       decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0"`
	Status              payroll.PaymentStatus      `gorm:"type:varchar(20);not null;default:'pending';index"`
	DeductionBreakdown  payroll.DeductionBreakdown `gorm:"type:jsonb"`
	PaymentDate         *time.Time
	PaymentMethod       payroll.PaymentMethod `gorm:"type:varchar(30)"`
	ReferenceNumber     *string               `gorm:"type:varchar(100);uniqueIndex:idx_payment_reference,priority:2"`
	IdempotencyKey      *string               `gorm:"type:varchar(255);uniqueIndex"`
	Notes               string                `gorm:"type:text"`
	CancelReason        string                `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the model to a domain Payment
func (m *PaymentModel) ToDomain() *payroll.Payment {
	p := &payroll.Payment{
		BaseAggregateRoot:   m.ToDomainAggregateRoot(),
		WorkerID:            m.WorkerID,
		PitakID:             m.PitakID,
		SessionID:           m.SessionID,
		GrossPay:            m.GrossPay,
		ManualDeduction:     m.ManualDeduction,
		OtherDeductions:     m.OtherDeductions,
		TotalDebtDeduction:  m.TotalDebtDeduction,
		PooledDebtDeduction: m.PooledDebtDeduction,
		NetPay:              m.NetPay,
		BalanceCredit:       m.BalanceCredit,
		Status:              m.Status,
		DeductionBreakdown:  m.DeductionBreakdown,
		PaymentDate:         m.PaymentDate,
		PaymentMethod:       m.PaymentMethod,
		IdempotencyKey:      m.IdempotencyKey,
		Notes:               m.Notes,
		CancelReason:        m.CancelReason,
	}
	if m.ReferenceNumber != nil {
		p.ReferenceNumber = *m.ReferenceNumber
	}
	return p
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *payroll.Payment) *PaymentModel {
	m := &PaymentModel{
		WorkerID:            p.WorkerID,
		PitakID:             p.PitakID,
		SessionID:           p.SessionID,
		GrossPay:            p.GrossPay,
		ManualDeduction:     p.ManualDeduction,
		OtherDeductions:     p.OtherDeductions,
		TotalDebtDeduction:  p.TotalDebtDeduction,
		PooledDebtDeduction: p.PooledDebtDeduction,
		NetPay:              p.NetPay,
		BalanceCredit:       p.BalanceCredit,
		Status:              p.Status,
		DeductionBreakdown:  p.DeductionBreakdown,
		PaymentDate:         p.PaymentDate,
		PaymentMethod:       p.PaymentMethod,
		IdempotencyKey:      p.IdempotencyKey,
		Notes:               p.Notes,
		CancelReason:        p.CancelReason,
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	if p.ReferenceNumber != "" {
		ref := p.ReferenceNumber
		m.ReferenceNumber = &ref
	}
	return m
}

// DebtModel is the persistence model for the Debt aggregate root
type DebtModel struct {
	AggregateModel
	WorkerID        uuid.UUID          `gorm:"type:uuid;not null;index:idx_debt_worker_status,priority:1"`
	OriginalAmount  decimal.Decimal    `gorm:"type:decimal(18,4);not null"`
	Balance         decimal.Decimal    `gorm:"type:decimal(18,4);not null"`
	TotalPaid       decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	Status          payroll.DebtStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_debt_worker_status,priority:2"`
	DueDate         *time.Time
	LastPaymentDate *time.Time
	InterestRate    *decimal.Decimal `gorm:"type:decimal(9,4)"`
	Reason          string           `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (DebtModel) TableName() string {
	return "debts"
}

// ToDomain converts the model to a domain Debt
func (m *DebtModel) ToDomain() *payroll.Debt {
	return &payroll.Debt{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		WorkerID:          m.WorkerID,
		OriginalAmount:    m.OriginalAmount,
		Balance:           m.Balance,
		TotalPaid:         m.TotalPaid,
		Status:            m.Status,
		DueDate:           m.DueDate,
		LastPaymentDate:   m.LastPaymentDate,
		InterestRate:      m.InterestRate,
		Reason:            m.Reason,
	}
}

// DebtModelFromDomain creates a persistence model from a domain Debt
func DebtModelFromDomain(d *payroll.Debt) *DebtModel {
	m := &DebtModel{
		WorkerID:        d.WorkerID,
		OriginalAmount:  d.OriginalAmount,
		Balance:         d.Balance,
		TotalPaid:       d.TotalPaid,
		Status:          d.Status,
		DueDate:         d.DueDate,
		LastPaymentDate: d.LastPaymentDate,
		InterestRate:    d.InterestRate,
		Reason:          d.Reason,
	}
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	return m
}

// WorkerModel is the persistence model for the ledger's worker view
type WorkerModel struct {
	AggregateModel
	Name           string               `gorm:"type:varchar(200);not null"`
	Status         payroll.WorkerStatus `gorm:"type:varchar(20);not null;default:'active'"`
	TotalPaid      decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	CurrentBalance decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (WorkerModel) TableName() string {
	return "workers"
}

// ToDomain converts the model to a domain Worker
func (m *WorkerModel) ToDomain() *payroll.Worker {
	return &payroll.Worker{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Status:            m.Status,
		TotalPaid:         m.TotalPaid,
		CurrentBalance:    m.CurrentBalance,
	}
}

// WorkerModelFromDomain creates a persistence model from a domain Worker
func WorkerModelFromDomain(w *payroll.Worker) *WorkerModel {
	m := &WorkerModel{
		Name:           w.Name,
		Status:         w.Status,
		TotalPaid:      w.TotalPaid,
		CurrentBalance: w.CurrentBalance,
	}
	m.FromDomainAggregateRoot(w.BaseAggregateRoot)
	return m
}

// DebtHistoryModel is an append-only debt history row
type DebtHistoryModel struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	DebtID          uuid.UUID                   `gorm:"type:uuid;not null;index"`
	PaymentID       *uuid.UUID                  `gorm:"type:uuid;index"`
	AmountPaid      decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	PreviousBalance decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	NewBalance      decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	TransactionType payroll.DebtTransactionType `gorm:"type:varchar(20);not null"`
	PerformedBy     string                      `gorm:"type:varchar(200);not null"`
	ChangeReason    string                      `gorm:"type:text;not null"`
	TransactionDate time.Time                   `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (DebtHistoryModel) TableName() string {
	return "debt_history"
}

// ToDomain converts the model to a domain DebtHistory
func (m *DebtHistoryModel) ToDomain() payroll.DebtHistory {
	return payroll.DebtHistory{
		ID:              m.ID,
		DebtID:          m.DebtID,
		PaymentID:       m.PaymentID,
		AmountPaid:      m.AmountPaid,
		PreviousBalance: m.PreviousBalance,
		NewBalance:      m.NewBalance,
		TransactionType: m.TransactionType,
		PerformedBy:     m.PerformedBy,
		ChangeReason:    m.ChangeReason,
		TransactionDate: m.TransactionDate,
	}
}

// DebtHistoryModelFromDomain creates a persistence model from a domain DebtHistory
func DebtHistoryModelFromDomain(h *payroll.DebtHistory) *DebtHistoryModel {
	return &DebtHistoryModel{
		ID:              h.ID,
		DebtID:          h.DebtID,
		PaymentID:       h.PaymentID,
		AmountPaid:      h.AmountPaid,
		PreviousBalance: h.PreviousBalance,
		NewBalance:      h.NewBalance,
		TransactionType: h.TransactionType,
		PerformedBy:     h.PerformedBy,
		ChangeReason:    h.ChangeReason,
		TransactionDate: h.TransactionDate,
	}
}

// PaymentHistoryModel is an append-only payment history row. PaymentID has no
// foreign key so the rows outlive a deleted payment.
type PaymentHistoryModel struct {
	ID           uuid.UUID             `gorm:"type:uuid;primaryKey"`
	PaymentID    uuid.UUID             `gorm:"type:uuid;not null;index"`
	ActionType   payroll.PaymentAction `gorm:"type:varchar(30);not null"`
	ChangedField string                `gorm:"type:varchar(100)"`
	OldValue     string                `gorm:"type:text"`
	NewValue     string                `gorm:"type:text"`
	OldAmount    *decimal.Decimal      `gorm:"type:decimal(18,4)"`
	NewAmount    *decimal.Decimal      `gorm:"type:decimal(18,4)"`
	PerformedBy  string                `gorm:"type:varchar(200);not null"`
	ChangeReason string                `gorm:"type:text;not null"`
	ChangeDate   time.Time             `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PaymentHistoryModel) TableName() string {
	return "payment_history"
}

// ToDomain converts the model to a domain PaymentHistory
func (m *PaymentHistoryModel) ToDomain() payroll.PaymentHistory {
	return payroll.PaymentHistory{
		ID:           m.ID,
		PaymentID:    m.PaymentID,
		ActionType:   m.ActionType,
		ChangedField: m.ChangedField,
		OldValue:     m.OldValue,
		NewValue:     m.NewValue,
		OldAmount:    m.OldAmount,
		NewAmount:    m.NewAmount,
		PerformedBy:  m.PerformedBy,
		ChangeReason: m.ChangeReason,
		ChangeDate:   m.ChangeDate,
	}
}

// PaymentHistoryModelFromDomain creates a persistence model from a domain PaymentHistory
func PaymentHistoryModelFromDomain(h *payroll.PaymentHistory) *PaymentHistoryModel {
	return &PaymentHistoryModel{
		ID:           h.ID,
		PaymentID:    h.PaymentID,
		ActionType:   h.ActionType,
		ChangedField: h.ChangedField,
		OldValue:     h.OldValue,
		NewValue:     h.NewValue,
		OldAmount:    h.OldAmount,
		NewAmount:    h.NewAmount,
		PerformedBy:  h.PerformedBy,
		ChangeReason: h.ChangeReason,
		ChangeDate:   h.ChangeDate,
	}
}

// WorkerBalanceHistoryModel is an append-only worker balance correction row
type WorkerBalanceHistoryModel struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	WorkerID        uuid.UUID                   `gorm:"type:uuid;not null;index"`
	ActionType      payroll.WorkerBalanceAction `gorm:"type:varchar(30);not null"`
	PreviousBalance decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	NewBalance      decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	PerformedBy     string                      `gorm:"type:varchar(200);not null"`
	ChangeReason    string                      `gorm:"type:text;not null"`
	ChangeDate      time.Time                   `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (WorkerBalanceHistoryModel) TableName() string {
	return "worker_balance_history"
}

// ToDomain converts the model to a domain WorkerBalanceHistory
func (m *WorkerBalanceHistoryModel) ToDomain() payroll.WorkerBalanceHistory {
	return payroll.WorkerBalanceHistory{
		ID:              m.ID,
		WorkerID:        m.WorkerID,
		ActionType:      m.ActionType,
		PreviousBalance: m.PreviousBalance,
		NewBalance:      m.NewBalance,
		PerformedBy:     m.PerformedBy,
		ChangeReason:    m.ChangeReason,
		ChangeDate:      m.ChangeDate,
	}
}

// WorkerBalanceHistoryModelFromDomain creates a persistence model from a domain WorkerBalanceHistory
func WorkerBalanceHistoryModelFromDomain(h *payroll.WorkerBalanceHistory) *WorkerBalanceHistoryModel {
	return &WorkerBalanceHistoryModel{
		ID:              h.ID,
		WorkerID:        h.WorkerID,
		ActionType:      h.ActionType,
		PreviousBalance: h.PreviousBalance,
		NewBalance:      h.NewBalance,
		PerformedBy:     h.PerformedBy,
		ChangeReason:    h.ChangeReason,
		ChangeDate:      h.ChangeDate,
	}
}

// PayrollModels lists every ledger model, in creation order, for AutoMigrate
func PayrollModels() []any {
	return []any{
		&WorkerModel{},
		&PaymentModel{},
		&DebtModel{},
		&DebtHistoryModel{},
		&PaymentHistoryModel{},
		&WorkerBalanceHistoryModel{},
	}
}
