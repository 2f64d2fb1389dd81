package payroll

import (
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===================== Inputs =====================

// CreatePaymentInput creates a pending payment
type CreatePaymentInput struct {
	WorkerID       uuid.UUID       `json:"workerId" validate:"required"`
	SessionID      uuid.UUID       `json:"sessionId" validate:"required"`
	PitakID        *uuid.UUID      `json:"pitakId,omitempty"`
	GrossPay       decimal.Decimal `json:"grossPay"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"max=100"`
	PerformedBy    string          `json:"-"`
	Reason         string          `json:"reason,omitempty"`
}

// ApplyDeductionInput withholds part of a payment for debts
type ApplyDeductionInput struct {
	PaymentID   uuid.UUID       `json:"paymentId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	DebtID      *uuid.UUID      `json:"debtId,omitempty"` // nil pools the amount until settlement
	PerformedBy string          `json:"-"`
	Reason      string          `json:"reason,omitempty"`
}

// UpdateDeductionsInput replaces manual and other deductions
type UpdateDeductionsInput struct {
	PaymentID       uuid.UUID        `json:"paymentId" validate:"required"`
	ManualDeduction *decimal.Decimal `json:"manualDeduction,omitempty"`
	OtherDeductions *decimal.Decimal `json:"otherDeductions,omitempty"`
	PerformedBy     string           `json:"-"`
	Reason          string           `json:"reason,omitempty"`
}

// ProcessInput settles a pending payment
type ProcessInput struct {
	PaymentID       uuid.UUID             `json:"paymentId" validate:"required"`
	PaymentDate     time.Time             `json:"paymentDate"`
	PaymentMethod   payroll.PaymentMethod `json:"paymentMethod"`
	ReferenceNumber string                `json:"referenceNumber,omitempty" validate:"max=100"`
	PerformedBy     string                `json:"-"`
	Reason          string                `json:"reason,omitempty"`
}

// PaymentActionInput targets one payment (markProcessing, delete)
type PaymentActionInput struct {
	PaymentID   uuid.UUID `json:"paymentId" validate:"required"`
	PerformedBy string    `json:"-"`
	Reason      string    `json:"reason,omitempty"`
}

// CancelInput cancels a payment
type CancelInput struct {
	PaymentID   uuid.UUID `json:"paymentId" validate:"required"`
	Reason      string    `json:"reason" validate:"required"`
	PerformedBy string    `json:"-"`
}

// AssignWorkerInput moves a payment to another worker
type AssignWorkerInput struct {
	PaymentID   uuid.UUID `json:"paymentId" validate:"required"`
	WorkerID    uuid.UUID `json:"workerId" validate:"required"`
	PerformedBy string    `json:"-"`
	Reason      string    `json:"reason,omitempty"`
}

// AssignPitakInput moves a payment to another pitak; nil detaches it
type AssignPitakInput struct {
	PaymentID   uuid.UUID  `json:"paymentId" validate:"required"`
	PitakID     *uuid.UUID `json:"pitakId"`
	PerformedBy string     `json:"-"`
	Reason      string     `json:"reason,omitempty"`
}

// AddNoteInput appends to a payment's notes log
type AddNoteInput struct {
	PaymentID   uuid.UUID `json:"paymentId" validate:"required"`
	Note        string    `json:"note" validate:"required,max=1000"`
	PerformedBy string    `json:"-"`
}

// AllocateInput spreads an amount FIFO across a worker's open debts
type AllocateInput struct {
	WorkerID    uuid.UUID       `json:"workerId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentID   *uuid.UUID      `json:"-"` // set only when a processed payment settles its deductions
	PerformedBy string          `json:"-"`
	Reason      string          `json:"reason,omitempty"`
}

// SpecificAllocationInput applies an amount to one debt
type SpecificAllocationInput struct {
	DebtID           uuid.UUID
	Amount           decimal.Decimal
	PaymentID        *uuid.UUID
	ExpectedWorkerID *uuid.UUID // when set, the debt must belong to this worker
	PerformedBy      string
	Reason           string
}

// IssueDebtInput issues a new debt to a worker
type IssueDebtInput struct {
	WorkerID     uuid.UUID        `json:"workerId" validate:"required"`
	Amount       decimal.Decimal  `json:"amount"`
	DueDate      *time.Time       `json:"dueDate,omitempty"`
	InterestRate *decimal.Decimal `json:"interestRate,omitempty"`
	Reason       string           `json:"reason,omitempty" validate:"max=500"`
	PerformedBy  string           `json:"-"`
}

// BulkCreateInput creates payments independently in one batch
type BulkCreateInput struct {
	Items       []CreatePaymentInput `json:"items"`
	PerformedBy string               `json:"-"`
}

// BulkUpdateItem is one payment's changes in a bulk update
type BulkUpdateItem struct {
	PaymentID       uuid.UUID              `json:"paymentId" validate:"required"`
	ManualDeduction *decimal.Decimal       `json:"manualDeduction,omitempty"`
	OtherDeductions *decimal.Decimal       `json:"otherDeductions,omitempty"`
	Status          *payroll.PaymentStatus `json:"status,omitempty"`
	PitakID         *uuid.UUID             `json:"pitakId,omitempty"`
	Notes           *string                `json:"notes,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
}

// BulkUpdateInput updates payments independently in one batch
type BulkUpdateInput struct {
	Items       []BulkUpdateItem `json:"items"`
	PerformedBy string           `json:"-"`
}

// BulkProcessInput settles payments independently in one batch
type BulkProcessInput struct {
	PaymentIDs      []uuid.UUID           `json:"paymentIds"`
	PaymentDate     time.Time             `json:"paymentDate"`
	PaymentMethod   payroll.PaymentMethod `json:"paymentMethod"`
	ReferencePrefix string                `json:"referencePrefix,omitempty" validate:"max=80"`
	PerformedBy     string                `json:"-"`
	Reason          string                `json:"reason,omitempty"`
}

// ===================== Results =====================

// AllocationLine is the effect of an allocation on one debt
type AllocationLine struct {
	DebtID          uuid.UUID       `json:"debtId"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Status          string          `json:"status"`
}

// AllocationResult is the outcome of an allocation
type AllocationResult struct {
	WorkerID       uuid.UUID        `json:"workerId"`
	Requested      decimal.Decimal  `json:"requested"`
	Allocations    []AllocationLine `json:"allocations"`
	TotalAllocated decimal.Decimal  `json:"totalAllocated"`
	Remaining      decimal.Decimal  `json:"remaining"`
}

// ProcessResult is a settled payment plus the allocation of its pooled deduction
type ProcessResult struct {
	Payment    *PaymentResponse  `json:"payment"`
	Allocation *AllocationResult `json:"allocation,omitempty"`
	Released   decimal.Decimal   `json:"released"` // pooled deduction returned to net pay
}

// BulkFailure describes one failed batch item
type BulkFailure struct {
	Index    int        `json:"index"`
	Reason   string     `json:"reason"`
	Code     string     `json:"code"`
	Kind     string     `json:"kind"`
	EntityID *uuid.UUID `json:"entityId,omitempty"`
}

// BulkResult is the outcome of a batch
type BulkResult struct {
	SuccessCount int           `json:"successCount"`
	FailedCount  int           `json:"failedCount"`
	Success      []any         `json:"success"`
	Failed       []BulkFailure `json:"failed"`
	Committed    bool          `json:"committed"`
}

// PaymentResponse represents a payment in responses
type PaymentResponse struct {
	ID                  uuid.UUID                  `json:"id"`
	WorkerID            uuid.UUID                  `json:"workerId"`
	PitakID             *uuid.UUID                 `json:"pitakId,omitempty"`
	SessionID           uuid.UUID                  `json:"sessionId"`
	GrossPay            decimal.Decimal            `json:"grossPay"`
	ManualDeduction     decimal.Decimal            `json:"manualDeduction"`
	OtherDeductions     decimal.Decimal            `json:"otherDeductions"`
	TotalDebtDeduction  decimal.Decimal            `json:"totalDebtDeduction"`
	PooledDebtDeduction decimal.Decimal            `json:"pooledDebtDeduction"`
	NetPay              decimal.Decimal            `json:"netPay"`
	BalanceCredit       decimal.Decimal            `json:"balanceCredit"`
	Status              string                     `json:"status"`
	DeductionBreakdown  payroll.DeductionBreakdown `json:"deductionBreakdown"`
	PaymentDate         *time.Time                 `json:"paymentDate,omitempty"`
	PaymentMethod       string                     `json:"paymentMethod,omitempty"`
	ReferenceNumber     string                     `json:"referenceNumber,omitempty"`
	IdempotencyKey      *string                    `json:"idempotencyKey,omitempty"`
	Notes               string                     `json:"notes,omitempty"`
	CreatedAt           time.Time                  `json:"createdAt"`
	UpdatedAt           time.Time                  `json:"updatedAt"`
	Version             int                        `json:"version"`
}

// ToPaymentResponse converts a domain payment
func ToPaymentResponse(p *payroll.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:                  p.ID,
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
		Status:              string(p.Status),
		DeductionBreakdown:  p.DeductionBreakdown,
		PaymentDate:         p.PaymentDate,
		PaymentMethod:       string(p.PaymentMethod),
		ReferenceNumber:     p.ReferenceNumber,
		IdempotencyKey:      p.IdempotencyKey,
		Notes:               p.Notes,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		Version:             p.Version,
	}
}

// DebtResponse represents a debt in responses
type DebtResponse struct {
	ID              uuid.UUID        `json:"id"`
	WorkerID        uuid.UUID        `json:"workerId"`
	OriginalAmount  decimal.Decimal  `json:"originalAmount"`
	Balance         decimal.Decimal  `json:"balance"`
	TotalPaid       decimal.Decimal  `json:"totalPaid"`
	Status          string           `json:"status"`
	DueDate         *time.Time       `json:"dueDate,omitempty"`
	LastPaymentDate *time.Time       `json:"lastPaymentDate,omitempty"`
	InterestRate    *decimal.Decimal `json:"interestRate,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	Version         int              `json:"version"`
}

// ToDebtResponse converts a domain debt
func ToDebtResponse(d *payroll.Debt) *DebtResponse {
	if d == nil {
		return nil
	}
	return &DebtResponse{
		ID:              d.ID,
		WorkerID:        d.WorkerID,
		OriginalAmount:  d.OriginalAmount,
		Balance:         d.Balance,
		TotalPaid:       d.TotalPaid,
		Status:          string(d.Status),
		DueDate:         d.DueDate,
		LastPaymentDate: d.LastPaymentDate,
		InterestRate:    d.InterestRate,
		Reason:          d.Reason,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Version:         d.Version,
	}
}

// WorkerBalanceResponse represents a worker's counters
type WorkerBalanceResponse struct {
	WorkerID       uuid.UUID       `json:"workerId"`
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Version        int             `json:"version"`
}

// ToWorkerBalanceResponse converts a domain worker
func ToWorkerBalanceResponse(w *payroll.Worker) *WorkerBalanceResponse {
	if w == nil {
		return nil
	}
	return &WorkerBalanceResponse{
		WorkerID:       w.ID,
		Name:           w.Name,
		Status:         string(w.Status),
		TotalPaid:      w.TotalPaid,
		CurrentBalance: w.CurrentBalance,
		Version:        w.Version,
	}
}
