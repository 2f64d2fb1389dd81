package rpc

import (
	"time"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the acting user carried by every call
type Actor struct {
	UserID string `json:"userId" validate:"required,max=100"`
}

type createPaymentParams struct {
	apppayroll.CreatePaymentInput
	Actor
}

type applyDeductionParams struct {
	apppayroll.ApplyDeductionInput
	Actor
}

type updateDeductionsParams struct {
	apppayroll.UpdateDeductionsInput
	Actor
}

type paymentActionParams struct {
	apppayroll.PaymentActionInput
	Actor
}

type processParams struct {
	apppayroll.ProcessInput
	Actor
}

type cancelParams struct {
	apppayroll.CancelInput
	Actor
}

type assignWorkerParams struct {
	apppayroll.AssignWorkerInput
	Actor
}

type assignPitakParams struct {
	apppayroll.AssignPitakInput
	Actor
}

type addNoteParams struct {
	apppayroll.AddNoteInput
	Actor
}

type paymentIDParams struct {
	PaymentID uuid.UUID `json:"paymentId" validate:"required"`
	Actor
}

type listPaymentsParams struct {
	WorkerID  *uuid.UUID             `json:"workerId,omitempty"`
	SessionID *uuid.UUID             `json:"sessionId,omitempty"`
	Status    *payroll.PaymentStatus `json:"status,omitempty"`
	FromDate  *time.Time             `json:"fromDate,omitempty"`
	ToDate    *time.Time             `json:"toDate,omitempty"`
	Page      int                    `json:"page" validate:"omitempty,min=1"`
	PageSize  int                    `json:"pageSize" validate:"omitempty,min=1,max=500"`
	OrderBy   string                 `json:"orderBy,omitempty"`
	OrderDir  string                 `json:"orderDir,omitempty" validate:"omitempty,oneof=asc desc"`
	Actor
}

func (p listPaymentsParams) filter() payroll.PaymentFilter {
	f := payroll.PaymentFilter{
		Filter:    shared.DefaultFilter(),
		WorkerID:  p.WorkerID,
		SessionID: p.SessionID,
		Status:    p.Status,
		FromDate:  p.FromDate,
		ToDate:    p.ToDate,
	}
	if p.Page > 0 {
		f.Page = p.Page
	}
	if p.PageSize > 0 {
		f.PageSize = p.PageSize
	}
	if p.OrderBy != "" {
		f.OrderBy = p.OrderBy
	}
	if p.OrderDir != "" {
		f.OrderDir = p.OrderDir
	}
	return f
}

type bulkCreateParams struct {
	Items []apppayroll.CreatePaymentInput `json:"items"`
	Actor
}

type bulkUpdateParams struct {
	Items []apppayroll.BulkUpdateItem `json:"items"`
	Actor
}

type bulkProcessParams struct {
	apppayroll.BulkProcessInput
	Actor
}

type issueDebtParams struct {
	apppayroll.IssueDebtInput
	Actor
}

// allocateParams allocates FIFO across the worker's open debts, or to one
// debt when debtId is set. The money arrives outside any payment; deductions
// tied to a payment are settled by payment.process, so paymentId is refused.
type allocateParams struct {
	WorkerID  uuid.UUID       `json:"workerId" validate:"required"`
	DebtID    *uuid.UUID      `json:"debtId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	PaymentID *uuid.UUID      `json:"paymentId,omitempty"`
	Reason    string          `json:"reason,omitempty" validate:"max=500"`
	Actor
}

// CodePaymentLinkedAllocation rejects a direct allocation naming a payment
const CodePaymentLinkedAllocation = "PAYMENT_LINKED_ALLOCATION"

func (p *allocateParams) check() error {
	if p.PaymentID != nil {
		return shared.NewValidationError(CodePaymentLinkedAllocation,
			"paymentId is not accepted; apply a debt deduction to the payment and process it instead")
	}
	return nil
}

type reconcileParams struct {
	WorkerID uuid.UUID `json:"workerId" validate:"required"`
	Apply    bool      `json:"apply"`
	Reason   string    `json:"reason,omitempty" validate:"max=500"`
	Actor
}

type debtIDParams struct {
	DebtID uuid.UUID `json:"debtId" validate:"required"`
	Actor
}

type workerIDParams struct {
	WorkerID uuid.UUID `json:"workerId" validate:"required"`
	Actor
}


// listResult is a page of payments
type listResult struct {
	Items    []apppayroll.PaymentResponse `json:"items"`
	Total    int64                        `json:"total"`
	Page     int                          `json:"page"`
	PageSize int                          `json:"pageSize"`
}
