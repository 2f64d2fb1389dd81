package rpc

import (
	"context"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
)

func (d *Dispatcher) routes() map[string]method {
	s := d.services
	return map[string]method{
		// ===================== Payments =====================
		"payment.create": {mutating: true, message: "Payment created", handle: bind(d,
			func(ctx context.Context, p *createPaymentParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.Create(ctx, p.CreatePaymentInput)
			})},
		"payment.applyDebtDeduction": {mutating: true, message: "Debt deduction applied", handle: bind(d,
			func(ctx context.Context, p *applyDeductionParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.ApplyDebtDeduction(ctx, p.ApplyDeductionInput)
			})},
		"payment.updateDeductions": {mutating: true, message: "Deductions updated", handle: bind(d,
			func(ctx context.Context, p *updateDeductionsParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.UpdateDeductions(ctx, p.UpdateDeductionsInput)
			})},
		"payment.markProcessing": {mutating: true, message: "Payment marked as processing", handle: bind(d,
			func(ctx context.Context, p *paymentActionParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.MarkProcessing(ctx, p.PaymentActionInput)
			})},
		"payment.process": {mutating: true, message: "Payment processed", handle: bind(d,
			func(ctx context.Context, p *processParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.Process(ctx, p.ProcessInput)
			})},
		"payment.cancel": {mutating: true, message: "Payment cancelled", handle: bind(d,
			func(ctx context.Context, p *cancelParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.Cancel(ctx, p.CancelInput)
			})},
		"payment.delete": {mutating: true, message: "Payment deleted", handle: bind(d,
			func(ctx context.Context, p *paymentActionParams) (any, error) {
				p.PerformedBy = p.UserID
				if err := s.Ledger.Delete(ctx, p.PaymentActionInput); err != nil {
					return nil, err
				}
				return map[string]any{"id": p.PaymentID, "deleted": true}, nil
			})},
		"payment.assignWorker": {mutating: true, message: "Worker assigned", handle: bind(d,
			func(ctx context.Context, p *assignWorkerParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.AssignWorker(ctx, p.AssignWorkerInput)
			})},
		"payment.assignPitak": {mutating: true, message: "Pitak assigned", handle: bind(d,
			func(ctx context.Context, p *assignPitakParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.AssignPitak(ctx, p.AssignPitakInput)
			})},
		"payment.addNote": {mutating: true, message: "Note added", handle: bind(d,
			func(ctx context.Context, p *addNoteParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Ledger.AddNote(ctx, p.AddNoteInput)
			})},
		"payment.get": {message: "Payment retrieved", handle: bind(d,
			func(ctx context.Context, p *paymentIDParams) (any, error) {
				return s.Ledger.Get(ctx, p.PaymentID)
			})},
		"payment.list": {message: "Payments retrieved", handle: bind(d,
			func(ctx context.Context, p *listPaymentsParams) (any, error) {
				filter := p.filter()
				items, total, err := s.Ledger.List(ctx, filter)
				if err != nil {
					return nil, err
				}
				return listResult{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
			})},
		"payment.history": {message: "Payment history retrieved", handle: bind(d,
			func(ctx context.Context, p *paymentIDParams) (any, error) {
				return s.Recorder.PaymentHistory(ctx, p.PaymentID)
			})},

		// ===================== Bulk =====================
		"payment.bulkCreate": {mutating: true, message: "Bulk create finished", handle: bind(d,
			func(ctx context.Context, p *bulkCreateParams) (any, error) {
				return s.Bulk.BulkCreate(ctx, apppayroll.BulkCreateInput{Items: p.Items, PerformedBy: p.UserID})
			})},
		"payment.bulkUpdate": {mutating: true, message: "Bulk update finished", handle: bind(d,
			func(ctx context.Context, p *bulkUpdateParams) (any, error) {
				return s.Bulk.BulkUpdate(ctx, apppayroll.BulkUpdateInput{Items: p.Items, PerformedBy: p.UserID})
			})},
		"payment.bulkProcess": {mutating: true, message: "Bulk process finished", handle: bind(d,
			func(ctx context.Context, p *bulkProcessParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Bulk.BulkProcess(ctx, p.BulkProcessInput)
			})},

		// ===================== Debts =====================
		"debt.issue": {mutating: true, message: "Debt issued", handle: bind(d,
			func(ctx context.Context, p *issueDebtParams) (any, error) {
				p.PerformedBy = p.UserID
				return s.Allocator.Issue(ctx, p.IssueDebtInput)
			})},
		"debt.allocate": {mutating: true, message: "Amount allocated", handle: bind(d,
			func(ctx context.Context, p *allocateParams) (any, error) {
				if err := p.check(); err != nil {
					return nil, err
				}
				if p.DebtID != nil {
					workerID := p.WorkerID
					return s.Allocator.AllocateToSpecificDebt(ctx, apppayroll.SpecificAllocationInput{
						DebtID:           *p.DebtID,
						Amount:           p.Amount,
						ExpectedWorkerID: &workerID,
						PerformedBy:      p.UserID,
						Reason:           p.Reason,
					})
				}
				return s.Allocator.Allocate(ctx, apppayroll.AllocateInput{
					WorkerID:    p.WorkerID,
					Amount:      p.Amount,
					PerformedBy: p.UserID,
					Reason:      p.Reason,
				})
			})},
		"debt.get": {message: "Debt retrieved", handle: bind(d,
			func(ctx context.Context, p *debtIDParams) (any, error) {
				return s.Allocator.Get(ctx, p.DebtID)
			})},
		"debt.history": {message: "Debt history retrieved", handle: bind(d,
			func(ctx context.Context, p *debtIDParams) (any, error) {
				return s.Recorder.DebtHistory(ctx, p.DebtID)
			})},

		// ===================== Workers =====================
		"worker.balance": {message: "Worker balance retrieved", handle: bind(d,
			func(ctx context.Context, p *workerIDParams) (any, error) {
				w, err := s.Aggregator.Balance(ctx, p.WorkerID)
				if err != nil {
					return nil, err
				}
				return apppayroll.ToWorkerBalanceResponse(w), nil
			})},
		"worker.balanceHistory": {message: "Worker balance history retrieved", handle: bind(d,
			func(ctx context.Context, p *workerIDParams) (any, error) {
				return s.Recorder.WorkerBalanceHistory(ctx, p.WorkerID)
			})},
		"worker.reconcile": {mutating: true, message: "Worker balance reconciled", handle: bind(d,
			func(ctx context.Context, p *reconcileParams) (any, error) {
				return s.Aggregator.Reconcile(ctx, apppayroll.ReconcileInput{
					WorkerID:    p.WorkerID,
					Apply:       p.Apply,
					PerformedBy: p.UserID,
					Reason:      p.Reason,
				})
			})},
	}
}
