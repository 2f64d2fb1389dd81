package payroll

import (
	"sort"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DebtAllocation is the amount applied to one debt
type DebtAllocation struct {
	DebtID uuid.UUID       `json:"debt_id"`
	Amount decimal.Decimal `json:"amount"`
}

// AllocationPlan is the outcome of distributing an amount across debts
type AllocationPlan struct {
	Allocations        []DebtAllocation // In application order
	TotalAllocated     decimal.Decimal
	Remaining          decimal.Decimal // Amount no open debt could absorb
	DebtsFullyPaid     []uuid.UUID
	DebtsPartiallyPaid []uuid.UUID
}

// FullyAllocated returns true if nothing was left over
func (p *AllocationPlan) FullyAllocated() bool {
	return p.Remaining.IsZero()
}

// SortFIFO orders debts by due date ascending with nil due dates last,
// then by creation time, then by id so the order is total
func SortFIFO(debts []*Debt) {
	sort.SliceStable(debts, func(i, j int) bool {
		a, b := debts[i], debts[j]
		if a.DueDate != nil && b.DueDate != nil {
			if !a.DueDate.Equal(*b.DueDate) {
				return a.DueDate.Before(*b.DueDate)
			}
		} else if a.DueDate != nil {
			return true
		} else if b.DueDate != nil {
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// PlanFIFO computes how amount is consumed across open debts, earliest due first.
// Closed debts are skipped. The input slice is not modified.
func PlanFIFO(amount decimal.Decimal, debts []*Debt) (*AllocationPlan, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if err := shared.CheckMoneyScale("Allocation amount", amount); err != nil {
		return nil, err
	}

	ordered := make([]*Debt, 0, len(debts))
	for _, d := range debts {
		if d.Status.IsOpen() && d.Balance.IsPositive() {
			ordered = append(ordered, d)
		}
	}
	SortFIFO(ordered)

	plan := &AllocationPlan{
		Allocations:        make([]DebtAllocation, 0, len(ordered)),
		TotalAllocated:     decimal.Zero,
		DebtsFullyPaid:     make([]uuid.UUID, 0),
		DebtsPartiallyPaid: make([]uuid.UUID, 0),
	}
	remaining := amount
	for _, d := range ordered {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, d.Balance)
		plan.Allocations = append(plan.Allocations, DebtAllocation{DebtID: d.ID, Amount: take})
		plan.TotalAllocated = plan.TotalAllocated.Add(take)
		remaining = remaining.Sub(take)

		if take.Equal(d.Balance) {
			plan.DebtsFullyPaid = append(plan.DebtsFullyPaid, d.ID)
		} else {
			plan.DebtsPartiallyPaid = append(plan.DebtsPartiallyPaid, d.ID)
		}
	}
	plan.Remaining = remaining
	return plan, nil
}

// OpenBalanceTotal sums the balances of the open debts
func OpenBalanceTotal(debts []*Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		if d.Status.IsOpen() {
			total = total.Add(d.Balance)
		}
	}
	return total
}
