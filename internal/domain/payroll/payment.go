package payroll

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle position of a worker payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // Created, deductions may still change
	PaymentStatusProcessing PaymentStatus = "processing" // Held for settlement
	PaymentStatusCompleted  PaymentStatus = "completed"  // Settled, worker aggregates updated
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// paymentTransitions lists every permitted non-identity transition.
// completed has no outgoing edge: a settled payment cannot be cancelled.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusCancelled},
	PaymentStatusCompleted:  {},
	PaymentStatusCancelled:  {},
}

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed.
// The identity transition is always allowed and is a no-op.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanApplyDeduction returns true if debt deductions may be applied in this status
func (s PaymentStatus) CanApplyDeduction() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// IsDeletable returns true if the payment may be hard deleted in this status
func (s PaymentStatus) IsDeletable() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// PaymentMethod is how net pay is handed to the worker
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodCheck        PaymentMethod = "check"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodGCash, PaymentMethodCheck:
		return true
	}
	return false
}

// DeductionBreakdown is the denormalized summary of a payment's deductions, stored as JSON
type DeductionBreakdown struct {
	ManualDeduction decimal.Decimal `json:"manual_deduction"`
	DebtDeductions  decimal.Decimal `json:"debt_deductions"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
}

// Value implements driver.Valuer interface for GORM to store as JSON
func (b DeductionBreakdown) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSON
func (b *DeductionBreakdown) Scan(value any) error {
	if value == nil {
		*b = DeductionBreakdown{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan DeductionBreakdown: unsupported type")
	}

	if len(bytes) == 0 {
		*b = DeductionBreakdown{}
		return nil
	}
	return json.Unmarshal(bytes, b)
}

// Payment is one worker's compensation for a session, optionally tied to a pitak
type Payment struct {
	shared.BaseAggregateRoot
	WorkerID            uuid.UUID          `json:"worker_id"`
	PitakID             *uuid.UUID         `json:"pitak_id,omitempty"`
	SessionID           uuid.UUID          `json:"session_id"`
	GrossPay            decimal.Decimal    `json:"gross_pay"`
	ManualDeduction     decimal.Decimal    `json:"manual_deduction"`
	OtherDeductions     decimal.Decimal    `json:"other_deductions"`
	TotalDebtDeduction  decimal.Decimal    `json:"total_debt_deduction"`
	PooledDebtDeduction decimal.Decimal    `json:"pooled_debt_deduction"` // part of TotalDebtDeduction not yet allocated to a debt
	NetPay              decimal.Decimal    `json:"net_pay"`
	BalanceCredit       decimal.Decimal    `json:"balance_credit"` // reduction of the worker's balance applied at completion
	Status              PaymentStatus      `json:"status"`
	DeductionBreakdown  DeductionBreakdown `json:"deduction_breakdown"`
	PaymentDate         *time.Time         `json:"payment_date,omitempty"`
	PaymentMethod       PaymentMethod      `json:"payment_method,omitempty"`
	ReferenceNumber     string             `json:"reference_number,omitempty"`
	IdempotencyKey      *string            `json:"idempotency_key,omitempty"`
	Notes               string             `json:"notes,omitempty"`
	CancelReason        string             `json:"cancel_reason,omitempty"`
}

// NewPayment creates a pending payment with no deductions
func NewPayment(workerID, sessionID uuid.UUID, grossPay decimal.Decimal, pitakID *uuid.UUID, idempotencyKey string) (*Payment, error) {
	if workerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_WORKER", "Worker ID cannot be empty")
	}
	if sessionID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_SESSION", "Session ID cannot be empty")
	}
	if !grossPay.IsPositive() {
		return nil, shared.NewValidationError("INVALID_GROSS_PAY", "Gross pay must be positive")
	}
	if err := shared.CheckMoneyScale("Gross pay", grossPay); err != nil {
		return nil, err
	}
	if pitakID != nil && *pitakID == uuid.Nil {
		pitakID = nil
	}

	p := &Payment{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		WorkerID:            workerID,
		PitakID:             pitakID,
		SessionID:           sessionID,
		GrossPay:            grossPay,
		ManualDeduction:     decimal.Zero,
		OtherDeductions:     decimal.Zero,
		TotalDebtDeduction:  decimal.Zero,
		PooledDebtDeduction: decimal.Zero,
		BalanceCredit:       decimal.Zero,
		Status:              PaymentStatusPending,
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		p.IdempotencyKey = &key
	}
	p.recompute()

	p.AddDomainEvent(NewPaymentCreatedEvent(p))

	return p, nil
}

// TotalDeductions returns debt + manual + other deductions
func (p *Payment) TotalDeductions() decimal.Decimal {
	return p.TotalDebtDeduction.Add(p.ManualDeduction).Add(p.OtherDeductions)
}

// AllocatedDebtDeduction returns the part of the debt deduction already applied to specific debts
func (p *Payment) AllocatedDebtDeduction() decimal.Decimal {
	return p.TotalDebtDeduction.Sub(p.PooledDebtDeduction)
}

// recompute restores netPay and the breakdown from the deduction fields
func (p *Payment) recompute() {
	total := p.TotalDeductions()
	p.NetPay = p.GrossPay.Sub(total)
	p.DeductionBreakdown = DeductionBreakdown{
		ManualDeduction: p.ManualDeduction,
		DebtDeductions:  p.TotalDebtDeduction,
		OtherDeductions: p.OtherDeductions,
		TotalDeductions: total,
	}
}

// CheckInvariants verifies the net pay equation and non-negativity
func (p *Payment) CheckInvariants() error {
	if !p.NetPay.Equal(p.GrossPay.Sub(p.TotalDeductions())) {
		return fmt.Errorf("payment %s: net pay %s does not match gross %s minus deductions %s",
			p.ID, p.NetPay, p.GrossPay, p.TotalDeductions())
	}
	if p.NetPay.IsNegative() {
		return fmt.Errorf("payment %s: negative net pay %s", p.ID, p.NetPay)
	}
	if p.PooledDebtDeduction.IsNegative() || p.PooledDebtDeduction.GreaterThan(p.TotalDebtDeduction) {
		return fmt.Errorf("payment %s: pooled deduction %s outside [0, %s]", p.ID, p.PooledDebtDeduction, p.TotalDebtDeduction)
	}
	if p.BalanceCredit.IsNegative() || p.BalanceCredit.GreaterThan(p.NetPay) {
		return fmt.Errorf("payment %s: balance credit %s outside [0, %s]", p.ID, p.BalanceCredit, p.NetPay)
	}
	return nil
}

// transitionTo moves the payment to next or fails with a state error
func (p *Payment) transitionTo(next PaymentStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return shared.NewStateError("INVALID_TRANSITION", "Cannot move payment from %s to %s", p.Status, next)
	}
	p.Status = next
	return nil
}

// ApplyDebtDeduction withholds amount from net pay for debt repayment.
// When pooled is true the amount is allocated across debts at settlement.
func (p *Payment) ApplyDebtDeduction(amount decimal.Decimal, pooled bool) error {
	if !p.Status.CanApplyDeduction() {
		return shared.NewStateError("INVALID_STATE", "Cannot apply debt deduction to payment in %s status", p.Status)
	}
	if !amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Deduction amount must be positive")
	}
	if err := shared.CheckMoneyScale("Deduction amount", amount); err != nil {
		return err
	}
	if amount.GreaterThan(p.NetPay) {
		return shared.NewInsufficientFundsError("EXCEEDS_NET_PAY",
			"Deduction %s exceeds net pay %s", amount.StringFixed(2), p.NetPay.StringFixed(2))
	}

	p.TotalDebtDeduction = p.TotalDebtDeduction.Add(amount)
	if pooled {
		p.PooledDebtDeduction = p.PooledDebtDeduction.Add(amount)
	}
	p.recompute()
	p.Touch()

	p.AddDomainEvent(NewDebtDeductionAppliedEvent(p, amount, pooled))
	return nil
}

// SettlePool records that allocated of the pooled deduction reached specific debts.
// The unallocated rest is returned to net pay and reported as released.
func (p *Payment) SettlePool(allocated decimal.Decimal) (released decimal.Decimal, err error) {
	if allocated.IsNegative() || allocated.GreaterThan(p.PooledDebtDeduction) {
		return decimal.Zero, shared.NewValidationError("INVALID_ALLOCATION",
			"Allocated amount %s outside pooled deduction %s", allocated.StringFixed(2), p.PooledDebtDeduction.StringFixed(2))
	}
	released = p.PooledDebtDeduction.Sub(allocated)
	p.TotalDebtDeduction = p.TotalDebtDeduction.Sub(released)
	p.PooledDebtDeduction = decimal.Zero
	p.recompute()
	p.Touch()
	return released, nil
}

// UpdateDeductions replaces the manual and other deductions. Nil leaves a value unchanged.
func (p *Payment) UpdateDeductions(manual, other *decimal.Decimal) error {
	if p.Status.IsTerminal() {
		return shared.NewStateError("INVALID_STATE", "Cannot update deductions of payment in %s status", p.Status)
	}
	if p.TotalDebtDeduction.IsPositive() {
		return shared.NewStateError("HAS_DEBT_DEDUCTIONS", "Payment has debt deductions; reverse them before editing deductions")
	}

	newManual, newOther := p.ManualDeduction, p.OtherDeductions
	if manual != nil {
		newManual = *manual
	}
	if other != nil {
		newOther = *other
	}
	if newManual.IsNegative() || newOther.IsNegative() {
		return shared.NewValidationError("INVALID_DEDUCTION", "Deductions cannot be negative")
	}
	if err := shared.CheckMoneyScale("Manual deduction", newManual); err != nil {
		return err
	}
	if err := shared.CheckMoneyScale("Other deductions", newOther); err != nil {
		return err
	}
	if newManual.Add(newOther).GreaterThan(p.GrossPay) {
		return shared.NewValidationError("DEDUCTIONS_EXCEED_GROSS",
			"Total deductions %s exceed gross pay %s", newManual.Add(newOther).StringFixed(2), p.GrossPay.StringFixed(2))
	}

	p.ManualDeduction = newManual
	p.OtherDeductions = newOther
	p.recompute()
	p.Touch()
	return nil
}

// MarkProcessing holds a pending payment for settlement
func (p *Payment) MarkProcessing() error {
	if p.Status == PaymentStatusProcessing {
		return nil
	}
	if p.Status != PaymentStatusPending {
		return shared.NewStateError("INVALID_STATE", "Only pending payments can be held for processing, current status is %s", p.Status)
	}
	if err := p.transitionTo(PaymentStatusProcessing); err != nil {
		return err
	}
	p.Touch()
	return nil
}

// ValidateSettlement checks the settlement inputs and the debt deduction bound
func (p *Payment) ValidateSettlement(paymentDate time.Time, method PaymentMethod) error {
	if paymentDate.IsZero() {
		return shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date is required")
	}
	if !method.IsValid() {
		return shared.NewValidationError("INVALID_PAYMENT_METHOD", "Unknown payment method %q", method)
	}
	available := p.GrossPay.Sub(p.ManualDeduction).Sub(p.OtherDeductions)
	if p.TotalDebtDeduction.GreaterThan(available) {
		return shared.NewValidationError("DEBT_DEDUCTION_EXCEEDS_NET_PAY",
			"Debt deduction %s exceeds available net pay %s", p.TotalDebtDeduction.StringFixed(2), available.StringFixed(2))
	}
	return nil
}

// Complete settles a processing payment
func (p *Payment) Complete(paymentDate time.Time, method PaymentMethod, referenceNumber string) error {
	if p.Status != PaymentStatusProcessing {
		return shared.NewStateError("INVALID_STATE", "Cannot complete payment in %s status", p.Status)
	}
	if err := p.ValidateSettlement(paymentDate, method); err != nil {
		return err
	}
	if p.PooledDebtDeduction.IsPositive() {
		return shared.NewStateError("UNSETTLED_POOL", "Pooled debt deduction must be allocated before completion")
	}
	if err := p.transitionTo(PaymentStatusCompleted); err != nil {
		return err
	}

	date := paymentDate
	p.PaymentDate = &date
	p.PaymentMethod = method
	p.ReferenceNumber = strings.TrimSpace(referenceNumber)
	p.Touch()

	p.AddDomainEvent(NewPaymentCompletedEvent(p))
	return nil
}

// Cancel cancels the payment and releases any pooled deduction back into net pay.
// Deductions already applied to specific debts must be reversed by the caller first.
func (p *Payment) Cancel(reason string) (released decimal.Decimal, err error) {
	if strings.TrimSpace(reason) == "" {
		return decimal.Zero, shared.NewValidationError("INVALID_REASON", "Cancel reason is required")
	}
	if p.Status.IsTerminal() {
		return decimal.Zero, shared.NewStateError("INVALID_STATE", "Cannot cancel payment in %s status", p.Status)
	}
	if p.AllocatedDebtDeduction().IsPositive() {
		return decimal.Zero, shared.NewStateError("HAS_DEBT_DEDUCTIONS", "Payment has deductions applied to specific debts; reverse them first")
	}
	if err := p.transitionTo(PaymentStatusCancelled); err != nil {
		return decimal.Zero, err
	}

	released = p.PooledDebtDeduction
	p.TotalDebtDeduction = p.TotalDebtDeduction.Sub(released)
	p.PooledDebtDeduction = decimal.Zero
	p.recompute()
	p.CancelReason = reason
	p.Touch()

	p.AddDomainEvent(NewPaymentCancelledEvent(p, reason))
	return released, nil
}

// RecordBalanceCredit stores how far completing the payment lowered the
// worker's current balance, so a later reassignment can reverse exactly that
func (p *Payment) RecordBalanceCredit(applied decimal.Decimal) error {
	if p.Status != PaymentStatusCompleted {
		return shared.NewStateError("INVALID_STATE", "Balance credit applies to completed payments, current status is %s", p.Status)
	}
	if applied.IsNegative() || applied.GreaterThan(p.NetPay) {
		return shared.NewValidationError("INVALID_BALANCE_CREDIT",
			"Balance credit %s outside [0, %s]", applied.StringFixed(2), p.NetPay.StringFixed(2))
	}
	p.BalanceCredit = applied
	p.Touch()
	return nil
}

// CanDelete returns nil if the payment may be hard deleted
func (p *Payment) CanDelete() error {
	if !p.Status.IsDeletable() {
		return shared.NewStateError("INVALID_STATE", "Cannot delete payment in %s status", p.Status)
	}
	if p.AllocatedDebtDeduction().IsPositive() {
		return shared.NewStateError("HAS_DEBT_DEDUCTIONS", "Payment has deductions applied to specific debts; reverse them before deleting")
	}
	return nil
}

// ReassignWorker moves the payment to another worker
func (p *Payment) ReassignWorker(workerID uuid.UUID) error {
	if workerID == uuid.Nil {
		return shared.NewValidationError("INVALID_WORKER", "Worker ID cannot be empty")
	}
	if p.Status == PaymentStatusCancelled {
		return shared.NewStateError("INVALID_STATE", "Cannot reassign a cancelled payment")
	}
	if p.TotalDebtDeduction.IsPositive() {
		return shared.NewStateError("HAS_DEBT_DEDUCTIONS", "Payment has debt deductions against the current worker; reverse them first")
	}
	p.WorkerID = workerID
	p.Touch()
	return nil
}

// ReassignPitak moves the payment to another pitak, or detaches it when pitakID is nil
func (p *Payment) ReassignPitak(pitakID *uuid.UUID) error {
	if p.Status == PaymentStatusCancelled {
		return shared.NewStateError("INVALID_STATE", "Cannot reassign a cancelled payment")
	}
	if pitakID != nil && *pitakID == uuid.Nil {
		pitakID = nil
	}
	p.PitakID = pitakID
	p.Touch()
	return nil
}

// SamePitak reports whether pitakID refers to the payment's current pitak
func (p *Payment) SamePitak(pitakID *uuid.UUID) bool {
	if pitakID != nil && *pitakID == uuid.Nil {
		pitakID = nil
	}
	if p.PitakID == nil || pitakID == nil {
		return p.PitakID == nil && pitakID == nil
	}
	return *p.PitakID == *pitakID
}

// AppendNote adds a timestamped line to the notes log
func (p *Payment) AppendNote(note string, at time.Time) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return shared.NewValidationError("INVALID_NOTE", "Note cannot be empty")
	}
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
	if p.Notes == "" {
		p.Notes = line
	} else {
		p.Notes = p.Notes + "\n" + line
	}
	p.Touch()
	return nil
}
