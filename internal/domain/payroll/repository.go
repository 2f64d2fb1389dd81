package payroll

import (
	"context"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	WorkerID  *uuid.UUID     // Filter by worker
	SessionID *uuid.UUID     // Filter by session
	Status    *PaymentStatus // Filter by status
	FromDate  *time.Time     // Filter by creation date range start
	ToDate    *time.Time     // Filter by creation date range end
}

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIDForUpdate finds a payment and locks its row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIdempotencyKey finds the payment created with the given key
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// FindByAssignment finds the payment for a (pitak, worker, session) triple
	FindByAssignment(ctx context.Context, pitakID, workerID, sessionID uuid.UUID) (*Payment, error)

	// FindByReference finds a payment in the session with the given reference number
	FindByReference(ctx context.Context, sessionID uuid.UUID, referenceNumber string) (*Payment, error)

	// FindAll lists payments matching the filter
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	// Count counts payments matching the filter
	Count(ctx context.Context, filter PaymentFilter) (int64, error)

	// Create inserts a new payment
	Create(ctx context.Context, payment *Payment) error

	// SaveWithLock updates a payment if its stored version still matches, then bumps the version
	SaveWithLock(ctx context.Context, payment *Payment) error

	// Delete hard deletes a payment
	Delete(ctx context.Context, id uuid.UUID) error
}

// DebtRepository defines the interface for debt persistence
type DebtRepository interface {
	// FindByID finds a debt by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Debt, error)

	// FindByIDForUpdate finds a debt and locks its row
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Debt, error)

	// FindOpenByWorkerForUpdate locks and returns the worker's pending and
	// partially paid debts, ordered by id
	FindOpenByWorkerForUpdate(ctx context.Context, workerID uuid.UUID) ([]*Debt, error)

	// FindByWorker lists all debts of a worker
	FindByWorker(ctx context.Context, workerID uuid.UUID) ([]Debt, error)

	// SumOpenBalanceByWorker sums the balances of the worker's open debts
	SumOpenBalanceByWorker(ctx context.Context, workerID uuid.UUID) (decimal.Decimal, error)

	// Create inserts a new debt
	Create(ctx context.Context, debt *Debt) error

	// SaveWithLock updates a debt if its stored version still matches, then bumps the version
	SaveWithLock(ctx context.Context, debt *Debt) error
}

// WorkerRepository gives the ledger access to the worker counters
type WorkerRepository interface {
	// FindByID finds a worker by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Worker, error)

	// FindByIDForUpdate finds a worker and locks its row
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Worker, error)

	// ExistsByID checks if a worker exists
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)

	// Create inserts a worker (used by the worker registry and fixtures)
	Create(ctx context.Context, worker *Worker) error

	// SaveWithLock updates worker counters if the stored version still matches, then bumps the version
	SaveWithLock(ctx context.Context, worker *Worker) error
}

// HistoryRepository appends and reads audit rows. There is no update or delete.
type HistoryRepository interface {
	// AppendPaymentHistory inserts payment history rows
	AppendPaymentHistory(ctx context.Context, rows ...*PaymentHistory) error

	// AppendDebtHistory inserts debt history rows
	AppendDebtHistory(ctx context.Context, rows ...*DebtHistory) error

	// FindPaymentHistory lists a payment's history, oldest first
	FindPaymentHistory(ctx context.Context, paymentID uuid.UUID) ([]PaymentHistory, error)

	// FindDebtHistory lists a debt's history, oldest first
	FindDebtHistory(ctx context.Context, debtID uuid.UUID) ([]DebtHistory, error)

	// FindDebtHistoryByPayment lists debt history rows linked to a payment
	FindDebtHistoryByPayment(ctx context.Context, paymentID uuid.UUID) ([]DebtHistory, error)

	// CountDebtHistoryByPayment counts debt history rows linked to a payment
	CountDebtHistoryByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error)

	// AppendWorkerBalanceHistory inserts worker balance history rows
	AppendWorkerBalanceHistory(ctx context.Context, rows ...*WorkerBalanceHistory) error

	// FindWorkerBalanceHistory lists a worker's balance corrections, oldest first
	FindWorkerBalanceHistory(ctx context.Context, workerID uuid.UUID) ([]WorkerBalanceHistory, error)
}
