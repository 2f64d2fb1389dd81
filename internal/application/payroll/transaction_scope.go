package payroll

import (
	"context"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TransactionScope provides transactional access to the ledger repositories.
// All repository operations made inside Execute share one database transaction
// and are committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
//
// Lock order inside one transaction is Worker, then Payment, then the worker's
// Debt rows ordered by id. Every component acquires rows in that order.
type TransactionalRepositories interface {
	PaymentRepo() payroll.PaymentRepository
	DebtRepo() payroll.DebtRepository
	WorkerRepo() payroll.WorkerRepository
	HistoryRepo() payroll.HistoryRepository

	// Savepoint marks a point the transaction can be partially rolled back to
	Savepoint(name string) error
	// RollbackTo undoes everything written since the named savepoint
	RollbackTo(name string) error
}

type txContextKey struct{}

// Tx is an open unit of work: the transactional repositories plus the domain
// events collected so far, published only after the outermost commit
type Tx struct {
	TransactionalRepositories
	events     []shared.DomainEvent
	savepoints map[string]int
}

func newTx(repos TransactionalRepositories) *Tx {
	return &Tx{TransactionalRepositories: repos, savepoints: make(map[string]int)}
}

// Collect moves pending domain events from the aggregates into the unit of work
func (t *Tx) Collect(aggregates ...shared.AggregateRoot) {
	for _, agg := range aggregates {
		if agg == nil {
			continue
		}
		t.events = append(t.events, agg.GetDomainEvents()...)
		agg.ClearDomainEvents()
	}
}

// Events returns the collected events
func (t *Tx) Events() []shared.DomainEvent {
	return t.events
}

// Savepoint marks a savepoint in the transaction and the event buffer
func (t *Tx) Savepoint(name string) error {
	if err := t.TransactionalRepositories.Savepoint(name); err != nil {
		return err
	}
	t.savepoints[name] = len(t.events)
	return nil
}

// RollbackTo rolls the transaction back to the savepoint and drops the events
// collected after it
func (t *Tx) RollbackTo(name string) error {
	if err := t.TransactionalRepositories.RollbackTo(name); err != nil {
		return err
	}
	if mark, ok := t.savepoints[name]; ok && mark <= len(t.events) {
		t.events = t.events[:mark]
	}
	return nil
}

// TxFromContext returns the unit of work carried by ctx, if any
func TxFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*Tx)
	return tx, ok
}

// UnitOfWork runs ledger operations atomically. A call made while a unit of
// work is already open in the context joins it instead of opening a second
// transaction, so operations compose.
type UnitOfWork struct {
	scope     TransactionScope
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewUnitOfWork creates a UnitOfWork. publisher may be nil.
func NewUnitOfWork(scope TransactionScope, publisher shared.EventPublisher, logger *zap.Logger) *UnitOfWork {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitOfWork{scope: scope, publisher: publisher, logger: logger}
}

// Run executes fn inside the current unit of work or a new one
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	var committed *Tx
	err := u.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		tx := newTx(repos)
		if err := fn(context.WithValue(ctx, txContextKey{}, tx), tx); err != nil {
			return err
		}
		committed = tx
		return nil
	})
	if err != nil {
		return err
	}

	u.publish(ctx, committed.events)
	return nil
}

// publish delivers committed events. The transaction is already durable, so
// a failing handler is logged and not reported to the caller.
func (u *UnitOfWork) publish(ctx context.Context, events []shared.DomainEvent) {
	if u.publisher == nil || len(events) == 0 {
		return
	}
	if err := u.publisher.Publish(ctx, events...); err != nil {
		u.logger.Error("Failed to publish ledger events",
			zap.Int("event_count", len(events)),
			zap.Error(err))
	}
}
