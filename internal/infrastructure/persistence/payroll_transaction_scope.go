package persistence

import (
	"context"
	"fmt"
	"time"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/payroll"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions
type GormTransactionScope struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGormTransactionScope creates a GormTransactionScope. On PostgreSQL a
// positive lockTimeout bounds how long a transaction waits for a row lock.
func NewGormTransactionScope(db *gorm.DB, lockTimeout time.Duration) *GormTransactionScope {
	return &GormTransactionScope{db: db, lockTimeout: lockTimeout}
}

// Execute runs fn in one database transaction, committing when fn returns nil
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apppayroll.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) PaymentRepo() payroll.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) DebtRepo() payroll.DebtRepository {
	return NewGormDebtRepository(r.tx)
}

func (r *gormTransactionalRepositories) WorkerRepo() payroll.WorkerRepository {
	return NewGormWorkerRepository(r.tx)
}

func (r *gormTransactionalRepositories) HistoryRepo() payroll.HistoryRepository {
	return NewGormHistoryRepository(r.tx)
}

// Savepoint marks a savepoint in the transaction
func (r *gormTransactionalRepositories) Savepoint(name string) error {
	if err := r.tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackTo rolls the transaction back to the savepoint
func (r *gormTransactionalRepositories) RollbackTo(name string) error {
	if err := r.tx.RollbackTo(name).Error; err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
	}
	return nil
}

var (
	_ apppayroll.TransactionScope          = (*GormTransactionScope)(nil)
	_ apppayroll.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
