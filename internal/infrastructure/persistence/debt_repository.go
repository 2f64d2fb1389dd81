package persistence

import (
	"context"
	"errors"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDebtRepository implements DebtRepository using GORM
type GormDebtRepository struct {
	db *gorm.DB
}

// NewGormDebtRepository creates a new GormDebtRepository
func NewGormDebtRepository(db *gorm.DB) *GormDebtRepository {
	return &GormDebtRepository{db: db}
}

func (r *GormDebtRepository) first(query *gorm.DB) (*payroll.Debt, error) {
	var model models.DebtModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a debt by ID
func (r *GormDebtRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.Debt, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a debt and locks its row
func (r *GormDebtRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Debt, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// FindOpenByWorkerForUpdate locks the worker's open debts in id order
func (r *GormDebtRepository) FindOpenByWorkerForUpdate(ctx context.Context, workerID uuid.UUID) ([]*payroll.Debt, error) {
	var debtModels []models.DebtModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("worker_id = ? AND status IN ?", workerID, payroll.OpenDebtStatuses()).
		Order("id ASC").
		Find(&debtModels).Error; err != nil {
		return nil, err
	}
	debts := make([]*payroll.Debt, len(debtModels))
	for i := range debtModels {
		debts[i] = debtModels[i].ToDomain()
	}
	return debts, nil
}

// FindByWorker lists all debts of a worker, oldest first
func (r *GormDebtRepository) FindByWorker(ctx context.Context, workerID uuid.UUID) ([]payroll.Debt, error) {
	var debtModels []models.DebtModel
	if err := r.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("created_at ASC").
		Find(&debtModels).Error; err != nil {
		return nil, err
	}
	debts := make([]payroll.Debt, len(debtModels))
	for i := range debtModels {
		debts[i] = *debtModels[i].ToDomain()
	}
	return debts, nil
}

// SumOpenBalanceByWorker sums the balances of the worker's open debts. The
// sum is taken in decimal arithmetic so SQLite's floating point SUM is avoided.
func (r *GormDebtRepository) SumOpenBalanceByWorker(ctx context.Context, workerID uuid.UUID) (decimal.Decimal, error) {
	var balances []decimal.Decimal
	if err := r.db.WithContext(ctx).
		Model(&models.DebtModel{}).
		Where("worker_id = ? AND status IN ?", workerID, payroll.OpenDebtStatuses()).
		Pluck("balance", &balances).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}
	return total, nil
}

// Create inserts a new debt
func (r *GormDebtRepository) Create(ctx context.Context, debt *payroll.Debt) error {
	return r.db.WithContext(ctx).Create(models.DebtModelFromDomain(debt)).Error
}

// SaveWithLock updates a debt if the stored version still matches, then bumps the version
func (r *GormDebtRepository) SaveWithLock(ctx context.Context, debt *payroll.Debt) error {
	model := models.DebtModelFromDomain(debt)
	model.Version = debt.Version + 1

	result := r.db.WithContext(ctx).
		Model(&models.DebtModel{}).
		Where("id = ? AND version = ?", debt.ID, debt.Version).
		Select("*").Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	debt.IncrementVersion()
	return nil
}

var _ payroll.DebtRepository = (*GormDebtRepository)(nil)
