package persistence

import (
	"context"
	"errors"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWorkerRepository implements WorkerRepository using GORM
type GormWorkerRepository struct {
	db *gorm.DB
}

// NewGormWorkerRepository creates a new GormWorkerRepository
func NewGormWorkerRepository(db *gorm.DB) *GormWorkerRepository {
	return &GormWorkerRepository{db: db}
}

func (r *GormWorkerRepository) first(query *gorm.DB) (*payroll.Worker, error) {
	var model models.WorkerModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a worker by ID
func (r *GormWorkerRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.Worker, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a worker and locks its row
func (r *GormWorkerRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Worker, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// ExistsByID checks if a worker exists
func (r *GormWorkerRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WorkerModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a worker
func (r *GormWorkerRepository) Create(ctx context.Context, worker *payroll.Worker) error {
	return r.db.WithContext(ctx).Create(models.WorkerModelFromDomain(worker)).Error
}

// SaveWithLock writes the two ledger counters if the stored version still
// matches. Registry owned columns are left untouched.
func (r *GormWorkerRepository) SaveWithLock(ctx context.Context, worker *payroll.Worker) error {
	result := r.db.WithContext(ctx).
		Model(&models.WorkerModel{}).
		Where("id = ? AND version = ?", worker.ID, worker.Version).
		Updates(map[string]any{
			"total_paid":      worker.TotalPaid,
			"current_balance": worker.CurrentBalance,
			"version":         worker.Version + 1,
			"updated_at":      worker.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	worker.IncrementVersion()
	return nil
}

var _ payroll.WorkerRepository = (*GormWorkerRepository)(nil)
