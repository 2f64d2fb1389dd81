package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) first(query *gorm.DB) (*payroll.Payment, error) {
	var model models.PaymentModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a payment and locks its row
func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// FindByIdempotencyKey finds the payment created with key
func (r *GormPaymentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*payroll.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("idempotency_key = ?", key))
}

// FindByAssignment finds the payment for a (pitak, worker, session) triple
func (r *GormPaymentRepository) FindByAssignment(ctx context.Context, pitakID, workerID, sessionID uuid.UUID) (*payroll.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("pitak_id = ? AND worker_id = ? AND session_id = ?", pitakID, workerID, sessionID))
}

// FindByReference finds a payment in the session with the reference number
func (r *GormPaymentRepository) FindByReference(ctx context.Context, sessionID uuid.UUID, referenceNumber string) (*payroll.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("session_id = ? AND reference_number = ?", sessionID, referenceNumber))
}

// FindAll lists payments matching the filter
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter payroll.PaymentFilter) ([]payroll.Payment, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter)

	orderBy := ValidateSortField(filter.OrderBy, PaymentSortFields, "created_at")
	query = query.Order(fmt.Sprintf("%s %s", orderBy, ValidateSortOrder(filter.OrderDir)))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var paymentModels []models.PaymentModel
	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]payroll.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}

// Count counts payments matching the filter
func (r *GormPaymentRepository) Count(ctx context.Context, filter payroll.PaymentFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter).
		Count(&count).Error
	return count, err
}

func (r *GormPaymentRepository) applyFilter(query *gorm.DB, filter payroll.PaymentFilter) *gorm.DB {
	if filter.WorkerID != nil {
		query = query.Where("worker_id = ?", *filter.WorkerID)
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}
	return query
}

// Create inserts a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *payroll.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return mapPaymentWriteError(r.db.WithContext(ctx).Create(model).Error)
}

// SaveWithLock updates every column if the stored version still equals the
// loaded one, then bumps the version on the aggregate
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *payroll.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	model.Version = payment.Version + 1

	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", payment.ID, payment.Version).
		Select("*").Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return mapPaymentWriteError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	payment.IncrementVersion()
	return nil
}

// Delete hard deletes a payment. Its history rows are kept.
func (r *GormPaymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PaymentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ payroll.PaymentRepository = (*GormPaymentRepository)(nil)
