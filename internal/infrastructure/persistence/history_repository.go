package persistence

import (
	"context"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHistoryRepository implements HistoryRepository using GORM. It only
// inserts and reads.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new GormHistoryRepository
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

// AppendPaymentHistory inserts payment history rows
func (r *GormHistoryRepository) AppendPaymentHistory(ctx context.Context, rows ...*payroll.PaymentHistory) error {
	if len(rows) == 0 {
		return nil
	}
	historyModels := make([]*models.PaymentHistoryModel, len(rows))
	for i, row := range rows {
		historyModels[i] = models.PaymentHistoryModelFromDomain(row)
	}
	return r.db.WithContext(ctx).Create(historyModels).Error
}

// AppendDebtHistory inserts debt history rows
func (r *GormHistoryRepository) AppendDebtHistory(ctx context.Context, rows ...*payroll.DebtHistory) error {
	if len(rows) == 0 {
		return nil
	}
	historyModels := make([]*models.DebtHistoryModel, len(rows))
	for i, row := range rows {
		historyModels[i] = models.DebtHistoryModelFromDomain(row)
	}
	return r.db.WithContext(ctx).Create(historyModels).Error
}

// FindPaymentHistory lists a payment's history, oldest first
func (r *GormHistoryRepository) FindPaymentHistory(ctx context.Context, paymentID uuid.UUID) ([]payroll.PaymentHistory, error) {
	var rows []models.PaymentHistoryModel
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("change_date ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payroll.PaymentHistory, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindDebtHistory lists a debt's history, oldest first
func (r *GormHistoryRepository) FindDebtHistory(ctx context.Context, debtID uuid.UUID) ([]payroll.DebtHistory, error) {
	return r.findDebtHistory(r.db.WithContext(ctx).Where("debt_id = ?", debtID))
}

// FindDebtHistoryByPayment lists debt history rows linked to a payment
func (r *GormHistoryRepository) FindDebtHistoryByPayment(ctx context.Context, paymentID uuid.UUID) ([]payroll.DebtHistory, error) {
	return r.findDebtHistory(r.db.WithContext(ctx).Where("payment_id = ?", paymentID))
}

func (r *GormHistoryRepository) findDebtHistory(query *gorm.DB) ([]payroll.DebtHistory, error) {
	var rows []models.DebtHistoryModel
	if err := query.Order("transaction_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payroll.DebtHistory, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountDebtHistoryByPayment counts debt history rows linked to a payment
func (r *GormHistoryRepository) CountDebtHistoryByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DebtHistoryModel{}).
		Where("payment_id = ?", paymentID).
		Count(&count).Error
	return count, err
}

// AppendWorkerBalanceHistory inserts worker balance history rows
func (r *GormHistoryRepository) AppendWorkerBalanceHistory(ctx context.Context, rows ...*payroll.WorkerBalanceHistory) error {
	if len(rows) == 0 {
		return nil
	}
	historyModels := make([]*models.WorkerBalanceHistoryModel, len(rows))
	for i, row := range rows {
		historyModels[i] = models.WorkerBalanceHistoryModelFromDomain(row)
	}
	return r.db.WithContext(ctx).Create(historyModels).Error
}

// FindWorkerBalanceHistory lists a worker's balance corrections, oldest first
func (r *GormHistoryRepository) FindWorkerBalanceHistory(ctx context.Context, workerID uuid.UUID) ([]payroll.WorkerBalanceHistory, error) {
	var rows []models.WorkerBalanceHistoryModel
	if err := r.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("change_date ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payroll.WorkerBalanceHistory, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ payroll.HistoryRepository = (*GormHistoryRepository)(nil)
