package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormPaymentRepository_CreateAndFind(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)

	pitak := uuid.New()
	payment, err := payroll.NewPayment(worker.ID, uuid.New(), dec("1250.50"), &pitak, "key-001")
	require.NoError(t, err)
	require.NoError(t, payment.UpdateDeductions(ptr(dec("50")), nil))
	require.NoError(t, repo.Create(ctx, payment))

	t.Run("by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)
		assert.Equal(t, worker.ID, found.WorkerID)
		assert.True(t, found.GrossPay.Equal(dec("1250.50")))
		assert.True(t, found.ManualDeduction.Equal(dec("50")))
		assert.True(t, found.NetPay.Equal(dec("1200.50")))
		assert.Equal(t, payroll.PaymentStatusPending, found.Status)
		assert.Empty(t, found.ReferenceNumber)
		assert.Equal(t, payment.Version, found.Version)
	})

	t.Run("for update", func(t *testing.T) {
		found, err := repo.FindByIDForUpdate(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)
	})

	t.Run("by idempotency key", func(t *testing.T) {
		found, err := repo.FindByIdempotencyKey(ctx, "key-001")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)

		_, err = repo.FindByIdempotencyKey(ctx, "key-missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("by assignment", func(t *testing.T) {
		found, err := repo.FindByAssignment(ctx, pitak, worker.ID, payment.SessionID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)

		_, err = repo.FindByAssignment(ctx, uuid.New(), worker.ID, payment.SessionID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.New())
		assert.Nil(t, found)
		assert.Equal(t, shared.ErrNotFound, err)
	})
}

func TestGormPaymentRepository_Create_UniqueViolations(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)

	pitak := uuid.New()
	session := uuid.New()
	first, err := payroll.NewPayment(worker.ID, session, dec("100"), &pitak, "dup-key")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("same assignment", func(t *testing.T) {
		second, err := payroll.NewPayment(worker.ID, session, dec("100"), &pitak, "")
		require.NoError(t, err)

		err = repo.Create(ctx, second)
		de, ok := shared.AsDomainError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, apppayroll.CodeDuplicateAssign, de.Code)
		assert.Equal(t, shared.KindDuplicate, de.Kind)
	})

	t.Run("same idempotency key", func(t *testing.T) {
		second, err := payroll.NewPayment(worker.ID, uuid.New(), dec("100"), nil, "dup-key")
		require.NoError(t, err)

		err = repo.Create(ctx, second)
		de, ok := shared.AsDomainError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, apppayroll.CodeDuplicateKey, de.Code)
	})

	t.Run("payments without pitak share a session", func(t *testing.T) {
		for range 2 {
			p, err := payroll.NewPayment(worker.ID, session, dec("10"), nil, "")
			require.NoError(t, err)
			require.NoError(t, repo.Create(ctx, p))
		}
	})
}

func TestGormPaymentRepository_SaveWithLock(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)

	payment := newTestPayment(t, worker.ID, "500")
	require.NoError(t, repo.Create(ctx, payment))

	t.Run("persists changes and bumps version", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.ApplyDebtDeduction(dec("100"), true))
		require.NoError(t, loaded.MarkProcessing())
		startVersion := loaded.Version

		require.NoError(t, repo.SaveWithLock(ctx, loaded))
		assert.Equal(t, startVersion+1, loaded.Version)

		stored, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, payroll.PaymentStatusProcessing, stored.Status)
		assert.True(t, stored.PooledDebtDeduction.Equal(dec("100")))
		assert.True(t, stored.NetPay.Equal(dec("400")))
		assert.Equal(t, startVersion+1, stored.Version)
	})

	t.Run("zero values overwrite stored values", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		_, err = loaded.Cancel("worker absent")
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		stored, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, payroll.PaymentStatusCancelled, stored.Status)
		assert.True(t, stored.PooledDebtDeduction.IsZero())
		assert.True(t, stored.NetPay.Equal(dec("500")))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		fresh, err := repo.FindByID(ctx, payment.ID)
		require.NoError(t, err)

		require.NoError(t, fresh.AppendNote("first", time.Now()))
		require.NoError(t, repo.SaveWithLock(ctx, fresh))

		require.NoError(t, stale.AppendNote("second", time.Now()))
		err = repo.SaveWithLock(ctx, stale)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestGormPaymentRepository_FindAllAndCount(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)
	other := createTestWorker(t, db)

	for _, gross := range []string{"300", "100", "200"} {
		require.NoError(t, repo.Create(ctx, newTestPayment(t, worker.ID, gross)))
	}
	require.NoError(t, repo.Create(ctx, newTestPayment(t, other.ID, "999")))

	filter := payroll.PaymentFilter{
		Filter:   shared.Filter{Page: 1, PageSize: 2, OrderBy: "gross_pay", OrderDir: "asc"},
		WorkerID: &worker.ID,
	}
	payments, err := repo.FindAll(ctx, filter)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].GrossPay.Equal(dec("100")))
	assert.True(t, payments[1].GrossPay.Equal(dec("200")))

	filter.Page = 2
	payments, err = repo.FindAll(ctx, filter)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].GrossPay.Equal(dec("300")))

	count, err := repo.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	status := payroll.PaymentStatusCompleted
	count, err = repo.Count(ctx, payroll.PaymentFilter{Status: &status})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormPaymentRepository_Delete(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)

	payment := newTestPayment(t, worker.ID, "100")
	require.NoError(t, repo.Create(ctx, payment))

	require.NoError(t, repo.Delete(ctx, payment.ID))
	_, err := repo.FindByID(ctx, payment.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, payment.ID), shared.ErrNotFound)
}

func TestGormPaymentRepository_PostgresSQL(t *testing.T) {
	t.Run("find for update locks the row", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentRepository(gormDB)

		paymentID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "worker_id", "session_id", "gross_pay", "net_pay", "status", "version"}).
			AddRow(paymentID, uuid.New(), uuid.New(), "100", "100", "pending", 3)
		mock.ExpectQuery(`SELECT \* FROM "payments" WHERE id = \$1 ORDER BY .* LIMIT .* FOR UPDATE`).
			WithArgs(paymentID, 1).
			WillReturnRows(rows)

		payment, err := repo.FindByIDForUpdate(context.Background(), paymentID)
		require.NoError(t, err)
		assert.Equal(t, paymentID, payment.ID)
		assert.Equal(t, 3, payment.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found maps to ErrNotFound", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentRepository(gormDB)

		mock.ExpectQuery(`SELECT \* FROM "payments" WHERE idempotency_key = \$1`).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByIdempotencyKey(context.Background(), "missing")
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version mismatch is a concurrency conflict", func(t *testing.T) {
		gormDB, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormPaymentRepository(gormDB)

		payment := newTestPayment(t, uuid.New(), "100")
		mock.ExpectExec(`UPDATE "payments" SET .* WHERE .*version`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), payment)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, payment.Version, "version untouched on conflict")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMapPaymentWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"postgres assignment index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_payment_assignment"}, apppayroll.CodeDuplicateAssign},
		{"postgres reference index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_payment_reference"}, apppayroll.CodeDuplicateRef},
		{"postgres idempotency index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_payments_idempotency_key"}, apppayroll.CodeDuplicateKey},
		{"postgres unknown index", &pgconn.PgError{Code: "23505", ConstraintName: "payments_pkey"}, shared.ErrAlreadyExists.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de, ok := shared.AsDomainError(mapPaymentWriteError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, de.Code)
		})
	}

	t.Run("passes through other errors", func(t *testing.T) {
		assert.NoError(t, mapPaymentWriteError(nil))
		fk := &pgconn.PgError{Code: "23503"}
		assert.Equal(t, error(fk), mapPaymentWriteError(fk))
	})
}

func ptr[T any](v T) *T {
	return &v
}
