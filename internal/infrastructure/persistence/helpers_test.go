package persistence

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newTestDatabase opens a migrated in-memory SQLite database
func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewDatabase(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return db.DB
}

// newMockDB opens a gorm handle on the postgres dialector over sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestWorker(t *testing.T, db *gorm.DB) *payroll.Worker {
	t.Helper()
	worker, err := payroll.NewWorker("Maria Santos")
	require.NoError(t, err)
	require.NoError(t, NewGormWorkerRepository(db).Create(t.Context(), worker))
	return worker
}

func newTestPayment(t *testing.T, workerID uuid.UUID, gross string) *payroll.Payment {
	t.Helper()
	payment, err := payroll.NewPayment(workerID, uuid.New(), dec(gross), nil, "")
	require.NoError(t, err)
	return payment
}
