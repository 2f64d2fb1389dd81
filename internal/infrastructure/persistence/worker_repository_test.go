package persistence

import (
	"context"
	"testing"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormWorkerRepository(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormWorkerRepository(db)
	ctx := context.Background()
	worker := createTestWorker(t, db)

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ExistsByID(ctx, worker.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("saves counters only", func(t *testing.T) {
		loaded, err := repo.FindByIDForUpdate(ctx, worker.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.RaiseBalance(dec("300")))
		_, err = loaded.Credit(dec("120"))
		require.NoError(t, err)
		loaded.Name = "renamed locally"
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		stored, err := repo.FindByID(ctx, worker.ID)
		require.NoError(t, err)
		assert.True(t, stored.TotalPaid.Equal(dec("120")))
		assert.True(t, stored.CurrentBalance.Equal(dec("180")))
		assert.Equal(t, "Maria Santos", stored.Name)
		assert.Equal(t, payroll.WorkerStatusActive, stored.Status)
		assert.Equal(t, loaded.Version, stored.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, worker.ID)
		require.NoError(t, err)
		fresh, err := repo.FindByID(ctx, worker.ID)
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, fresh))

		assert.ErrorIs(t, repo.SaveWithLock(ctx, stale), shared.ErrConcurrencyConflict)
	})

	t.Run("unknown worker", func(t *testing.T) {
		_, err := repo.FindByIDForUpdate(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
