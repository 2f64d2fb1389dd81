package payroll

import (
	"testing"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestPayment(t *testing.T, gross string) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), uuid.New(), dec(gross), nil, "")
	require.NoError(t, err)
	return p
}

func TestPaymentStatus(t *testing.T) {
	t.Run("IsValid accepts known statuses", func(t *testing.T) {
		for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusCancelled} {
			assert.True(t, s.IsValid(), s)
		}
		assert.False(t, PaymentStatus("paid").IsValid())
	})

	t.Run("transition table", func(t *testing.T) {
		cases := []struct {
			from, to PaymentStatus
			ok       bool
		}{
			{PaymentStatusPending, PaymentStatusProcessing, true},
			{PaymentStatusPending, PaymentStatusCancelled, true},
			{PaymentStatusPending, PaymentStatusCompleted, false},
			{PaymentStatusProcessing, PaymentStatusCompleted, true},
			{PaymentStatusProcessing, PaymentStatusCancelled, true},
			{PaymentStatusProcessing, PaymentStatusPending, false},
			{PaymentStatusCompleted, PaymentStatusCancelled, false},
			{PaymentStatusCompleted, PaymentStatusPending, false},
			{PaymentStatusCancelled, PaymentStatusPending, false},
			{PaymentStatusCancelled, PaymentStatusCancelled, true},
			{PaymentStatusCompleted, PaymentStatusCompleted, true},
		}
		for _, c := range cases {
			assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
		}
	})

	t.Run("IsTerminal", func(t *testing.T) {
		assert.True(t, PaymentStatusCompleted.IsTerminal())
		assert.True(t, PaymentStatusCancelled.IsTerminal())
		assert.False(t, PaymentStatusPending.IsTerminal())
		assert.False(t, PaymentStatusProcessing.IsTerminal())
	})
}

func TestNewPayment(t *testing.T) {
	t.Run("creates pending payment with net pay equal to gross", func(t *testing.T) {
		pitak := uuid.New()
		p, err := NewPayment(uuid.New(), uuid.New(), dec("1500"), &pitak, " key-1 ")
		require.NoError(t, err)

		assert.Equal(t, PaymentStatusPending, p.Status)
		assert.True(t, p.NetPay.Equal(dec("1500")))
		assert.True(t, p.DeductionBreakdown.TotalDeductions.IsZero())
		require.NotNil(t, p.IdempotencyKey)
		assert.Equal(t, "key-1", *p.IdempotencyKey)
		assert.Equal(t, 1, p.GetVersion())
		require.Len(t, p.GetDomainEvents(), 1)
		assert.Equal(t, EventTypePaymentCreated, p.GetDomainEvents()[0].EventType())
		assert.NoError(t, p.CheckInvariants())
	})

	t.Run("rejects non-positive gross pay", func(t *testing.T) {
		for _, gross := range []string{"0", "-1"} {
			_, err := NewPayment(uuid.New(), uuid.New(), dec(gross), nil, "")
			assert.True(t, shared.IsKind(err, shared.KindValidation))
		}
	})

	t.Run("rejects missing session", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), uuid.Nil, dec("10"), nil, "")
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("nil pitak uuid is treated as no pitak", func(t *testing.T) {
		nilPitak := uuid.Nil
		p, err := NewPayment(uuid.New(), uuid.New(), dec("10"), &nilPitak, "")
		require.NoError(t, err)
		assert.Nil(t, p.PitakID)
		assert.Nil(t, p.IdempotencyKey)
	})
}

func TestPayment_ApplyDebtDeduction(t *testing.T) {
	t.Run("pooled deduction lowers net pay", func(t *testing.T) {
		p := newTestPayment(t, "1000")
		require.NoError(t, p.ApplyDebtDeduction(dec("250"), true))

		assert.True(t, p.TotalDebtDeduction.Equal(dec("250")))
		assert.True(t, p.PooledDebtDeduction.Equal(dec("250")))
		assert.True(t, p.NetPay.Equal(dec("750")))
		assert.True(t, p.DeductionBreakdown.DebtDeductions.Equal(dec("250")))
		assert.NoError(t, p.CheckInvariants())
	})

	t.Run("specific deduction is not pooled", func(t *testing.T) {
		p := newTestPayment(t, "1000")
		require.NoError(t, p.ApplyDebtDeduction(dec("100"), false))
		assert.True(t, p.PooledDebtDeduction.IsZero())
		assert.True(t, p.AllocatedDebtDeduction().Equal(dec("100")))
	})

	t.Run("amount above net pay is insufficient funds", func(t *testing.T) {
		p := newTestPayment(t, "100")
		err := p.ApplyDebtDeduction(dec("100.01"), true)
		assert.True(t, shared.IsKind(err, shared.KindInsufficientFunds))
		assert.True(t, p.NetPay.Equal(dec("100")))
	})

	t.Run("amount equal to net pay is allowed", func(t *testing.T) {
		p := newTestPayment(t, "100")
		require.NoError(t, p.ApplyDebtDeduction(dec("100"), true))
		assert.True(t, p.NetPay.IsZero())
	})

	t.Run("non-positive amount is validation error", func(t *testing.T) {
		p := newTestPayment(t, "100")
		assert.True(t, shared.IsKind(p.ApplyDebtDeduction(decimal.Zero, true), shared.KindValidation))
	})

	t.Run("cancelled payment is state error", func(t *testing.T) {
		p := newTestPayment(t, "100")
		_, err := p.Cancel("wrong session")
		require.NoError(t, err)
		assert.True(t, shared.IsKind(p.ApplyDebtDeduction(dec("10"), true), shared.KindState))
	})
}

func TestPayment_SettlePool(t *testing.T) {
	p := newTestPayment(t, "1000")
	require.NoError(t, p.ApplyDebtDeduction(dec("50"), false))
	require.NoError(t, p.ApplyDebtDeduction(dec("300"), true))

	released, err := p.SettlePool(dec("200"))
	require.NoError(t, err)
	assert.True(t, released.Equal(dec("100")))
	assert.True(t, p.PooledDebtDeduction.IsZero())
	assert.True(t, p.TotalDebtDeduction.Equal(dec("250")))
	assert.True(t, p.NetPay.Equal(dec("750")))
	assert.NoError(t, p.CheckInvariants())

	_, err = p.SettlePool(dec("1"))
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestPayment_UpdateDeductions(t *testing.T) {
	t.Run("recomputes net pay", func(t *testing.T) {
		p := newTestPayment(t, "1000")
		manual, other := dec("100"), dec("50.50")
		require.NoError(t, p.UpdateDeductions(&manual, &other))
		assert.True(t, p.NetPay.Equal(dec("849.50")))
		assert.True(t, p.DeductionBreakdown.TotalDeductions.Equal(dec("150.50")))

		newOther := dec("0")
		require.NoError(t, p.UpdateDeductions(nil, &newOther))
		assert.True(t, p.ManualDeduction.Equal(manual))
		assert.True(t, p.NetPay.Equal(dec("900")))
	})

	t.Run("total above gross is validation error", func(t *testing.T) {
		p := newTestPayment(t, "100")
		manual, other := dec("60"), dec("41")
		assert.True(t, shared.IsKind(p.UpdateDeductions(&manual, &other), shared.KindValidation))
	})

	t.Run("negative value is validation error", func(t *testing.T) {
		p := newTestPayment(t, "100")
		manual := dec("-1")
		assert.True(t, shared.IsKind(p.UpdateDeductions(&manual, nil), shared.KindValidation))
	})

	t.Run("debt deductions block the update", func(t *testing.T) {
		p := newTestPayment(t, "100")
		require.NoError(t, p.ApplyDebtDeduction(dec("10"), true))
		manual := dec("5")
		assert.True(t, shared.IsKind(p.UpdateDeductions(&manual, nil), shared.KindState))
	})

	t.Run("completed payment is state error", func(t *testing.T) {
		p := newTestPayment(t, "100")
		require.NoError(t, p.MarkProcessing())
		require.NoError(t, p.Complete(time.Now(), PaymentMethodCash, ""))
		manual := dec("5")
		assert.True(t, shared.IsKind(p.UpdateDeductions(&manual, nil), shared.KindState))
	})
}

func TestPayment_Settlement(t *testing.T) {
	t.Run("pending to processing to completed", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.MarkProcessing())
		assert.Equal(t, PaymentStatusProcessing, p.Status)
		require.NoError(t, p.MarkProcessing(), "identity transition is a no-op")

		date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, p.Complete(date, PaymentMethodGCash, " REF-1 "))
		assert.Equal(t, PaymentStatusCompleted, p.Status)
		assert.Equal(t, "REF-1", p.ReferenceNumber)
		require.NotNil(t, p.PaymentDate)
		assert.True(t, p.PaymentDate.Equal(date))
	})

	t.Run("complete requires processing", func(t *testing.T) {
		p := newTestPayment(t, "500")
		assert.True(t, shared.IsKind(p.Complete(time.Now(), PaymentMethodCash, ""), shared.KindState))
	})

	t.Run("unknown method and zero date are validation errors", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.MarkProcessing())
		assert.True(t, shared.IsKind(p.Complete(time.Now(), PaymentMethod("barter"), ""), shared.KindValidation))
		assert.True(t, shared.IsKind(p.Complete(time.Time{}, PaymentMethodCash, ""), shared.KindValidation))
	})

	t.Run("unsettled pool blocks completion", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.ApplyDebtDeduction(dec("10"), true))
		require.NoError(t, p.MarkProcessing())
		assert.True(t, shared.IsKind(p.Complete(time.Now(), PaymentMethodCash, ""), shared.KindState))
	})

	t.Run("mark processing from completed is state error", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.MarkProcessing())
		require.NoError(t, p.Complete(time.Now(), PaymentMethodCash, ""))
		assert.True(t, shared.IsKind(p.MarkProcessing(), shared.KindState))
	})
}

func TestPayment_RecordBalanceCredit(t *testing.T) {
	p := newTestPayment(t, "500")
	assert.True(t, shared.IsKind(p.RecordBalanceCredit(dec("100")), shared.KindState), "only completed payments")

	require.NoError(t, p.MarkProcessing())
	require.NoError(t, p.Complete(time.Now(), PaymentMethodCash, ""))
	assert.True(t, shared.IsKind(p.RecordBalanceCredit(dec("501")), shared.KindValidation))
	assert.True(t, shared.IsKind(p.RecordBalanceCredit(dec("-1")), shared.KindValidation))

	require.NoError(t, p.RecordBalanceCredit(dec("100")))
	assert.True(t, p.BalanceCredit.Equal(dec("100")))
	require.NoError(t, p.CheckInvariants())
}

func TestPayment_RejectsSubScaleAmounts(t *testing.T) {
	_, err := NewPayment(uuid.New(), uuid.New(), dec("100.00005"), nil, "")
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	p := newTestPayment(t, "100")
	err = p.ApplyDebtDeduction(dec("0.00005"), true)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, shared.CodeInvalidAmountScale, de.Code)
	assert.True(t, p.TotalDebtDeduction.IsZero(), "rejected deduction leaves the payment unchanged")

	manual := dec("1.23456")
	assert.True(t, shared.IsKind(p.UpdateDeductions(&manual, nil), shared.KindValidation))
	assert.True(t, p.NetPay.Equal(dec("100")))
}

func TestPayment_Cancel(t *testing.T) {
	t.Run("releases pooled deduction", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.ApplyDebtDeduction(dec("120"), true))

		released, err := p.Cancel("duplicate entry")
		require.NoError(t, err)
		assert.True(t, released.Equal(dec("120")))
		assert.Equal(t, PaymentStatusCancelled, p.Status)
		assert.True(t, p.NetPay.Equal(dec("500")))
		assert.Equal(t, "duplicate entry", p.CancelReason)
	})

	t.Run("completed payment cannot be cancelled", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.MarkProcessing())
		require.NoError(t, p.Complete(time.Now(), PaymentMethodCash, ""))
		_, err := p.Cancel("late")
		assert.True(t, shared.IsKind(err, shared.KindState))
	})

	t.Run("cancelled payment cannot be cancelled again", func(t *testing.T) {
		p := newTestPayment(t, "500")
		_, err := p.Cancel("first")
		require.NoError(t, err)
		_, err = p.Cancel("second")
		assert.True(t, shared.IsKind(err, shared.KindState))
	})

	t.Run("empty reason is validation error", func(t *testing.T) {
		p := newTestPayment(t, "500")
		_, err := p.Cancel("  ")
		assert.True(t, shared.IsKind(err, shared.KindValidation))
	})

	t.Run("specific debt deductions block cancellation", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.ApplyDebtDeduction(dec("50"), false))
		_, err := p.Cancel("mistake")
		assert.True(t, shared.IsKind(err, shared.KindState))
	})
}

func TestPayment_CanDelete(t *testing.T) {
	p := newTestPayment(t, "500")
	assert.NoError(t, p.CanDelete())

	require.NoError(t, p.MarkProcessing())
	assert.NoError(t, p.CanDelete())

	require.NoError(t, p.Complete(time.Now(), PaymentMethodCash, ""))
	assert.True(t, shared.IsKind(p.CanDelete(), shared.KindState))

	withDebt := newTestPayment(t, "500")
	require.NoError(t, withDebt.ApplyDebtDeduction(dec("5"), false))
	assert.True(t, shared.IsKind(withDebt.CanDelete(), shared.KindState))
}

func TestPayment_Reassign(t *testing.T) {
	t.Run("worker reassignment", func(t *testing.T) {
		p := newTestPayment(t, "500")
		next := uuid.New()
		require.NoError(t, p.ReassignWorker(next))
		assert.Equal(t, next, p.WorkerID)
	})

	t.Run("worker reassignment blocked by debt deductions", func(t *testing.T) {
		p := newTestPayment(t, "500")
		require.NoError(t, p.ApplyDebtDeduction(dec("5"), true))
		assert.True(t, shared.IsKind(p.ReassignWorker(uuid.New()), shared.KindState))
	})

	t.Run("cancelled payment cannot be reassigned", func(t *testing.T) {
		p := newTestPayment(t, "500")
		_, err := p.Cancel("x")
		require.NoError(t, err)
		assert.True(t, shared.IsKind(p.ReassignWorker(uuid.New()), shared.KindState))
		pitak := uuid.New()
		assert.True(t, shared.IsKind(p.ReassignPitak(&pitak), shared.KindState))
	})

	t.Run("SamePitak", func(t *testing.T) {
		p := newTestPayment(t, "500")
		assert.True(t, p.SamePitak(nil))
		nilID := uuid.Nil
		assert.True(t, p.SamePitak(&nilID))

		pitak := uuid.New()
		require.NoError(t, p.ReassignPitak(&pitak))
		same := pitak
		assert.True(t, p.SamePitak(&same))
		assert.False(t, p.SamePitak(nil))
	})
}

func TestPayment_AppendNote(t *testing.T) {
	p := newTestPayment(t, "500")
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, p.AppendNote("first", at))
	require.NoError(t, p.AppendNote("second", at))
	assert.Equal(t, "[2024-05-01T08:00:00Z] first\n[2024-05-01T08:00:00Z] second", p.Notes)
	assert.True(t, shared.IsKind(p.AppendNote(" ", at), shared.KindValidation))
}

func TestDeductionBreakdown_ValueScan(t *testing.T) {
	b := DeductionBreakdown{
		ManualDeduction: dec("1"),
		DebtDeductions:  dec("2"),
		OtherDeductions: dec("3"),
		TotalDeductions: dec("6"),
	}
	v, err := b.Value()
	require.NoError(t, err)

	var out DeductionBreakdown
	require.NoError(t, out.Scan(v))
	assert.True(t, out.TotalDeductions.Equal(dec("6")))

	require.NoError(t, out.Scan([]byte(`{"manual_deduction":"4"}`)))
	assert.True(t, out.ManualDeduction.Equal(dec("4")))

	require.NoError(t, out.Scan(nil))
	assert.True(t, out.TotalDeductions.IsZero())

	assert.Error(t, out.Scan(42))
}
