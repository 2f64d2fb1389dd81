package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingHandler captures handled events
type recordingHandler struct {
	eventTypes []string
	err        error
	panics     bool

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) events() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func newTestPayment(t *testing.T) *payroll.Payment {
	t.Helper()
	p, err := payroll.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(1500), nil, "")
	require.NoError(t, err)
	return p
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	created := &recordingHandler{eventTypes: []string{payroll.EventTypePaymentCreated}}
	all := &recordingHandler{}
	bus.Subscribe(created)
	bus.Subscribe(all)

	payment := newTestPayment(t)
	event := payroll.NewPaymentCreatedEvent(payment)
	cancelled := payroll.NewPaymentCancelledEvent(payment, "duplicate entry")

	require.NoError(t, bus.Publish(context.Background(), event, cancelled))

	assert.Equal(t, []shared.DomainEvent{event}, created.events())
	assert.Len(t, all.events(), 2)
}

func TestInMemoryEventBus_Publish_FailuresDoNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recordingHandler{err: errors.New("downstream unavailable")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), payroll.NewPaymentCreatedEvent(newTestPayment(t)))

	assert.NoError(t, err)
	assert.Len(t, healthy.events(), 1)
	assert.Equal(t, int64(2), bus.Failures())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{}
	bus.Subscribe(handler, payroll.EventTypePaymentCreated)
	bus.Unsubscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), payroll.NewPaymentCreatedEvent(newTestPayment(t))))
	assert.Empty(t, handler.events())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.False(t, bus.Running())

	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.Running())

	require.NoError(t, bus.Stop(context.Background()))
	assert.False(t, bus.Running())
}
