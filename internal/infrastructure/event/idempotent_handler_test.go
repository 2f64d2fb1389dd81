package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is a minimal IdempotencyStore
type fakeStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]time.Duration)}
}

func (s *fakeStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = ttl
	return true, nil
}

func (s *fakeStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, s.err
}

func (s *fakeStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// flakyHandler fails the first n calls, n being failures
type flakyHandler struct {
	failures int
	calls    atomic.Int32
}

func (h *flakyHandler) Handle(context.Context, shared.DomainEvent) error {
	if int(h.calls.Add(1)) <= h.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func (h *flakyHandler) EventTypes() []string { return nil }

func TestIdempotentHandler_SkipsRedelivery(t *testing.T) {
	inner := &recordingHandler{eventTypes: []string{payroll.EventTypePaymentCreated}}
	store := newFakeStore()
	h := NewIdempotentHandler(inner, store, zap.NewNop(), WithDeliveryTTL(time.Hour), WithKeyPrefix("kafka:"))

	event := payroll.NewPaymentCreatedEvent(newTestPayment(t))
	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))

	assert.Len(t, inner.events(), 1)
	assert.Equal(t, DeliveryStats{Delivered: 1, Duplicates: 1}, h.Stats())
	assert.Equal(t, time.Hour, store.keys["kafka:"+event.EventID().String()])
	assert.Equal(t, []string{payroll.EventTypePaymentCreated}, h.EventTypes())
}

func TestIdempotentHandler_StoreErrorFallsThrough(t *testing.T) {
	inner := &recordingHandler{}
	store := newFakeStore()
	store.err = errors.New("redis down")
	h := NewIdempotentHandler(inner, store, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), payroll.NewPaymentCreatedEvent(newTestPayment(t))))
	assert.Len(t, inner.events(), 1)
}

func TestIdempotentHandler_HandlerError(t *testing.T) {
	inner := &recordingHandler{err: errors.New("write failed")}
	store := newFakeStore()
	h := NewIdempotentHandler(inner, store, zap.NewNop())
	event := payroll.NewPaymentCreatedEvent(newTestPayment(t))

	err := h.Handle(context.Background(), event)
	assert.EqualError(t, err, "write failed")
	assert.Equal(t, int64(1), h.Stats().Failed)
	assert.NotContains(t, store.keys, "event:"+event.EventID().String(), "a failed delivery keeps no mark")
}

func TestIdempotentHandler_RedeliversAfterFailure(t *testing.T) {
	inner := &flakyHandler{failures: 1}
	h := NewIdempotentHandler(inner, newFakeStore(), zap.NewNop())
	event := payroll.NewPaymentCreatedEvent(newTestPayment(t))

	require.Error(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event), "the redelivery is not treated as a duplicate")
	require.NoError(t, h.Handle(context.Background(), event))

	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Equal(t, DeliveryStats{Delivered: 1, Duplicates: 1, Failed: 1}, h.Stats())
}

func TestIdempotentHandler_RetriesWithinAttempts(t *testing.T) {
	inner := &flakyHandler{failures: 2}
	h := NewIdempotentHandler(inner, newFakeStore(), zap.NewNop(), WithDeliveryAttempts(3, time.Millisecond))

	require.NoError(t, h.Handle(context.Background(), payroll.NewPaymentCreatedEvent(newTestPayment(t))))
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Equal(t, DeliveryStats{Delivered: 1}, h.Stats())

	exhausted := &flakyHandler{failures: 5}
	h = NewIdempotentHandler(exhausted, newFakeStore(), zap.NewNop(), WithDeliveryAttempts(2, 0))
	assert.Error(t, h.Handle(context.Background(), payroll.NewPaymentCreatedEvent(newTestPayment(t))))
	assert.EqualValues(t, 2, exhausted.calls.Load())
}
