package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultDeliveryTTL is how long a delivered event id is remembered
const DefaultDeliveryTTL = 24 * time.Hour

// DeliveryStats counts what an IdempotentHandler did
type DeliveryStats struct {
	Delivered  int64 `json:"delivered"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler wraps a handler so each event id is delivered at most once
// within the TTL. Store errors fall through to the handler. An id is kept only
// once the wrapped handler succeeds; after a failed delivery the mark is
// released so a redelivery of the same event is attempted again.
type IdempotentHandler struct {
	handler    shared.EventHandler
	store      shared.IdempotencyStore
	ttl        time.Duration
	prefix     string
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger

	delivered  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// IdempotentHandlerOption customizes an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithDeliveryTTL sets how long delivered ids are remembered
func WithDeliveryTTL(ttl time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the stored ids, so two wrapped handlers sharing a
// store do not suppress each other
func WithKeyPrefix(prefix string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.prefix = prefix
	}
}

// WithDeliveryAttempts retries a failing handler up to attempts times in
// total, waiting delay, then twice delay and so on between tries
func WithDeliveryAttempts(attempts int, delay time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if attempts > 0 {
			h.attempts = attempts
		}
		if delay >= 0 {
			h.retryDelay = delay
		}
	}
}

// NewIdempotentHandler wraps handler with store
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		ttl:     DefaultDeliveryTTL,
		prefix:   "event:",
		attempts: 1,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle delivers event unless its id was already delivered
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	key := h.prefix + event.EventID().String()

	fresh, err := h.store.MarkProcessed(ctx, key, h.ttl)
	if err != nil {
		h.logger.Warn("idempotency check failed, delivering anyway",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	} else if !fresh {
		h.duplicates.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.deliver(ctx, event); err != nil {
		h.failed.Add(1)
		if fresh {
			if relErr := h.store.Release(context.WithoutCancel(ctx), key); relErr != nil {
				h.logger.Warn("failed to release event id after delivery failure",
					zap.String("event_id", event.EventID().String()),
					zap.Error(relErr),
				)
			}
		}
		return err
	}
	h.delivered.Add(1)
	return nil
}

func (h *IdempotentHandler) deliver(ctx context.Context, event shared.DomainEvent) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = h.handler.Handle(ctx, event); err == nil || attempt >= h.attempts {
			return err
		}
		h.logger.Debug("event delivery failed, retrying",
			zap.String("event_id", event.EventID().String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		wait := h.retryDelay * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

// Stats returns a snapshot of the delivery counters
func (h *IdempotentHandler) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered:  h.delivered.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
