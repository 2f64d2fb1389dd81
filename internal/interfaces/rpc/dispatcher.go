package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/logger"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Dispatcher error codes
const (
	CodeUnknownMethod = "UNKNOWN_METHOD"
	CodeInvalidParams = "INVALID_PARAMS"
)

// DefaultRequestTTL is how long a request id is remembered when no TTL is configured
const DefaultRequestTTL = 24 * time.Hour

// Services are the ledger services reachable through the dispatcher
type Services struct {
	Ledger     *apppayroll.PaymentLedger
	Allocator  *apppayroll.DebtAllocator
	Aggregator *apppayroll.WorkerBalanceAggregator
	Recorder   *apppayroll.AuditTrailRecorder
	Bulk       *apppayroll.BulkOperationCoordinator
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) (any, error)

type method struct {
	mutating bool
	message  string
	handle   handlerFunc
}

// Dispatcher routes envelope requests to the ledger services
type Dispatcher struct {
	services   Services
	methods    map[string]method
	validate   *validator.Validate
	store      shared.IdempotencyStore
	requestTTL time.Duration
	metrics    *telemetry.LedgerMetrics
	logger     *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithIdempotencyStore enables replay protection for requests carrying a requestId
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.store = store
		if ttl > 0 {
			d.requestTTL = ttl
		}
	}
}

// WithMetrics records per-method counts and latency
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the dispatcher logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over the given services
func NewDispatcher(services Services, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		services:   services,
		validate:   newValidator(),
		requestTTL: DefaultRequestTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.methods = d.routes()
	return d
}

// newValidator reports field errors with their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Methods returns the registered method names
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	return names
}

// Dispatch executes one request. Rejections by the ledger are returned as a
// failed Response with a nil error; the error is non-nil only for
// infrastructure failures, and the Response is then empty.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "rpc", req.Method,
		telemetry.WithAttribute("rpc.request_id", req.RequestID))
	defer span.End()

	data, err := d.dispatch(ctx, req)
	log := logger.WithLogger(ctx, d.logger).With(zap.String("method", req.Method), zap.String("rpc_request_id", req.RequestID))

	errorKind := ""
	defer func() {
		if d.metrics != nil {
			d.metrics.RecordRPC(ctx, req.Method, time.Since(start), errorKind)
		}
	}()

	if err == nil {
		log.Debug("rpc call succeeded", zap.Duration("duration", time.Since(start)))
		return Success(d.methods[req.Method].message, data), nil
	}

	if de, ok := shared.AsDomainError(err); ok {
		errorKind = string(de.Kind)
		log.Warn("rpc call rejected",
			zap.String("code", de.Code),
			zap.String("kind", errorKind),
			zap.String("reason", de.Message))
		return failureFor(err, de), nil
	}

	errorKind = "INFRASTRUCTURE"
	telemetry.RecordError(span, err)
	log.Error("rpc call failed", zap.Error(err))
	return Response{}, fmt.Errorf("%s: %w", req.Method, err)
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, error) {
	m, ok := d.methods[req.Method]
	if !ok {
		return nil, shared.NewValidationError(CodeUnknownMethod, "Unknown method %q", req.Method)
	}
	var marked string
	if m.mutating && req.RequestID != "" && d.store != nil {
		marked = "rpc:" + req.RequestID
		first, err := d.store.MarkProcessed(ctx, marked, d.requestTTL)
		if err != nil {
			return nil, fmt.Errorf("mark request %s: %w", req.RequestID, err)
		}
		if !first {
			return nil, &shared.DomainError{
				Kind:    shared.KindDuplicate,
				Code:    apppayroll.CodeDuplicateRequest,
				Message: fmt.Sprintf("Request %s was already processed", req.RequestID),
			}
		}
	}

	var (
		data any
		err  error
	)
	telemetry.WithProfilingLabels(ctx, map[string]string{telemetry.ProfilingLabelRPCMethod: req.Method}, func(ctx context.Context) {
		data, err = m.handle(ctx, req.Params)
	})
	if err != nil && marked != "" {
		// nothing was committed, so the same requestId may be retried
		if relErr := d.store.Release(context.WithoutCancel(ctx), marked); relErr != nil {
			d.logger.Warn("Failed to release request id",
				zap.String("request_id", req.RequestID), zap.Error(relErr))
		}
	}
	return data, err
}

// decode unmarshals params into dst and validates it
func (d *Dispatcher) decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return shared.NewValidationError(CodeInvalidParams, "Invalid params: %v", err)
	}
	if err := d.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return shared.NewValidationError(CodeInvalidParams, "Invalid params: %s", describe(fieldErrs))
		}
		return shared.NewValidationError(CodeInvalidParams, "Invalid params: %v", err)
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", e.Field(), e.Tag(), e.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
	}
	return strings.Join(parts, "; ")
}

// bind decodes params of type P and passes them to fn
func bind[P any](d *Dispatcher, fn func(ctx context.Context, p *P) (any, error)) handlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		p := new(P)
		if err := d.decode(raw, p); err != nil {
			return nil, err
		}
		return fn(ctx, p)
	}
}
