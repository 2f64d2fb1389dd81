package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies a domain error. Every expected ledger failure carries
// exactly one kind; anything that is not a DomainError is an infrastructure failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindState             ErrorKind = "STATE"
	KindDuplicate         ErrorKind = "DUPLICATE"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindConflict          ErrorKind = "CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind     ErrorKind  `json:"kind"`
	Code     string     `json:"code"`
	Message  string     `json:"message"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"` // conflicting or missing entity, when known
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches errors of the same kind and code, so sentinels work with errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithEntity returns a copy of the error that references the given entity
func (e *DomainError) WithEntity(id uuid.UUID) *DomainError {
	cp := *e
	cp.EntityID = &id
	return &cp
}

// NewDomainError creates a new domain error with the validation kind.
// Prefer the kind-specific constructors below.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports malformed, missing or out-of-range input
func NewValidationError(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a referenced entity that does not exist
func NewNotFoundError(code string, id uuid.UUID, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...), EntityID: &id}
}

// NewStateError reports an operation not permitted from the current lifecycle position
func NewStateError(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewDuplicateError reports a uniqueness violation against an existing entity
func NewDuplicateError(code string, existing uuid.UUID, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindDuplicate, Code: code, Message: fmt.Sprintf(format, args...), EntityID: &existing}
}

// NewInsufficientFundsError reports a deduction larger than the available amount
func NewInsufficientFundsError(code, format string, args ...any) *DomainError {
	return &DomainError{Kind: KindInsufficientFunds, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrAlreadyExists       = &DomainError{Kind: KindDuplicate, Code: "ALREADY_EXISTS", Message: "Resource already exists"}
	ErrInvalidInput        = &DomainError{Kind: KindValidation, Code: "INVALID_INPUT", Message: "Invalid input provided"}
	ErrInvalidState        = &DomainError{Kind: KindState, Code: "INVALID_STATE", Message: "Operation not allowed in current state"}
	ErrInsufficientBalance = &DomainError{Kind: KindInsufficientFunds, Code: "INSUFFICIENT_BALANCE", Message: "Insufficient balance available"}
)

// ErrConcurrencyConflict is returned by version-checked saves. It is not a
// DomainError: a lost update is an infrastructure failure that must roll the
// surrounding transaction back.
var ErrConcurrencyConflict = errors.New("record was modified by another transaction")

// AsDomainError extracts a DomainError from err's chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsDomainError reports whether err is an expected, typed ledger failure
func IsDomainError(err error) bool {
	_, ok := AsDomainError(err)
	return ok
}

// IsKind reports whether err is a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsDomainError(err)
	return ok && de.Kind == kind
}
