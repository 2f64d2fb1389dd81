package payroll

import (
	"errors"
	"fmt"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes reported by the ledger services
const (
	CodePaymentNotFound   = "PAYMENT_NOT_FOUND"
	CodeDebtNotFound      = "DEBT_NOT_FOUND"
	CodeWorkerNotFound    = "WORKER_NOT_FOUND"
	CodeDuplicateKey      = "DUPLICATE_IDEMPOTENCY_KEY"
	CodeDuplicateAssign   = "DUPLICATE_ASSIGNMENT"
	CodeDuplicateRef      = "DUPLICATE_REFERENCE_NUMBER"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeHasDebtDeductions = "HAS_DEBT_DEDUCTIONS"
	CodeBatchEmpty        = "BATCH_EMPTY"
	CodeBatchTooLarge     = "BATCH_TOO_LARGE"
	CodeBatchFailed       = "BATCH_FAILED"
)

// BatchFailedError reports a batch in which every item failed. Nothing was
// committed; Result lists why each item was rejected. Its kind is the kind of
// the first failure.
type BatchFailedError struct {
	*shared.DomainError
	Result *BulkResult
}

// Unwrap exposes the DomainError to errors.As
func (e *BatchFailedError) Unwrap() error {
	return e.DomainError
}

func newBatchFailedError(result *BulkResult) *BatchFailedError {
	kind := shared.KindValidation
	detail := ""
	if len(result.Failed) > 0 {
		kind = shared.ErrorKind(result.Failed[0].Kind)
		detail = fmt.Sprintf(": item %d: %s", result.Failed[0].Index, result.Failed[0].Reason)
	}
	return &BatchFailedError{
		DomainError: &shared.DomainError{
			Kind:    kind,
			Code:    CodeBatchFailed,
			Message: fmt.Sprintf("All %d items failed%s", result.FailedCount, detail),
		},
		Result: result,
	}
}

// mapNotFound turns a repository not-found error into a typed NotFound error for id.
// Other errors are returned unchanged.
func mapNotFound(err error, code string, id uuid.UUID, what string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(code, id, "%s %s not found", what, id)
	}
	return err
}
