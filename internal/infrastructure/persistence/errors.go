package persistence

import (
	"errors"
	"strings"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Unique indexes of the payments table
const (
	indexPaymentAssignment  = "idx_payment_assignment"
	indexPaymentReference   = "idx_payment_reference"
	indexPaymentIdempotency = "idx_payments_idempotency_key"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure on
// PostgreSQL or SQLite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapPaymentWriteError turns a unique violation on the payments table into a
// duplicate error. Lookups before the write catch the common case; this
// covers a concurrent writer that committed in between.
func mapPaymentWriteError(err error) error {
	if err == nil || !isUniqueViolation(err) {
		return err
	}

	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg = pgErr.ConstraintName
	}
	switch {
	case strings.Contains(msg, indexPaymentAssignment), strings.Contains(msg, "pitak_id"):
		return &shared.DomainError{Kind: shared.KindDuplicate, Code: apppayroll.CodeDuplicateAssign,
			Message: "A payment for this pitak, worker and session already exists"}
	case strings.Contains(msg, indexPaymentReference), strings.Contains(msg, "reference_number"):
		return &shared.DomainError{Kind: shared.KindDuplicate, Code: apppayroll.CodeDuplicateRef,
			Message: "Reference number already used in this session"}
	case strings.Contains(msg, indexPaymentIdempotency), strings.Contains(msg, "idempotency_key"):
		return &shared.DomainError{Kind: shared.KindDuplicate, Code: apppayroll.CodeDuplicateKey,
			Message: "Idempotency key already used"}
	}
	return shared.ErrAlreadyExists
}
