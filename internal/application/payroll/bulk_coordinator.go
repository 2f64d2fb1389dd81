package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultMaxBatchSize is used when no limit is configured
const DefaultMaxBatchSize = 100

// errNothingSucceeded rolls back a batch in which every item failed
var errNothingSucceeded = errors.New("bulk: no item succeeded")

// BulkOperationCoordinator drives ledger operations over a batch. The batch runs
// in one transaction with a savepoint per item: a failing item is rolled back to
// its savepoint and recorded, the rest of the batch continues. A batch in which
// nothing succeeded is rolled back entirely and reported as a BatchFailedError.
// Infrastructure errors abort the batch.
type BulkOperationCoordinator struct {
	uow          *UnitOfWork
	ledger       *PaymentLedger
	maxBatchSize int
	logger       *zap.Logger
}

// NewBulkOperationCoordinator creates a BulkOperationCoordinator
func NewBulkOperationCoordinator(uow *UnitOfWork, ledger *PaymentLedger, maxBatchSize int, logger *zap.Logger) *BulkOperationCoordinator {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkOperationCoordinator{uow: uow, ledger: ledger, maxBatchSize: maxBatchSize, logger: logger}
}

// MaxBatchSize returns the configured batch limit
func (c *BulkOperationCoordinator) MaxBatchSize() int {
	return c.maxBatchSize
}

// BulkCreate creates each payment independently
func (c *BulkOperationCoordinator) BulkCreate(ctx context.Context, input BulkCreateInput) (*BulkResult, error) {
	return c.run(ctx, "bulk_create", len(input.Items), func(ctx context.Context, i int) (any, error) {
		item := input.Items[i]
		item.PerformedBy = input.PerformedBy
		return c.ledger.Create(ctx, item)
	})
}

// BulkUpdate applies each item's changes independently. Status may move a payment
// to processing or cancelled; completion goes through BulkProcess.
func (c *BulkOperationCoordinator) BulkUpdate(ctx context.Context, input BulkUpdateInput) (*BulkResult, error) {
	return c.run(ctx, "bulk_update", len(input.Items), func(ctx context.Context, i int) (any, error) {
		return c.updateOne(ctx, input.Items[i], input.PerformedBy)
	})
}

func (c *BulkOperationCoordinator) updateOne(ctx context.Context, item BulkUpdateItem, performedBy string) (*PaymentResponse, error) {
	if item.ManualDeduction == nil && item.OtherDeductions == nil && item.Status == nil && item.PitakID == nil && item.Notes == nil {
		return nil, shared.NewValidationError("NO_CHANGES", "Item has nothing to update")
	}
	if item.Status != nil {
		switch *item.Status {
		case payroll.PaymentStatusProcessing, payroll.PaymentStatusCancelled:
		case payroll.PaymentStatusCompleted:
			return nil, shared.NewValidationError("INVALID_STATUS", "Completion requires payment details; use process")
		default:
			return nil, shared.NewValidationError("INVALID_STATUS", "Unsupported target status %q", *item.Status)
		}
	}

	var resp *PaymentResponse
	var err error
	if item.ManualDeduction != nil || item.OtherDeductions != nil {
		resp, err = c.ledger.UpdateDeductions(ctx, UpdateDeductionsInput{
			PaymentID:       item.PaymentID,
			ManualDeduction: item.ManualDeduction,
			OtherDeductions: item.OtherDeductions,
			PerformedBy:     performedBy,
			Reason:          defaultReason(item.Reason, "Bulk update"),
		})
		if err != nil {
			return nil, err
		}
	}
	if item.PitakID != nil {
		resp, err = c.ledger.AssignPitak(ctx, AssignPitakInput{
			PaymentID:   item.PaymentID,
			PitakID:     item.PitakID,
			PerformedBy: performedBy,
			Reason:      defaultReason(item.Reason, "Bulk update"),
		})
		if err != nil {
			return nil, err
		}
	}
	if item.Notes != nil {
		resp, err = c.ledger.AddNote(ctx, AddNoteInput{PaymentID: item.PaymentID, Note: *item.Notes, PerformedBy: performedBy})
		if err != nil {
			return nil, err
		}
	}
	if item.Status != nil {
		switch *item.Status {
		case payroll.PaymentStatusProcessing:
			resp, err = c.ledger.MarkProcessing(ctx, PaymentActionInput{
				PaymentID:   item.PaymentID,
				PerformedBy: performedBy,
				Reason:      defaultReason(item.Reason, "Bulk update"),
			})
		case payroll.PaymentStatusCancelled:
			resp, err = c.ledger.Cancel(ctx, CancelInput{
				PaymentID:   item.PaymentID,
				PerformedBy: performedBy,
				Reason:      defaultReason(item.Reason, "Cancelled by bulk update"),
			})
		}
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// BulkProcess settles each payment independently
func (c *BulkOperationCoordinator) BulkProcess(ctx context.Context, input BulkProcessInput) (*BulkResult, error) {
	return c.run(ctx, "bulk_process", len(input.PaymentIDs), func(ctx context.Context, i int) (any, error) {
		reference := ""
		if input.ReferencePrefix != "" {
			reference = fmt.Sprintf("%s-%03d", input.ReferencePrefix, i+1)
		}
		return c.ledger.Process(ctx, ProcessInput{
			PaymentID:       input.PaymentIDs[i],
			PaymentDate:     input.PaymentDate,
			PaymentMethod:   input.PaymentMethod,
			ReferenceNumber: reference,
			PerformedBy:     input.PerformedBy,
			Reason:          defaultReason(input.Reason, "Bulk process"),
		})
	})
}

func (c *BulkOperationCoordinator) run(ctx context.Context, method string, n int, each func(ctx context.Context, i int) (any, error)) (*BulkResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bulk", method)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrBatchSize, n)

	if n == 0 {
		return nil, shared.NewValidationError(CodeBatchEmpty, "Batch contains no items")
	}
	if n > c.maxBatchSize {
		return nil, shared.NewValidationError(CodeBatchTooLarge, "Batch of %d items exceeds the limit of %d", n, c.maxBatchSize)
	}

	result := &BulkResult{
		Success: make([]any, 0, n),
		Failed:  make([]BulkFailure, 0),
	}
	err := c.uow.Run(ctx, func(ctx context.Context, tx *Tx) error {
		for i := 0; i < n; i++ {
			savepoint := fmt.Sprintf("bulk_item_%d", i)
			if err := tx.Savepoint(savepoint); err != nil {
				return fmt.Errorf("failed to create savepoint: %w", err)
			}

			out, err := each(ctx, i)
			if err == nil {
				result.Success = append(result.Success, out)
				continue
			}

			de, ok := shared.AsDomainError(err)
			if !ok {
				return fmt.Errorf("bulk item %d: %w", i, err)
			}
			if rbErr := tx.RollbackTo(savepoint); rbErr != nil {
				return fmt.Errorf("failed to roll back item %d: %w", i, rbErr)
			}
			result.Failed = append(result.Failed, BulkFailure{
				Index:    i,
				Reason:   de.Message,
				Code:     de.Code,
				Kind:     string(de.Kind),
				EntityID: de.EntityID,
			})
		}
		if len(result.Success) == 0 {
			return errNothingSucceeded
		}
		return nil
	})

	result.SuccessCount = len(result.Success)
	result.FailedCount = len(result.Failed)

	switch {
	case errors.Is(err, errNothingSucceeded):
		c.logger.Info("Bulk operation rolled back, no item succeeded",
			zap.String("method", method),
			zap.Int("failed", result.FailedCount))
		return nil, newBatchFailedError(result)
	case err != nil:
		telemetry.RecordError(span, err)
		c.logger.Error("Bulk operation aborted",
			zap.String("method", method),
			zap.Int("items", n),
			zap.Error(err))
		return nil, err
	default:
		result.Committed = true
	}

	c.logger.Info("Bulk operation finished",
		zap.String("method", method),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailedCount),
		zap.Bool("committed", result.Committed))
	return result, nil
}
