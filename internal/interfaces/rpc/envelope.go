// Package rpc dispatches ledger calls carried in a transport-agnostic
// {method, params, requestId} envelope.
package rpc

import (
	"encoding/json"
	"errors"

	apppayroll "github.com/farmpay/backend/internal/application/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Request is an incoming call
type Request struct {
	Method    string          `json:"method" binding:"required"`
	Params    json.RawMessage `json:"params"`
	RequestID string          `json:"requestId,omitempty"`
}

// Response is the reply to a call. Data holds the result on success and
// ErrorData on failure.
type Response struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorData describes a rejected call
type ErrorData struct {
	Code     string                   `json:"code"`
	Kind     string                   `json:"kind"`
	EntityID *uuid.UUID               `json:"entityId,omitempty"`
	Failed   []apppayroll.BulkFailure `json:"failed,omitempty"` // per item, when a whole batch failed
}

// Success builds a successful response
func Success(message string, data any) Response {
	return Response{Status: true, Message: message, Data: data}
}

// Failure builds a response for a domain error
func Failure(err *shared.DomainError) Response {
	return Response{
		Status:  false,
		Message: err.Message,
		Data: ErrorData{
			Code:     err.Code,
			Kind:     string(err.Kind),
			EntityID: err.EntityID,
		},
	}
}

// failureFor builds the failure response for err, adding the item failures
// of a batch that failed as a whole
func failureFor(err error, de *shared.DomainError) Response {
	resp := Failure(de)
	var batchErr *apppayroll.BatchFailedError
	if errors.As(err, &batchErr) && batchErr.Result != nil {
		data := resp.Data.(ErrorData)
		data.Failed = batchErr.Result.Failed
		resp.Data = data
	}
	return resp
}
