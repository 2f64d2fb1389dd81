// Package handler adapts the ledger dispatcher to gin.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/infrastructure/logger"
	"github.com/farmpay/backend/internal/interfaces/http/middleware"
	"github.com/farmpay/backend/internal/interfaces/rpc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error codes raised by the HTTP adapter
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	KindInfrastructure = "INFRASTRUCTURE"
)

// Dispatcher executes envelope requests
type Dispatcher interface {
	Dispatch(ctx context.Context, req rpc.Request) (rpc.Response, error)
}

// RPCHandler serves POST /rpc
type RPCHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewRPCHandler creates an RPCHandler
func NewRPCHandler(dispatcher Dispatcher, logger *zap.Logger) *RPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCHandler{dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes registers the RPC endpoint
func (h *RPCHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rpc", h.Handle)
}

// Handle decodes the envelope and dispatches it. An authenticated user
// replaces any userId supplied in params.
func (h *RPCHandler) Handle(c *gin.Context) {
	var req rpc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, rpc.Failure(
			shared.NewValidationError(CodeInvalidRequest, "Malformed request envelope: %v", err)))
		return
	}
	if userID := middleware.GetUserID(c); userID != "" {
		req.Params = withUserID(req.Params, userID)
	}

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Error("RPC dispatch failed",
			zap.String("method", req.Method), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, rpc.Response{
			Status:  false,
			Message: "Internal server error",
			Data:    rpc.ErrorData{Code: CodeInternalError, Kind: KindInfrastructure},
		})
		return
	}
	c.JSON(StatusFor(resp), resp)
}

// withUserID sets params.userId. Params that are not a JSON object are
// returned unchanged and rejected by the dispatcher.
func withUserID(raw json.RawMessage, userID string) json.RawMessage {
	params := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil || params == nil {
			return raw
		}
	}
	encoded, err := json.Marshal(userID)
	if err != nil {
		return raw
	}
	params["userId"] = encoded
	out, err := json.Marshal(params)
	if err != nil {
		return raw
	}
	return out
}

// StatusFor maps an envelope to an HTTP status by error kind
func StatusFor(resp rpc.Response) int {
	if resp.Status {
		return http.StatusOK
	}
	data, ok := resp.Data.(rpc.ErrorData)
	if !ok {
		return http.StatusBadRequest
	}
	switch shared.ErrorKind(data.Kind) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindState, shared.KindDuplicate, shared.KindConflict:
		return http.StatusConflict
	case shared.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
