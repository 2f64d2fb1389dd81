// Package middleware provides HTTP middleware for the ledger API.
package middleware

import (
	"github.com/farmpay/backend/internal/interfaces/rpc"
	"github.com/gin-gonic/gin"
)

// KindHTTP marks failures raised by the HTTP layer itself
const KindHTTP = "HTTP"

// abort stops the chain with a failed envelope
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, rpc.Response{
		Status:  false,
		Message: message,
		Data:    rpc.ErrorData{Code: code, Kind: KindHTTP},
	})
}
