package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/farmpay/backend/internal/interfaces/http/middleware"
	"github.com/farmpay/backend/internal/interfaces/rpc"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDispatcher struct {
	received rpc.Request
	resp     rpc.Response
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req rpc.Request) (rpc.Response, error) {
	f.received = req
	return f.resp, f.err
}

func serve(t *testing.T, d Dispatcher, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	if userID != "" {
		engine.Use(func(c *gin.Context) { c.Set(middleware.UserIDKey, userID) })
	}
	NewRPCHandler(d, nil).RegisterRoutes(engine.Group(""))

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRPCHandler_Success(t *testing.T) {
	d := &fakeDispatcher{resp: rpc.Success("Payment retrieved", map[string]string{"id": "p-1"})}

	w := serve(t, d, "", `{"method":"payment.get","params":{"paymentId":"p-1","userId":"clerk"},"requestId":"r-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payment.get", d.received.Method)
	assert.Equal(t, "r-1", d.received.RequestID)
	assert.JSONEq(t, `{"paymentId":"p-1","userId":"clerk"}`, string(d.received.Params))
	assert.JSONEq(t, `{"status":true,"message":"Payment retrieved","data":{"id":"p-1"}}`, w.Body.String())
}

func TestRPCHandler_AuthenticatedUserOverridesParams(t *testing.T) {
	d := &fakeDispatcher{resp: rpc.Success("ok", nil)}

	serve(t, d, "token-user", `{"method":"payment.get","params":{"paymentId":"p-1","userId":"spoofed"}}`)

	var params map[string]string
	require.NoError(t, json.Unmarshal(d.received.Params, &params))
	assert.Equal(t, "token-user", params["userId"])
	assert.Equal(t, "p-1", params["paymentId"])
}

func TestRPCHandler_MalformedEnvelope(t *testing.T) {
	d := &fakeDispatcher{}

	for _, body := range []string{`not json`, `{"params":{}}`} {
		w := serve(t, d, "", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)

		var resp struct {
			Status bool          `json:"status"`
			Data   rpc.ErrorData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Status)
		assert.Equal(t, CodeInvalidRequest, resp.Data.Code)
	}
	assert.Empty(t, d.received.Method, "dispatcher must not be called")
}

func TestRPCHandler_InfrastructureError(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("connection refused")}

	w := serve(t, d, "", `{"method":"worker.balance","params":{}}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), CodeInternalError)
}

func TestStatusFor(t *testing.T) {
	failure := func(kind shared.ErrorKind) rpc.Response {
		return rpc.Failure(&shared.DomainError{Kind: kind, Code: "X", Message: "x"})
	}

	tests := []struct {
		name string
		resp rpc.Response
		want int
	}{
		{"success", rpc.Success("ok", nil), http.StatusOK},
		{"validation", failure(shared.KindValidation), http.StatusBadRequest},
		{"not found", failure(shared.KindNotFound), http.StatusNotFound},
		{"state", failure(shared.KindState), http.StatusConflict},
		{"duplicate", failure(shared.KindDuplicate), http.StatusConflict},
		{"conflict", failure(shared.KindConflict), http.StatusConflict},
		{"insufficient funds", failure(shared.KindInsufficientFunds), http.StatusUnprocessableEntity},
		{"unexpected data", rpc.Response{Status: false, Data: "?"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.resp))
		})
	}
}

func TestWithUserID(t *testing.T) {
	assert.JSONEq(t, `{"userId":"u"}`, string(withUserID(nil, "u")))
	assert.JSONEq(t, `{"a":1,"userId":"u"}`, string(withUserID(json.RawMessage(`{"a":1,"userId":"x"}`), "u")))
	assert.Equal(t, `[1,2]`, string(withUserID(json.RawMessage(`[1,2]`), "u")))
}
