package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const dbTimeout = 3 * time.Second

type APIError struct {
	Code      string      `json:"code"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(middlewares.CtxRequestID)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// dbContext detaches from client cancellation so a mutation that has
// started runs to completion (or its own timeout).
func dbContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx.Request.Context()), dbTimeout)
}

func RespondOK(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, Envelope{
		Success: false,
		Message: message,
		Error: &APIError{
			Code:      code,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// RespondInternal records err for the request logger. The client only sees
// the error text when gin runs in debug mode.
func RespondInternal(ctx *gin.Context, message string, err error) {
	var details interface{}
	if err != nil {
		_ = ctx.Error(err)
		if gin.IsDebugging() {
			details = gin.H{"reason": err.Error()}
		}
	}

	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, details)
}
