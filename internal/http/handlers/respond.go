package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/invoicehub/internal/http/middlewares"
	"github.com/geocoder89/invoicehub/internal/validation"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every failed request. The message sits under
// "error" so clients can read body.error directly; code and details are
// siblings.
type APIError struct {
	Message   string      `json:"error"`
	Code      string      `json:"code"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
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

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, APIError{
		Message:   message,
		Code:      code,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondValidation(ctx *gin.Context, err *validation.Error) {
	RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": err.Fields})
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondUnAuthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

// RespondInternal logs the cause and answers with a generic message. The
// request id reaches the log through the request context.
func RespondInternal(ctx *gin.Context, message string, cause error) {
	slog.Default().ErrorContext(ctx.Request.Context(), message,
		"route", ctx.FullPath(),
		"err", cause,
	)
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// respondValidationOr answers 400 for validation failures and reports whether
// it did.
func respondValidationOr(ctx *gin.Context, err error) bool {
	var ve *validation.Error
	if errors.As(err, &ve) {
		RespondValidation(ctx, ve)
		return true
	}
	return false
}

func principalOrAbort(ctx *gin.Context) (string, bool) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return "", false
	}
	return id, true
}
