// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by all endpoints: the
// structured error envelope, the service-error to HTTP status mapping and
// small success helpers.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` writes the envelope and logs 5xx responses with request
//     context.
//   - `failErr()` maps a service error to a status by its class
//     (services.ErrValidation, ErrNotFound, ...). Unclassified errors become
//     an opaque 500; their detail only reaches the logs.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "already_claimed",
//	  "message": "conflict: quest reward already claimed"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"quest not found"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger. Errors are never cacheable, even on
// routes that set a public Cache-Control up front.
func fail(c *gin.Context, status int, code, msg string) {
	c.Header("Cache-Control", "no-store")
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks and
// middleware.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// specificCodes refines the class code for errors clients commonly branch on.
var specificCodes = []struct {
	err  error
	code string
}{
	{services.ErrAlreadyClaimed, ErrCodeAlreadyClaimed},
	{services.ErrNotCompleted, ErrCodeNotCompleted},
	{services.ErrQuestInactive, ErrCodeQuestInactive},
	{services.ErrSelfReferral, ErrCodeSelfReferral},
	{services.ErrAlreadyReferred, ErrCodeAlreadyReferred},
	{services.ErrReferralFinal, ErrCodeReferralFinal},
	{services.ErrInvalidCode, ErrCodeInvalidCode},
	{services.ErrSnapshotNotFound, ErrCodeSnapshotNotFound},
	{services.ErrInvalidEventType, ErrCodeInvalidEventType},
	{services.ErrInvalidMetadata, ErrCodeInvalidMetadata},
	{services.ErrInvalidPeriod, ErrCodeInvalidPeriod},
}

// statusFor maps a service error to an HTTP status and code.
func statusFor(err error) (int, string) {
	status, code := http.StatusInternalServerError, ErrCodeInternal
	switch {
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrConflict):
		status, code = http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return status, code
	}
	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			return status, sc.code
		}
	}
	return status, code
}

// failErr writes the envelope for a service error. Only 4xx messages are
// echoed; everything else is logged and replaced by a generic message.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status < http.StatusInternalServerError {
		fail(c, status, code, err.Error())
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Error().Err(err).Int("status", status).Msg("service error")
	msg := "internal server error"
	if status == http.StatusServiceUnavailable {
		msg = "temporarily unavailable, retry later"
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
