// Package handlers provides HTTP handler implementations for the bot's API:
// the Telegram webhook, mini-app login, companion catalog and admin routes.
//
// This file defines the response utilities shared by all endpoints.
//
// Conventions:
//   - Every error response is an ErrorResponse with a stable `code`.
//   - `fail()` logs 5xx at error and 401s at warn (rejected webhook secrets
//     and admin tokens are worth seeing) with the request-scoped logger.
//   - `failService()` maps service sentinel errors to status and code.
//   - `ok()` and `noContent()` write success responses.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "companion not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "ok": true }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-companion-bot/internal/http/middleware"
	"github.com/tbourn/go-companion-bot/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message (safe to show to users)
	Message string `json:"message"`
}

// fail aborts the request with a structured error. Server errors are logged
// at error level, authentication rejections at warn.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	lg := middleware.LoggerFrom(c)
	switch {
	case status >= http.StatusInternalServerError:
		lg.Error().Int("status", status).Str("code", code).Str("message", msg).Msg("api error")
	case status == http.StatusUnauthorized:
		lg.Warn().Str("code", code).Str("path", c.FullPath()).Msg("request rejected")
	}

	c.AbortWithStatusJSON(status, resp)
}

// failService maps a service error to a response. notFoundMsg is shown for
// services.ErrNotFound; anything unrecognised is a 500 with internalCode.
func failService(c *gin.Context, err error, internalCode, notFoundMsg string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, notFoundMsg)
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
	default:
		fail(c, http.StatusInternalServerError, internalCode, err.Error())
	}
}

// Fail is the exported variant of fail(), used by the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes 204, e.g. after a companion update.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
