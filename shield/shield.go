// Package shield provides HTTP middleware for the browsermux status API.
// It covers security headers, request ID propagation with a per-request
// structured logger, and HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the standard middleware stack for the status API,
// ordered HeadToGet, SecurityHeaders, RequestID. A nil logger falls back
// to slog.Default.
func DefaultStack(log *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		RequestID(log),
	}
}
