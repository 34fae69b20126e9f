// Package kit provides the endpoint plumbing shared by browsermux's
// transports: one request-handler shape, composable middleware, and
// context carriers for request metadata.
package kit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/browsermux/idgen"
)

// Endpoint is the transport-agnostic form of one operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument wraps outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// RequestID stamps a generated request ID onto the context when the
// transport did not already provide one.
func RequestID(gen idgen.Generator) Middleware {
	if gen == nil {
		gen = idgen.Prefixed("req_", idgen.Default)
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, gen())
			}
			return next(ctx, req)
		}
	}
}

// Logging reports every call for op with its duration and outcome.
func Logging(log *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"op", op,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if profile := GetProfile(ctx); profile != "" {
				attrs = append(attrs, "profile", profile)
			}
			if err != nil {
				log.Warn("kit: endpoint failed", append(attrs, "error", err)...)
				return resp, err
			}
			log.Debug("kit: endpoint served", attrs...)
			return resp, err
		}
	}
}
