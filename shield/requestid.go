package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/browsermux/idgen"
	"github.com/hazyhaar/browsermux/kit"
)

// RequestID returns middleware that tags each request with an ID. An
// incoming X-Request-ID header is trusted and kept; otherwise a fresh
// "req_" ID is generated. The ID is stored under kit.RequestIDKey,
// echoed back in the response header, and a per-request logger carrying
// it is stored under LoggerKey.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	newID := idgen.Prefixed("req_", idgen.NanoID(8))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = newID()
			}

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set("X-Request-ID", id)

			logger := log.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			logger.Debug("http request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
