package kit

import "context"

type contextKey string

const (
	// TransportKey names the transport a request arrived on: "mcp",
	// "mcp_quic" or "http".
	TransportKey contextKey = "kit_transport"
	// RequestIDKey carries the per-request correlation ID.
	RequestIDKey contextKey = "kit_request_id"
	// ProfileKey carries the browser profile name a request targets.
	ProfileKey contextKey = "kit_profile"
	// SessionIDKey carries the transport session a request belongs to,
	// set for connection-oriented transports.
	SessionIDKey contextKey = "kit_session_id"
	// RemoteAddrKey carries the peer address for network transports.
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithProfile(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ProfileKey, name)
}
func GetProfile(ctx context.Context) string {
	v, _ := ctx.Value(ProfileKey).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
