package httpx

import (
	"context"
	"net"
)

// RequestInfo identifies the transaction a handler is serving.
type RequestInfo struct {
	// ID is generated by the server for every connection.
	ID string
	// CorrelationID is the peer's X-Request-Id header, if any.
	CorrelationID string
	RemoteAddr    net.Addr
	Trace         Trace
}

type infoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(infoKey{}).(RequestInfo)
	return info, ok
}

// RequestIDFrom extracts the server-generated request ID from ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	info, ok := RequestInfoFrom(ctx)
	return info.ID, ok && info.ID != ""
}
