package grpcx

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotsuggest/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries the request id over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

const maxRequestIDLen = 128

// The id shares the httpx context slot, so loggers and handlers read one
// value regardless of the transport that carried the call.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return httpx.ContextWithRequestID(ctx, id)
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(RequestIDMetadataKey)
	if len(vals) == 0 {
		return ""
	}
	id := strings.TrimSpace(vals[0])
	if len(id) > maxRequestIDLen {
		id = id[:maxRequestIDLen]
	}
	return id
}

func newRequestID() string {
	return uuid.NewString()
}
