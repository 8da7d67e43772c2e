package health

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyHeader is the metadata key carrying the API key.
const APIKeyHeader = "x-api-key"

// checkKey reports whether ctx carries key. An empty key allows everything.
func checkKey(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(APIKeyHeader)
	if len(vals) == 0 || vals[0] != key {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryAPIKey returns a UnaryServerInterceptor enforcing key.
func UnaryAPIKey(key string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := checkKey(ctx, key); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAPIKey returns a StreamServerInterceptor enforcing key. Health Watch
// is a streaming call.
func StreamAPIKey(key string) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkKey(ss.Context(), key); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
