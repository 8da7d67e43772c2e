package health

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestStreamAPIKey(t *testing.T) {
	interceptor := StreamAPIKey("secret")
	handler := func(interface{}, grpc.ServerStream) error { return nil }

	tests := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{name: "no metadata", ctx: context.Background(), want: codes.Unauthenticated},
		{name: "wrong key", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(APIKeyHeader, "x")), want: codes.Unauthenticated},
		{name: "correct key", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(APIKeyHeader, "secret")), want: codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := interceptor(nil, fakeStream{ctx: tc.ctx}, &grpc.StreamServerInfo{}, handler)
			if got := status.Code(err); got != tc.want {
				t.Errorf("code: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUnaryAPIKey_EmptyKeyAllowsAll(t *testing.T) {
	interceptor := UnaryAPIKey("")
	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })
	if err != nil || resp != "ok" {
		t.Errorf("got %v, %v", resp, err)
	}
}
