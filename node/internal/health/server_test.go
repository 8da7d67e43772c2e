package health

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func startServer(t *testing.T, apiKey string) (*Server, grpc_health_v1.HealthClient) {
	t.Helper()
	srv, err := NewWithAddr("127.0.0.1:0", apiKey)
	if err != nil {
		t.Fatalf("NewWithAddr: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return srv, grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func TestServer_ReportsServing(t *testing.T) {
	srv, client := startServer(t, "")
	for _, svc := range []string{"", TrackerService} {
		got, err := check(t, context.Background(), client, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q): got %v, want SERVING", svc, got)
		}
	}

	srv.SetTrackerServing(false)
	got, err := check(t, context.Background(), client, TrackerService)
	if err != nil {
		t.Fatal(err)
	}
	if got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after SetTrackerServing(false): got %v", got)
	}
}

func TestServer_APIKey(t *testing.T) {
	_, client := startServer(t, "secret")

	tests := []struct {
		name string
		key  string
		want codes.Code
	}{
		{name: "missing", want: codes.Unauthenticated},
		{name: "wrong", key: "nope", want: codes.Unauthenticated},
		{name: "correct", key: "secret", want: codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.key != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, APIKeyHeader, tc.key)
			}
			_, err := check(t, ctx, client, "")
			if got := status.Code(err); got != tc.want {
				t.Errorf("code: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestServer_ListenError(t *testing.T) {
	if _, err := NewWithAddr("256.0.0.1:bad", ""); err == nil {
		t.Error("expected listen error")
	}
}
