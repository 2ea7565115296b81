package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, 5, 0)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestComputeSlotsOverGRPC(t *testing.T) {
	conn := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spec := model.NewAvailabilitySpec("dr-1", "UTC", model.DateSpan{Start: "2025-02-03", End: "2025-02-03"})
	spec.ExistingAppointments = []model.ExistingBooking{{Start: "2025-02-03T10:00:00Z", End: "2025-02-03T10:30:00Z"}}

	got, err := NewClient(conn).ComputeSlots(ctx, spec, 2)
	if err != nil {
		t.Fatalf("ComputeSlots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if got[0].StartISO != "2025-02-03T09:00:00+00:00" || got[1].StartISO != "2025-02-03T11:00:00+00:00" || got[1].ProviderID != "dr-1" {
		t.Fatalf("unexpected slots %+v", got)
	}
}

func TestComputeSlotsInvalidArgument(t *testing.T) {
	conn := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spec := model.NewAvailabilitySpec("dr-1", "Nowhere/Land", model.DateSpan{Start: "2025-02-03", End: "2025-02-03"})
	_, err := NewClient(conn).ComputeSlots(ctx, spec, 5)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestHealthServing(t *testing.T) {
	conn := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
