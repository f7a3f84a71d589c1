package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, g *GRPCServer, name string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := g.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: name})
	if err != nil {
		t.Fatalf("Check(%q) error = %v", name, err)
	}
	return resp.Status
}

func TestCheckTranslatorUpdatesHealth(t *testing.T) {
	tr := &fakeTranslator{}
	g := NewGRPCServer(tr, quietLogger(), 0)

	if got := servingStatus(t, g, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("process status = %v", got)
	}

	if err := g.CheckTranslator(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	if got := servingStatus(t, g, TranslatorService); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("translator status = %v; want SERVING", got)
	}

	tr.healthy = errors.New("down")
	if err := g.CheckTranslator(context.Background(), time.Second); err == nil {
		t.Error("expected error")
	}
	if got := servingStatus(t, g, TranslatorService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("translator status = %v; want NOT_SERVING", got)
	}
}
