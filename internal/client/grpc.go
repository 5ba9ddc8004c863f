package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProber checks the gRPC health service of a SmartSite server.
type HealthProber struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthProber connects to the given gRPC address. The connection is
// established lazily on the first Check.
func NewHealthProber(addr string) (*HealthProber, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &HealthProber{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
	}, nil
}

func (p *HealthProber) Close() error {
	return p.conn.Close()
}

// Check returns the serving status of service ("" for the whole server),
// e.g. "SERVING".
func (p *HealthProber) Check(ctx context.Context, service string) (string, error) {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus().String(), nil
}
