package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "smartsite.Platform"

// healthProbeInterval is how often the serving status is refreshed from
// the dependency checks.
const healthProbeInterval = 15 * time.Second

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the health service and reflection, and returns both.
func NewGRPCServer(authToken string) (*grpc.Server, *grpchealth.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamAuthInterceptor(authToken),
		),
	)

	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// WatchHealth keeps hs in step with the dependency checks until ctx is
// done, then marks every service NOT_SERVING.
func (s *Server) WatchHealth(ctx context.Context, hs *grpchealth.Server) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if s.systemStatus(ctx).Status != "healthy" {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}
	update()

	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
