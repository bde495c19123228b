// Package rpc exposes the gRPC health service, reporting whether the
// backing store is reachable.
package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "imageinsight.Analysis"

// Pinger is anything whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	pinger Pinger
	log    *zap.Logger
}

// StartGRPCServer listens on port (0 picks a free one), runs one readiness
// check and starts serving in the background.
func StartGRPCServer(port int, pinger Pinger, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
		pinger: pinger,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Check(context.Background())

	go func() {
		log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := s.grpc.Serve(lis); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Check pings the store once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn("store unreachable, reporting NOT_SERVING", zap.Error(err))
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-checks readiness every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// GracefulStop marks every service NOT_SERVING and drains open calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
