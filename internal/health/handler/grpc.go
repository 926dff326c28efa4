package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// pingTimeout bounds each dependency check.
const pingTimeout = 2 * time.Second

// Pinger checks a dependency (the directory store, a source pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server implements the standard gRPC health service for readiness/liveness.
// It reports SERVING when every pinger succeeds.
type Server struct {
	healthpb.UnimplementedHealthServer
	pingers map[string]Pinger
}

// NewServer returns a health server. Nil pingers are ignored.
func NewServer(pingers map[string]Pinger) *Server {
	p := make(map[string]Pinger, len(pingers))
	for name, pinger := range pingers {
		if pinger != nil {
			p[name] = pinger
		}
	}
	return &Server{pingers: p}
}

// Check returns service health status for Kubernetes, load balancers, and CI.
// A non-empty service name other than the admin service is NotFound.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && !knownServices[name] {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	for name, p := range s.pingers {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("health: %s not ready: %v", name, err)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// knownServices are the service names Check answers for besides the empty (whole server) name.
var knownServices = map[string]bool{
	"dbsync.admin.v1.AdminService": true,
}
