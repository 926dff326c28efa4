package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"db-user-sync/internal/security"
	"db-user-sync/internal/server/interceptors"
	synchandler "db-user-sync/internal/sync/handler"
	"db-user-sync/internal/telemetry"
)

// Health RPCs; they never require a Bearer token and are not reported as events.
var (
	healthCheckMethod = "/" + healthpb.Health_ServiceDesc.ServiceName + "/Check"
	healthWatchMethod = "/" + healthpb.Health_ServiceDesc.ServiceName + "/Watch"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Admin is the sync admin service. If nil (no JWT public key configured), it is not registered.
	Admin synchandler.AdminServiceServer
	// Health answers readiness checks. If nil, the health service is not registered.
	Health healthpb.HealthServer
}

// RegisterServices registers the gRPC services with the given server.
//
// Service → handler mapping:
//   - dbsync.admin.v1.AdminService → internal/sync/handler
//   - grpc.health.v1.Health        → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Admin != nil {
		synchandler.RegisterAdminServiceServer(s, deps.Admin)
	}
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}

// Options configures NewGRPCServer.
type Options struct {
	// Tokens validates admin Bearer tokens. If nil, no auth interceptor is installed.
	Tokens *security.TokenProvider
	// Events receives a grpc_request event per RPC. May be nil.
	Events telemetry.EventEmitter
	// TracerProvider and MeterProvider instrument RPCs; nil uses the global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewGRPCServer returns a gRPC server with OTel instrumentation, the telemetry interceptor and,
// when tokens are configured, the auth interceptor.
func NewGRPCServer(opts Options) *grpc.Server {
	var handlerOpts []otelgrpc.Option
	if opts.TracerProvider != nil {
		handlerOpts = append(handlerOpts, otelgrpc.WithTracerProvider(opts.TracerProvider))
	}
	if opts.MeterProvider != nil {
		handlerOpts = append(handlerOpts, otelgrpc.WithMeterProvider(opts.MeterProvider))
	}
	unary := []grpc.UnaryServerInterceptor{
		interceptors.TelemetryUnary(opts.Events, map[string]bool{healthCheckMethod: true}),
	}
	if opts.Tokens != nil {
		unary = append(unary, interceptors.AuthUnary(opts.Tokens, map[string]bool{
			healthCheckMethod: true,
			healthWatchMethod: true,
		}))
	}
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(handlerOpts...)),
		grpc.ChainUnaryInterceptor(unary...),
	)
}
