package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of the admin service.
const (
	ServiceName               = "dbsync.admin.v1.AdminService"
	TriggerUserSyncFullMethod = "/" + ServiceName + "/TriggerUserSync"
	GetPoolMetricsFullMethod  = "/" + ServiceName + "/GetPoolMetrics"
)

// AdminServiceServer is the server API for the admin service. Messages are protobuf well-known types:
// TriggerUserSync takes the username and returns {added, updated, failed}; GetPoolMetrics returns
// the provider's pool statistics.
type AdminServiceServer interface {
	TriggerUserSync(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetPoolMetrics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterAdminServiceServer registers srv with s.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

func triggerUserSyncHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).TriggerUserSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriggerUserSyncFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).TriggerUserSync(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getPoolMetricsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).GetPoolMetrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPoolMetricsFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).GetPoolMetrics(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminServiceDesc is the grpc.ServiceDesc for the admin service.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TriggerUserSync", Handler: triggerUserSyncHandler},
		{MethodName: "GetPoolMetrics", Handler: getPoolMetricsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dbsync/admin/v1/admin.proto",
}

// AdminClient calls the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient returns a client over cc.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

// TriggerUserSync synchronizes one username of the caller's realm.
func (c *AdminClient) TriggerUserSync(ctx context.Context, username string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriggerUserSyncFullMethod, wrapperspb.String(username), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPoolMetrics returns the pool statistics of the caller's realm provider.
func (c *AdminClient) GetPoolMetrics(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetPoolMetricsFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
