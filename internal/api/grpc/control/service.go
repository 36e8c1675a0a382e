package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of fallguard.v1.ControlService.
const (
	ServiceName                    = "fallguard.v1.ControlService"
	SelectContactFullMethodName    = "/" + ServiceName + "/SelectContact"
	SelectDeviceFullMethodName     = "/" + ServiceName + "/SelectDevice"
	CancelEscalationFullMethodName = "/" + ServiceName + "/CancelEscalation"
	GetStatusFullMethodName        = "/" + ServiceName + "/GetStatus"
	WatchStatusFullMethodName      = "/" + ServiceName + "/WatchStatus"
)

// ControlServer is the server API for ControlService.
type ControlServer interface {
	SelectContact(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	SelectDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelEscalation(ctx context.Context, req *emptypb.Empty) (*wrapperspb.BoolValue, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	WatchStatus(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedControlServer answers every method with codes.Unimplemented.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) SelectContact(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SelectContact not implemented")
}

func (UnimplementedControlServer) SelectDevice(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SelectDevice not implemented")
}

func (UnimplementedControlServer) CancelEscalation(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelEscalation not implemented")
}

func (UnimplementedControlServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedControlServer) WatchStatus(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method WatchStatus not implemented")
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// ControlServiceDesc is the grpc.ServiceDesc for ControlService.
//
//nolint:gochecknoglobals // Service descriptors are package level by convention.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SelectContact", Handler: selectContactHandler},
		{MethodName: "SelectDevice", Handler: selectDeviceHandler},
		{MethodName: "CancelEscalation", Handler: cancelEscalationHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "fallguard/v1/control.proto",
}

// unary adapts a typed unary method to a grpc.MethodDesc handler.
func unary[Req any, Res any](
	fullMethod string,
	call func(srv ControlServer, ctx context.Context, req *Req) (*Res, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*Req))
		}

		return interceptor(ctx, in, info, handler)
	}
}

//nolint:gochecknoglobals // Handlers referenced by ControlServiceDesc.
var (
	selectContactHandler = unary(SelectContactFullMethodName,
		func(srv ControlServer, ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
			return srv.SelectContact(ctx, req)
		})
	selectDeviceHandler = unary(SelectDeviceFullMethodName,
		func(srv ControlServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.SelectDevice(ctx, req)
		})
	cancelEscalationHandler = unary(CancelEscalationFullMethodName,
		func(srv ControlServer, ctx context.Context, req *emptypb.Empty) (*wrapperspb.BoolValue, error) {
			return srv.CancelEscalation(ctx, req)
		})
	getStatusHandler = unary(GetStatusFullMethodName,
		func(srv ControlServer, ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
			return srv.GetStatus(ctx, req)
		})
)

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(ControlServer).WatchStatus(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ControlClient is the client API for ControlService.
type ControlClient interface {
	SelectContact(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	SelectDevice(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CancelEscalation(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchStatus(
		ctx context.Context,
		in *emptypb.Empty,
		opts ...grpc.CallOption,
	) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type controlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient creates a ControlService client on cc.
func NewControlClient(cc grpc.ClientConnInterface) ControlClient {
	return &controlClient{cc: cc}
}

func (c *controlClient) SelectContact(
	ctx context.Context,
	in *wrapperspb.StringValue,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SelectContactFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *controlClient) SelectDevice(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SelectDeviceFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *controlClient) CancelEscalation(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, CancelEscalationFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *controlClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetStatusFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *controlClient) WatchStatus(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ControlServiceDesc.Streams[0], WatchStatusFullMethodName, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}

	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
