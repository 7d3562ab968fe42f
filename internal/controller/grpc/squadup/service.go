package squadup

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service. Requests and responses
// are google.protobuf.Struct documents carrying the same JSON shapes as the
// HTTP API.
const ServiceName = "squadup.v1.SquadUp"

const (
	LoginMethod           = "/" + ServiceName + "/Login"
	SendMessageMethod     = "/" + ServiceName + "/SendMessage"
	MarkDeliveredMethod   = "/" + ServiceName + "/MarkDelivered"
	MarkReadMethod        = "/" + ServiceName + "/MarkRead"
	VoteMethod            = "/" + ServiceName + "/Vote"
	GetGroupHistoryMethod = "/" + ServiceName + "/GetGroupHistory"
)

type SquadUpServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkDelivered(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Vote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGroupHistory(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func RegisterSquadUpServer(s grpc.ServiceRegistrar, srv SquadUpServer) {
	s.RegisterService(&SquadUp_ServiceDesc, srv)
}

type unaryCall func(SquadUpServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SquadUpServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SquadUpServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func getGroupHistoryHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SquadUpServer).GetGroupHistory(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var SquadUp_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SquadUpServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(LoginMethod, SquadUpServer.Login)},
		{MethodName: "SendMessage", Handler: unaryHandler(SendMessageMethod, SquadUpServer.SendMessage)},
		{MethodName: "MarkDelivered", Handler: unaryHandler(MarkDeliveredMethod, SquadUpServer.MarkDelivered)},
		{MethodName: "MarkRead", Handler: unaryHandler(MarkReadMethod, SquadUpServer.MarkRead)},
		{MethodName: "Vote", Handler: unaryHandler(VoteMethod, SquadUpServer.Vote)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetGroupHistory",
			Handler:       getGroupHistoryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "squadup/v1/squadup.proto",
}

// Client calls the service over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, LoginMethod, in, opts...)
}

func (c *Client) SendMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SendMessageMethod, in, opts...)
}

func (c *Client) MarkDelivered(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MarkDeliveredMethod, in, opts...)
}

func (c *Client) MarkRead(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MarkReadMethod, in, opts...)
}

func (c *Client) Vote(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, VoteMethod, in, opts...)
}

func (c *Client) GetGroupHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &SquadUp_ServiceDesc.Streams[0], GetGroupHistoryMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
