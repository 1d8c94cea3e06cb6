// Package relay forwards emitted fall events to a remote sink over gRPC.
//
// The wire message is a google.protobuf.Struct so that downstream consumers
// can read events without a generated schema.
package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	EventSinkServiceName             = "falldetect.v1.EventSink"
	EventSink_Publish_FullMethodName = "/" + EventSinkServiceName + "/Publish"
)

// #region client-api
// EventSinkClient is the client API for the EventSink service.
type EventSinkClient interface {
	Publish(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type eventSinkClient struct {
	cc grpc.ClientConnInterface
}

// NewEventSinkClient binds an EventSinkClient to cc.
func NewEventSinkClient(cc grpc.ClientConnInterface) EventSinkClient {
	return &eventSinkClient{cc: cc}
}

func (c *eventSinkClient) Publish(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, EventSink_Publish_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-api

// #region server-api
// EventSinkServer is the server API for the EventSink service.
type EventSinkServer interface {
	Publish(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterEventSinkServer attaches srv to s.
func RegisterEventSinkServer(s grpc.ServiceRegistrar, srv EventSinkServer) {
	s.RegisterService(&EventSink_ServiceDesc, srv)
}

func _EventSink_Publish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventSinkServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: EventSink_Publish_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventSinkServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EventSink_ServiceDesc describes the EventSink service for grpc.ServiceRegistrar.
var EventSink_ServiceDesc = grpc.ServiceDesc{
	ServiceName: EventSinkServiceName,
	HandlerType: (*EventSinkServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler:    _EventSink_Publish_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "falldetect/v1/event_sink.proto",
}

// #endregion server-api
