package relay

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// Handler consumes one decoded event on the server side.
type Handler func(ctx context.Context, ev state.FallEvent) error

// Server implements EventSinkServer by decoding events and passing them to a Handler.
type Server struct {
	handler Handler
}

// NewServer returns a Server that delivers every valid event to h.
func NewServer(h Handler) *Server {
	return &Server{handler: h}
}

// Publish decodes in and hands it to the handler.
func (s *Server) Publish(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	ev, err := DecodeEvent(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.handler != nil {
		if err := s.handler(ctx, ev); err != nil {
			return nil, status.Errorf(codes.Internal, "handle event %s: %v", ev.ID, err)
		}
	}
	return &emptypb.Empty{}, nil
}
