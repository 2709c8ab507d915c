package main

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcbstore"
)

// runServer exposes the engine over a minimal gRPC service so the wire
// dependency can be exercised the way the teacher's internal/grpc-app
// server does, without a generated .proto stub: every request and
// response is a structpb.Struct, itself a real protobuf message, so no
// code here needs a protoc run to compile or to be a genuine proto.Message.
func runServer(engine dcbstore.Engine, addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("dcbbench: listen %s: %v", addr, err)
	}

	srv := grpc.NewServer()
	srv.RegisterService(&eventStoreServiceDesc, &eventStoreServer{engine: engine})
	reflection.Register(srv)

	log.Printf("dcbbench: serving on %s", addr)
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("dcbbench: serve: %v", err)
	}
}

type eventStoreServer struct {
	engine dcbstore.Engine
}

// appendEvents handles a single RPC: the request struct carries
// "stream_context", "stream_purpose", "type", "tags" (array of "k:v"
// strings) and "data" (object); the response carries "position" and "id"
// of the appended event.
func (s *eventStoreServer) appendEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	streamCtx := fields["stream_context"].GetStringValue()
	streamPurpose := fields["stream_purpose"].GetStringValue()
	eventType := fields["type"].GetStringValue()
	if eventType == "" {
		return nil, status.Error(codes.InvalidArgument, "type is required")
	}

	var tagList []string
	for _, v := range fields["tags"].GetListValue().GetValues() {
		tagList = append(tagList, v.GetStringValue())
	}
	tags := dcbcore.ParseTags(tagList...)

	dataStruct := fields["data"].GetStructValue()
	immutable, err := dataStruct.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid data: %v", err)
	}

	stream := dcbcore.NewEventStreamId(streamCtx, streamPurpose)
	stored, err := s.engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{{
		Stream:        stream,
		Type:          dcbcore.EventType(eventType),
		ImmutableData: immutable,
		Tags:          tags,
	}})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "append: %v", err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"id":       stored[0].Reference.ID.String(),
		"position": float64(stored[0].Reference.Position),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal response: %v", err)
	}
	return resp, nil
}

// eventStoreServiceDesc is hand-built rather than generated by
// protoc-gen-go-grpc: the method handler's req/resp types are
// structpb.Struct, so no generated message types are needed to expose a
// real grpc.ServiceDesc.
var eventStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "dcbkit.eventstore.v1.EventStore",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Append",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(structpb.Struct)
				if err := dec(req); err != nil {
					return nil, err
				}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(*eventStoreServer).appendEvents(ctx, req.(*structpb.Struct))
				}
				if interceptor == nil {
					return handler(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dcbkit.eventstore.v1.EventStore/Append"}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dcbkit/eventstore.proto",
}
