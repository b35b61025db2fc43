package transport

import (
	"context"

	"google.golang.org/grpc"

	"graphscape/pkg/protocol"
)

// ChunkSender is the server side of a structuring stream
type ChunkSender interface {
	Send(*protocol.StructureChunk) error
	Context() context.Context
}

// BackendServer is the server side of the backend RPC surface. It lets
// local tools and tests stand in for the real backend.
type BackendServer interface {
	Send(context.Context, *protocol.ActionRequest) (*protocol.ActionResponse, error)
	StructureInputStream(*protocol.StructureRequest, ChunkSender) error
	StructureInput(context.Context, *protocol.StructureRequest) (*protocol.StructureResponse, error)
	SuggestAlgorithms(context.Context, *protocol.AlgorithmSuggestionRequest) (*protocol.AlgorithmSuggestionResponse, error)
	Check(context.Context) (*protocol.HealthCheckResponse, error)
}

// NewServer creates a grpc.Server speaking the protocol codec
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(protocol.Codec{})}, opts...)...)
}

// RegisterBackendServer registers srv under all three backend services
func RegisterBackendServer(r grpc.ServiceRegistrar, srv BackendServer) {
	r.RegisterService(&orchestratorServiceDesc, srv)
	r.RegisterService(&gatewayServiceDesc, srv)
	r.RegisterService(&healthServiceDesc, srv)
}

type chunkSender struct {
	grpc.ServerStream
}

func (s chunkSender) Send(c *protocol.StructureChunk) error {
	return s.ServerStream.SendMsg(c)
}

func unaryHandler[Req any, PReq interface {
	*Req
	protocol.Message
}](fullMethod string, call func(BackendServer, context.Context, PReq) (interface{}, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := PReq(new(Req))
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BackendServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BackendServer), ctx, req.(PReq))
		})
	}
}

var orchestratorServiceDesc = grpc.ServiceDesc{
	ServiceName: "orchestrator.Orchestrator",
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler: unaryHandler(MethodSend, func(s BackendServer, ctx context.Context, req *protocol.ActionRequest) (interface{}, error) {
				return s.Send(ctx, req)
			}),
		},
	},
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: "shared.v1.LlmGateway",
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StructureInput",
			Handler: unaryHandler(MethodStructureInput, func(s BackendServer, ctx context.Context, req *protocol.StructureRequest) (interface{}, error) {
				return s.StructureInput(ctx, req)
			}),
		},
		{
			MethodName: "SuggestAlgorithms",
			Handler: unaryHandler(MethodSuggestAlgorithms, func(s BackendServer, ctx context.Context, req *protocol.AlgorithmSuggestionRequest) (interface{}, error) {
				return s.SuggestAlgorithms(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StructureInputStream",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := &protocol.StructureRequest{}
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(BackendServer).StructureInputStream(req, chunkSender{stream})
			},
		},
	},
}

var healthServiceDesc = grpc.ServiceDesc{
	ServiceName: "health.Health",
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Check",
			Handler: unaryHandler(MethodHealthCheck, func(s BackendServer, ctx context.Context, _ *protocol.HealthCheckRequest) (interface{}, error) {
				return s.Check(ctx)
			}),
		},
	},
}
