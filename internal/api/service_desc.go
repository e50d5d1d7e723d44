package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.causality.v1.CausalityService"

// Method names of the causality service.
const (
	MethodAggregateProbableCauses = "AggregateProbableCauses"
	MethodListProbableCauses      = "ListProbableCauses"
	MethodGetViewConfiguration    = "GetViewConfiguration"
	MethodPageEvidence            = "PageEvidence"
	MethodLatestEvidenceID        = "LatestEvidenceId"
	MethodPageCausalityData       = "PageCausalityData"
	MethodCausalityColumnValues   = "GetCausalityDataColumnValues"
)

// CausalityServer is the server API for the causality service. Every message is a
// google.protobuf.Struct whose fields are documented on the codec functions.
type CausalityServer interface {
	AggregateProbableCauses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProbableCauses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetViewConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PageEvidence(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LatestEvidenceId(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PageCausalityData(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCausalityDataColumnValues(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// CausalityServiceDesc describes the causality service for grpc.Server registration.
var CausalityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CausalityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodAggregateProbableCauses, Handler: unaryHandler(MethodAggregateProbableCauses, CausalityServer.AggregateProbableCauses)},
		{MethodName: MethodListProbableCauses, Handler: unaryHandler(MethodListProbableCauses, CausalityServer.ListProbableCauses)},
		{MethodName: MethodGetViewConfiguration, Handler: unaryHandler(MethodGetViewConfiguration, CausalityServer.GetViewConfiguration)},
		{MethodName: MethodPageEvidence, Handler: unaryHandler(MethodPageEvidence, CausalityServer.PageEvidence)},
		{MethodName: MethodLatestEvidenceID, Handler: unaryHandler(MethodLatestEvidenceID, CausalityServer.LatestEvidenceId)},
		{MethodName: MethodPageCausalityData, Handler: unaryHandler(MethodPageCausalityData, CausalityServer.PageCausalityData)},
		{MethodName: MethodCausalityColumnValues, Handler: unaryHandler(MethodCausalityColumnValues, CausalityServer.GetCausalityDataColumnValues)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/causality/v1/causality.proto",
}

// RegisterCausalityServer registers srv with the gRPC registrar.
func RegisterCausalityServer(s grpc.ServiceRegistrar, srv CausalityServer) {
	s.RegisterService(&CausalityServiceDesc, srv)
}

// FullMethod returns the "/service/method" path of a causality method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryMethod func(CausalityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// methodHandler matches the Handler field of grpc.MethodDesc.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(method string, call unaryMethod) methodHandler {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CausalityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CausalityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CausalityClient is a thin client for the causality service.
type CausalityClient struct {
	cc grpc.ClientConnInterface
}

// NewCausalityClient wraps a client connection.
func NewCausalityClient(cc grpc.ClientConnInterface) *CausalityClient {
	return &CausalityClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *CausalityClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
