package api

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-causality/internal/config"
)

type echoServer struct{}

func (echoServer) AggregateProbableCauses(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func (echoServer) ListProbableCauses(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.NotFound, "no such evidence")
}

func (echoServer) GetViewConfiguration(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func (echoServer) PageEvidence(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func (echoServer) LatestEvidenceId(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func (echoServer) PageCausalityData(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func (echoServer) GetCausalityDataColumnValues(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return in, nil
}

func startBufconn(t *testing.T, srv CausalityServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServerOnListener(config.ServerConfig{}, lis, srv)
	go func() { _ = server.Start() }()
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerRoutesStructMessages(t *testing.T) {
	conn := startBufconn(t, echoServer{})
	client := NewCausalityClient(conn)

	in := mustStruct(t, map[string]any{"evidence_id": 7})
	out, err := client.Call(context.Background(), MethodAggregateProbableCauses, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GetFields()["evidence_id"].GetNumberValue() != 7 {
		t.Fatalf("unexpected echo: %v", out)
	}

	_, err = client.Call(context.Background(), MethodListProbableCauses, in)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestServerRegistersHealth(t *testing.T) {
	conn := startBufconn(t, echoServer{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health status: %v", resp.GetStatus())
	}
}

func TestFullMethod(t *testing.T) {
	if got := FullMethod(MethodPageEvidence); got != "/mirador.causality.v1.CausalityService/PageEvidence" {
		t.Fatalf("unexpected full method %q", got)
	}
}

func TestServiceDescHandlersDecodeAndIntercept(t *testing.T) {
	in := mustStruct(t, map[string]any{"evidence_id": 3})
	dec := func(m any) error {
		proto.Merge(m.(*structpb.Struct), in)
		return nil
	}

	for _, method := range CausalityServiceDesc.Methods {
		if method.Handler == nil {
			t.Fatalf("method %s has no handler", method.MethodName)
		}
	}

	handler := CausalityServiceDesc.Methods[0].Handler
	out, err := handler(echoServer{}, context.Background(), dec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(*structpb.Struct).GetFields()["evidence_id"].GetNumberValue() != 3 {
		t.Fatalf("unexpected output: %v", out)
	}

	var seen string
	interceptor := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		seen = info.FullMethod
		return next(ctx, req)
	}
	if _, err := handler(echoServer{}, context.Background(), dec, interceptor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != FullMethod(CausalityServiceDesc.Methods[0].MethodName) {
		t.Fatalf("interceptor saw %q", seen)
	}
}
