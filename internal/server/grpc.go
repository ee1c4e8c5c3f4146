package server

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "seedpool.v1.Random"

const (
	bytesMethod  = "/" + ServiceName + "/Bytes"
	reseedMethod = "/" + ServiceName + "/Reseed"
)

// RandomServer is the server API of seedpool.v1.Random. The messages are
// protobuf well-known types, so no generated code is needed.
type RandomServer interface {
	Bytes(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error)
	Reseed(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// RandomServiceDesc describes seedpool.v1.Random for grpc.Server.RegisterService.
var RandomServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RandomServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Bytes", Handler: bytesHandler},
		{MethodName: "Reseed", Handler: reseedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seedpool/v1/random.proto",
}

func bytesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RandomServer).Bytes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bytesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RandomServer).Bytes(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func reseedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RandomServer).Reseed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reseedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RandomServer).Reseed(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type grpcRandom struct {
	svc *Service
}

var _ RandomServer = (*grpcRandom)(nil)

func (g *grpcRandom) Bytes(ctx context.Context, in *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error) {
	n := in.GetValue()
	if n > math.MaxInt32 {
		return nil, status.Errorf(codes.InvalidArgument, "n too large: %d", n)
	}
	out, err := g.svc.Bytes(ctx, int(n))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(out), nil
}

func (g *grpcRandom) Reseed(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if _, err := g.svc.Reseed(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case IsEntropyFailure(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func loggingInterceptor(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc failed", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		} else {
			logger.Debug("rpc", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

// NewGRPCServer registers seedpool.v1.Random and the standard health service
// on a new grpc.Server.
func NewGRPCServer(svc *Service, logger hclog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger.Named("grpc"))))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&RandomServiceDesc, &grpcRandom{svc: svc})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return srv, healthServer
}

// Client calls seedpool.v1.Random.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Bytes requests n bytes of generator output.
func (c *Client) Bytes(ctx context.Context, n uint32, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, bytesMethod, wrapperspb.UInt32(n), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Reseed asks the server to reseed its generator now.
func (c *Client) Reseed(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, reseedMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}
