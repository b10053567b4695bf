package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---------------------------------------------------------------------------
// Native gRPC transport
//
// The Connect handlers already accept gRPC over HTTP/2. This transport is
// for deployments that run a grpc.Server, for example behind a Unix
// socket. Messages use the same CBOR codec on both.
// ---------------------------------------------------------------------------

// assemblerServer is the handler type checked by grpc.RegisterService.
type assemblerServer interface {
	Assemble(context.Context, *AssembleRequest) (*AssembleResponse, error)
	Inspect(context.Context, *InspectRequest) (*InspectResponse, error)
}

var assemblerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*assemblerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assemble", Handler: assembleGRPCHandler},
		{MethodName: "Inspect", Handler: inspectGRPCHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jasm/v1/assembler.cbor",
}

func grpcError(err error) error {
	if isRequestError(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if errors.Is(err, ErrStopped) {
		return status.Error(codes.Unavailable, err.Error())
	}
	if st := status.FromContextError(err); st.Code() != codes.Unknown {
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func assembleGRPCHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AssembleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(assemblerServer).Assemble(ctx, req.(*AssembleRequest))
		if err != nil {
			return nil, grpcError(err)
		}
		return resp, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AssembleProcedure}
	return interceptor(ctx, in, info, call)
}

func inspectGRPCHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InspectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(assemblerServer).Inspect(ctx, req.(*InspectRequest))
		if err != nil {
			return nil, grpcError(err)
		}
		return resp, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InspectProcedure}
	return interceptor(ctx, in, info, call)
}

// RegisterGRPC registers the service on gs. The server must have been
// created with grpc.ForceServerCodec(Codec{}).
func (s *AssemblerService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&assemblerServiceDesc, s)
}

// NewGRPCServer creates a grpc.Server using the CBOR codec and registers
// the service on it.
func (s *AssemblerService) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(Codec{})}, opts...)
	gs := grpc.NewServer(opts...)
	s.RegisterGRPC(gs)
	return gs
}

// GRPCClient calls an AssemblerService over native gRPC.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target without transport security.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	out := new(AssembleResponse)
	if err := c.conn.Invoke(ctx, AssembleProcedure, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	out := new(InspectResponse)
	if err := c.conn.Invoke(ctx, InspectProcedure, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
