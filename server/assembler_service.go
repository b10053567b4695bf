package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/jasm/asm"
)

const (
	// ServiceName is the fully qualified RPC service name.
	ServiceName = "jasm.v1.AssemblerService"

	AssembleProcedure = "/" + ServiceName + "/Assemble"
	InspectProcedure  = "/" + ServiceName + "/Inspect"
)

// AssemblerService assembles sources and disassembles class files on
// behalf of remote clients.
type AssemblerService struct {
	worker *Worker
	opts   asm.Options
}

// NewAssemblerService creates an AssemblerService. opts supplies the
// defaults for every request; its Resolver, FileName and Includer are
// replaced per request.
func NewAssemblerService(worker *Worker, opts asm.Options) *AssemblerService {
	return &AssemblerService{worker: worker, opts: opts}
}

// Assemble assembles one source file.
func (s *AssemblerService) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.worker.Resolver(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := assemble(res, s.opts, req)
	if err != nil {
		return nil, &requestError{err}
	}
	return resp, nil
}

// Inspect disassembles one class file.
func (s *AssemblerService) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := inspect(req)
	if err != nil {
		return nil, &requestError{err}
	}
	return resp, nil
}

// requestError marks a fault in the request rather than in the server.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func isRequestError(err error) bool {
	var re *requestError
	return errors.As(err, &re)
}

// ---------------------------------------------------------------------------
// Connect transport
// ---------------------------------------------------------------------------

func connectError(err error) error {
	if isRequestError(err) {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	if errors.Is(err, ErrStopped) {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// Handler returns the Connect handlers of the service, mounted under
// ServiceName. They speak the Connect, gRPC and gRPC-Web protocols with
// the CBOR codec.
func (s *AssemblerService) Handler() (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(AssembleProcedure, connect.NewUnaryHandler(
		AssembleProcedure,
		func(ctx context.Context, req *connect.Request[AssembleRequest]) (*connect.Response[AssembleResponse], error) {
			resp, err := s.Assemble(ctx, req.Msg)
			if err != nil {
				return nil, connectError(err)
			}
			return connect.NewResponse(resp), nil
		},
		connect.WithCodec(Codec{}),
	))
	mux.Handle(InspectProcedure, connect.NewUnaryHandler(
		InspectProcedure,
		func(ctx context.Context, req *connect.Request[InspectRequest]) (*connect.Response[InspectResponse], error) {
			resp, err := s.Inspect(ctx, req.Msg)
			if err != nil {
				return nil, connectError(err)
			}
			return connect.NewResponse(resp), nil
		},
		connect.WithCodec(Codec{}),
	))
	return "/" + ServiceName + "/", mux
}

// Client calls an AssemblerService over Connect.
type Client struct {
	assemble *connect.Client[AssembleRequest, AssembleResponse]
	inspect  *connect.Client[InspectRequest, InspectResponse]
}

// NewClient creates a client for the service at baseURL, for example
// http://localhost:4568.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		assemble: connect.NewClient[AssembleRequest, AssembleResponse](httpClient, baseURL+AssembleProcedure, opts...),
		inspect:  connect.NewClient[InspectRequest, InspectResponse](httpClient, baseURL+InspectProcedure, opts...),
	}
}

// Assemble calls AssemblerService.Assemble.
func (c *Client) Assemble(ctx context.Context, req *AssembleRequest) (*AssembleResponse, error) {
	resp, err := c.assemble.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Inspect calls AssemblerService.Inspect.
func (c *Client) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	resp, err := c.inspect.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
