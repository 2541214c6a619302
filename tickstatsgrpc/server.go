package tickstatsgrpc

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tickstats/tickstats-go"
)

// ServiceName is the fully qualified name of the Stats service.
const ServiceName = "tickstats.v1.Stats"

const (
	ingestMethod = "/" + ServiceName + "/Ingest"
	queryMethod  = "/" + ServiceName + "/Query"
)

// ErrServerBusy is returned when a call is rejected because the max number of in-flight calls are being handled.
var ErrServerBusy = errors.New("server busy")

// ErrInvalidRequest is returned for requests that are missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

type IngestRequest struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

type IngestResponse struct{}

type QueryRequest struct {
	Symbol string `json:"symbol"`
	K      int    `json:"k"`
}

type QueryResponse struct {
	Stats tickstats.Stats `json:"stats"`
}

// StatsServer is the server API for the Stats service.
type StatsServer interface {
	Ingest(context.Context, *IngestRequest) (*IngestResponse, error)
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
}

// ServiceDesc is the grpc.ServiceDesc for the Stats service. Messages are encoded with the JSON codec registered under
// CodecName, so clients must call with grpc.CallContentSubtype(CodecName), as Client does.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ingest",
			Handler:    ingestHandler,
		},
		{
			MethodName: "Query",
			Handler:    queryHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tickstats/v1/stats.proto",
}

// RegisterServer registers a StatsServer for the engine with the registrar.
func RegisterServer(registrar grpc.ServiceRegistrar, engine tickstats.Engine) {
	registrar.RegisterService(&ServiceDesc, NewServer(engine))
}

// NewServer returns a StatsServer that serves the engine. Engine errors are returned as status errors with a code from
// Code.
func NewServer(engine tickstats.Engine) StatsServer {
	return &server{engine: engine}
}

type server struct {
	engine tickstats.Engine
}

func (s *server) Ingest(_ context.Context, req *IngestRequest) (*IngestResponse, error) {
	if req.Symbol == "" {
		return nil, toStatus(fmt.Errorf("%w: symbol is required", ErrInvalidRequest))
	}
	if err := s.engine.Ingest(req.Symbol, req.Values); err != nil {
		return nil, toStatus(err)
	}
	return &IngestResponse{}, nil
}

func (s *server) Query(_ context.Context, req *QueryRequest) (*QueryResponse, error) {
	result, err := s.engine.Query(req.Symbol, req.K)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QueryResponse{Stats: result}, nil
}

// NewUnaryServerInterceptor returns a grpc.UnaryServerInterceptor that rejects calls with codes.ResourceExhausted while
// maxInFlight calls are already being handled, and logs failed calls to the logger. If maxInFlight is <= 0, calls are
// not limited. If logger is nil, nothing is logged.
func NewUnaryServerInterceptor(maxInFlight int64, logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var permits *semaphore.Weighted
	if maxInFlight > 0 {
		permits = semaphore.NewWeighted(maxInFlight)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if permits != nil {
			if !permits.TryAcquire(1) {
				return nil, toStatus(ErrServerBusy)
			}
			defer permits.Release(1)
		}

		resp, err := handler(ctx, req)
		if err != nil {
			if code := status.Code(err); code == codes.Internal || code == codes.Unknown {
				logger.Error("call failed", zap.String("method", info.FullMethod), zap.Error(err))
			} else {
				logger.Debug("call rejected", zap.String("method", info.FullMethod), zap.Stringer("code", code),
					zap.Error(err))
			}
		}
		return resp, err
	}
}

// Code returns the status code for an error returned by the engine or server.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, tickstats.ErrSymbolNotFound):
		return codes.NotFound
	case errors.Is(err, tickstats.ErrSymbolLimitReached), errors.Is(err, ErrServerBusy):
		return codes.ResourceExhausted
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, tickstats.ErrBatchTooLarge),
		errors.Is(err, tickstats.ErrNonFiniteValue),
		errors.Is(err, tickstats.ErrInvalidWindowExponent):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	return status.Error(Code(err), err.Error())
}

func ingestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(IngestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ingestMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).Ingest(ctx, req.(*IngestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: queryMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}
