package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"graphscape/application/ports"
	"graphscape/infrastructure/observability"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/protocol"
)

// Full method names of the backend RPC surface
const (
	MethodSend                 = "/orchestrator.Orchestrator/Send"
	MethodStructureInputStream = "/shared.v1.LlmGateway/StructureInputStream"
	MethodStructureInput       = "/shared.v1.LlmGateway/StructureInput"
	MethodSuggestAlgorithms    = "/shared.v1.LlmGateway/SuggestAlgorithms"
	MethodHealthCheck          = "/health.Health/Check"
)

var structureStreamDesc = grpc.StreamDesc{
	StreamName:    "StructureInputStream",
	ServerStreams: true,
}

// GRPCClient implements ports.Transport over a single gRPC connection
type GRPCClient struct {
	conn     *grpc.ClientConn
	settings Settings
	logger   *zap.Logger
	metrics  *observability.Collector
	tracer   trace.Tracer

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
}

var _ ports.Transport = (*GRPCClient)(nil)

// NewGRPCClient creates a client for settings.Target. The connection is
// established lazily on the first call. metrics and tracer may be nil.
func NewGRPCClient(
	settings Settings,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer trace.Tracer,
	extra ...grpc.DialOption,
) (*GRPCClient, error) {
	if settings.Target == "" {
		return nil, pkgerrors.NewValidationError("backend target cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("graphscape/transport")
	}

	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if settings.Insecure {
		creds = insecure.NewCredentials()
	}

	callOpts := []grpc.CallOption{grpc.ForceCodec(protocol.Codec{})}
	if settings.MaxRecvMsgBytes > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(settings.MaxRecvMsgBytes))
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(callOpts...),
	}
	if settings.DialTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: settings.DialTimeout,
		}))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(settings.Target, opts...)
	if err != nil {
		return nil, pkgerrors.NewTransportFailureError("dial", err)
	}

	c := &GRPCClient{
		conn:     conn,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
	c.breaker = newBreaker(settings.Breaker, logger, metrics)

	logger.Info("Backend client created",
		zap.String("target", settings.Target),
		zap.Bool("insecure", settings.Insecure))
	return c, nil
}

// SetBreakerSettings swaps in a fresh breaker built from cfg. Calls already
// in flight finish against the old one.
func (c *GRPCClient) SetBreakerSettings(cfg BreakerSettings) {
	b := newBreaker(cfg, c.logger, c.metrics)
	c.mu.Lock()
	c.breaker = b
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetBreakerOpen(b.Name(), false)
	}
	c.logger.Info("Circuit breaker reconfigured",
		zap.String("breaker", b.Name()),
		zap.Float64("failureThreshold", cfg.FailureThreshold),
		zap.Uint32("minRequests", cfg.MinRequests))
}

func (c *GRPCClient) currentBreaker() *gobreaker.CircuitBreaker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breaker
}

func newBreaker(cfg BreakerSettings, logger *zap.Logger, metrics *observability.Collector) *gobreaker.CircuitBreaker {
	if cfg.Name == "" {
		cfg = DefaultBreakerSettings("backend")
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if metrics != nil {
				metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
			}
		},
		// Only failures of the link itself count against the backend
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})
}

// Send issues a unary action call. A status=false response is returned as is.
func (c *GRPCClient) Send(ctx context.Context, req *protocol.ActionRequest) (*protocol.ActionResponse, error) {
	resp := &protocol.ActionResponse{}
	if err := c.unary(ctx, MethodSend, c.settings.CallTimeout, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Structure issues the unary structuring call
func (c *GRPCClient) Structure(ctx context.Context, req *protocol.StructureRequest) (*protocol.StructureResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp := &protocol.StructureResponse{}
	if err := c.unary(ctx, MethodStructureInput, c.settings.CallTimeout, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SuggestAlgorithms asks the backend for algorithms suited to a graph
func (c *GRPCClient) SuggestAlgorithms(ctx context.Context, req *protocol.AlgorithmSuggestionRequest) (*protocol.AlgorithmSuggestionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp := &protocol.AlgorithmSuggestionResponse{}
	if err := c.unary(ctx, MethodSuggestAlgorithms, c.settings.CallTimeout, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Check probes the backend health service
func (c *GRPCClient) Check(ctx context.Context) error {
	resp := &protocol.HealthCheckResponse{}
	if err := c.unary(ctx, MethodHealthCheck, c.settings.ProbeTimeout, &protocol.HealthCheckRequest{}, resp); err != nil {
		return err
	}
	if !resp.Healthy {
		return pkgerrors.NewUnavailableError("backend").WithCode("UNHEALTHY")
	}
	return nil
}

// StructureStream opens a server-streaming structuring call. The stream is
// bound to ctx; it carries no call deadline of its own.
func (c *GRPCClient) StructureStream(ctx context.Context, req *protocol.StructureRequest) (ports.ChunkStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	streamCtx, cancel := context.WithCancel(ctx)
	streamCtx, span := c.tracer.Start(streamCtx, "transport.StructureInputStream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", MethodStructureInputStream),
			attribute.String("session.id", req.SessionID),
			attribute.Int("structure.target", int(req.Target)),
		))

	res, err := c.currentBreaker().Execute(func() (interface{}, error) {
		s, err := c.conn.NewStream(streamCtx, &structureStreamDesc, MethodStructureInputStream)
		if err != nil {
			return nil, err
		}
		if err := s.SendMsg(req); err != nil {
			return nil, err
		}
		if err := s.CloseSend(); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		mapped := c.mapError(ctx, MethodStructureInputStream, err)
		c.finish(span, MethodStructureInputStream, mapped, start)
		cancel()
		return nil, mapped
	}

	c.logger.Debug("Structuring stream opened", zap.String("sessionID", req.SessionID))
	return &chunkStream{
		client: c,
		ctx:    ctx,
		stream: res.(grpc.ClientStream),
		cancel: cancel,
		span:   span,
		start:  start,
	}, nil
}

// Close releases the connection
func (c *GRPCClient) Close() error {
	if err := c.conn.Close(); err != nil {
		return pkgerrors.NewTransportFailureError("close", err)
	}
	return nil
}

func (c *GRPCClient) unary(ctx context.Context, method string, timeout time.Duration, req, resp protocol.Message) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "transport"+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var raw protocol.RawMessage
	_, err := c.currentBreaker().Execute(func() (interface{}, error) {
		return nil, c.conn.Invoke(callCtx, method, req, &raw)
	})
	if err == nil {
		// Decoded outside the breaker so malformed replies keep their type
		err = resp.UnmarshalWire(raw)
	} else {
		err = c.mapError(ctx, method, err)
	}

	c.finish(span, method, err, start)
	return err
}

func (c *GRPCClient) finish(span trace.Span, method string, err error, start time.Time) {
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Backend call failed",
			zap.String("method", method),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		c.logger.Debug("Backend call completed",
			zap.String("method", method),
			zap.Duration("elapsed", elapsed))
	}
	span.End()
	if c.metrics != nil {
		c.metrics.ObserveRPC(method, err, elapsed)
	}
}

// mapError converts grpc and breaker errors into the error taxonomy.
// ctx is the caller's context, so a caller cancellation is told apart
// from a call deadline.
func (c *GRPCClient) mapError(ctx context.Context, method string, err error) error {
	if pkgerrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewTransportFailureError(method, err).WithCode("BREAKER_OPEN")
	}
	if ctx.Err() == context.Canceled {
		return pkgerrors.NewCancelledError(method).WithCause(err)
	}

	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.NewTransportFailureError(method, err).WithCode("DEADLINE_EXCEEDED")
		}
		return pkgerrors.NewTransportFailureError(method, err)
	}

	switch st.Code() {
	case grpccodes.Canceled:
		return pkgerrors.NewCancelledError(method).WithCause(err)
	case grpccodes.DeadlineExceeded:
		return pkgerrors.NewTransportFailureError(method, err).WithCode("DEADLINE_EXCEEDED")
	default:
		return pkgerrors.NewTransportFailureError(method, err).WithCode(st.Code().String())
	}
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case grpccodes.Canceled, grpccodes.InvalidArgument, grpccodes.NotFound,
		grpccodes.AlreadyExists, grpccodes.FailedPrecondition, grpccodes.Unimplemented:
		return false
	}
	return true
}
