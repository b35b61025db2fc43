// Package orchestrator runs one graph session: it gates backend calls on
// the connection state, folds structuring streams into the graph and keeps
// the scene in step.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"graphscape/application/connection"
	"graphscape/application/ports"
	"graphscape/application/reconciler"
	"graphscape/application/scene"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	"graphscape/domain/services"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/protocol"
)

// Dependencies are the collaborators of a session
type Dependencies struct {
	Transport    ports.Transport
	Machine      *connection.Machine
	Graph        *aggregates.Graph
	Synchronizer *scene.Synchronizer
	Assessor     *services.GraphAssessmentService
	Layout       *services.LayoutService
	Logger       *zap.Logger
	Tracer       trace.Tracer
}

// Session owns the graph of one user interaction. Graph mutations are
// serialized by the session; at most one structuring stream runs at a time.
type Session struct {
	id        string
	transport ports.Transport
	machine   *connection.Machine
	graph     *aggregates.Graph
	synchron  *scene.Synchronizer
	assessor  *services.GraphAssessmentService
	layout    *services.LayoutService
	logger    *zap.Logger
	tracer    trace.Tracer

	// mu guards the graph and everything below
	mu           sync.Mutex
	poisoned     error
	streaming    bool
	cancelStream context.CancelFunc
	lastResult   *reconciler.Result
	lastTarget   valueobjects.StructureTarget
}

// NewSession wires a session and attaches the synchronizer to the graph
func NewSession(deps Dependencies) (*Session, error) {
	if deps.Transport == nil || deps.Machine == nil || deps.Graph == nil {
		return nil, pkgerrors.NewValidationError("session requires a transport, a connection machine and a graph")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("graphscape/orchestrator")
	}
	if deps.Assessor == nil {
		deps.Assessor = services.NewGraphAssessmentService()
	}
	if deps.Layout == nil {
		deps.Layout = services.NewLayoutService(deps.Graph.Config())
	}

	id := uuid.New().String()
	s := &Session{
		id:        id,
		transport: deps.Transport,
		machine:   deps.Machine,
		graph:     deps.Graph,
		synchron:  deps.Synchronizer,
		assessor:  deps.Assessor,
		layout:    deps.Layout,
		logger:    deps.Logger.With(zap.String("sessionID", id)),
		tracer:    deps.Tracer,
	}
	if s.synchron != nil {
		if err := s.synchron.Attach(s.graph); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ID returns the opaque session identifier sent with structuring requests
func (s *Session) ID() string {
	return s.id
}

// Connect probes the backend and moves the connection to connected or error
func (s *Session) Connect(ctx context.Context) error {
	return s.machine.Connect(ctx)
}

// Disconnect aborts any running stream and moves to disconnected
func (s *Session) Disconnect() {
	s.Cancel()
	s.machine.Disconnect()
}

// State returns the connection state
func (s *Session) State() connection.State {
	return s.machine.State()
}

// ConnectionError returns the failure that put the connection in the error state
func (s *Session) ConnectionError() error {
	return s.machine.LastError()
}

// Err returns the fatal error that poisoned the session, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// Send issues an action call. A status=false response is returned together
// with a RemoteFailure error.
func (s *Session) Send(ctx context.Context, req *protocol.ActionRequest) (*protocol.ActionResponse, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	if err := s.machine.Guard(); err != nil {
		return nil, err
	}

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		s.machine.ReportFailure(err)
		return nil, err
	}
	return resp, resp.Err()
}

// Structure opens a structuring stream and folds it into the graph. On
// failure or cancellation the partial result is returned with the error;
// the graph keeps everything applied so far.
func (s *Session) Structure(ctx context.Context, req *protocol.StructureRequest) (*reconciler.Result, error) {
	if err := s.machine.Guard(); err != nil {
		return nil, err
	}
	ctx, release, err := s.beginStream(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.SessionID == "" {
		req.SessionID = s.id
	}
	ctx, span := s.tracer.Start(ctx, "orchestrator.Structure", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("structure.target", req.Target.String()),
	))
	defer span.End()

	stream, err := s.transport.StructureStream(ctx, req)
	if err != nil {
		s.machine.ReportFailure(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	r := reconciler.New(s.graph, s.logger, reconciler.Options{
		MaxDeferredEdges: s.graph.Config().MaxDeferredEdges,
		SessionID:        req.SessionID,
		Locker:           &s.mu,
	})
	res, err := r.Consume(stream)
	return s.finish(span, req.Target, res, err)
}

// StructureOnce issues the unary structuring call and folds the returned
// graph through the same reconciliation as a stream
func (s *Session) StructureOnce(ctx context.Context, req *protocol.StructureRequest) (*reconciler.Result, error) {
	if err := s.machine.Guard(); err != nil {
		return nil, err
	}
	ctx, release, err := s.beginStream(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.SessionID == "" {
		req.SessionID = s.id
	}
	ctx, span := s.tracer.Start(ctx, "orchestrator.StructureOnce", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("structure.target", req.Target.String()),
	))
	defer span.End()

	resp, err := s.transport.Structure(ctx, req)
	if err != nil {
		s.machine.ReportFailure(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	s.mu.Lock()
	r := reconciler.New(s.graph, s.logger, reconciler.Options{
		MaxDeferredEdges: s.graph.Config().MaxDeferredEdges,
		SessionID:        req.SessionID,
	})
	var foldErr error
	for _, chunk := range resp.Chunks() {
		if _, err := r.Apply(chunk); err != nil && pkgerrors.IsFatal(err) {
			foldErr = err
			break
		}
	}
	var res *reconciler.Result
	if foldErr == nil {
		res, foldErr = r.Complete(events.CompletionFinal)
	}
	s.mu.Unlock()

	return s.finish(span, req.Target, res, foldErr)
}

// Cancel aborts the running structuring stream, if any
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancelStream
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Streaming reports whether a structuring stream is running
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// SuggestAlgorithms sends the current graph with goal and returns the
// backend's suggestions
func (s *Session) SuggestAlgorithms(ctx context.Context, goal string, module valueobjects.ModuleKind) (*protocol.AlgorithmSuggestionResponse, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	if err := s.machine.Guard(); err != nil {
		return nil, err
	}

	req := &protocol.AlgorithmSuggestionRequest{
		Context: protocol.GraphFromSnapshot(s.Snapshot()),
		Goal:    goal,
		Module:  module,
	}
	resp, err := s.transport.SuggestAlgorithms(ctx, req)
	if err != nil {
		s.machine.ReportFailure(err)
		return nil, err
	}
	return resp, nil
}

// Snapshot returns an immutable copy of the graph
func (s *Session) Snapshot() *aggregates.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Snapshot()
}

// LastResult returns the result of the most recent structuring call
func (s *Session) LastResult() *reconciler.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Assess scores the graph against target. The unspecified target uses the
// target of the last structuring call.
func (s *Session) Assess(target valueobjects.StructureTarget) services.Assessment {
	s.mu.Lock()
	if target == valueobjects.StructureTargetUnspecified {
		target = s.lastTarget
	}
	snapshot := s.graph.Snapshot()
	s.mu.Unlock()
	return s.assessor.Assess(snapshot, target)
}

// Layout places every node without a position
func (s *Session) Layout() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned != nil {
		return 0, s.poisoned
	}
	placed, err := s.layout.Apply(s.graph)
	return placed, s.checkFatalLocked(err)
}

// Subscribe registers a handler for graph and stream events
func (s *Session) Subscribe(h events.Handler) func() {
	return s.graph.Subscribe(h)
}

// Reset removes every node, and with it every edge and scene object, and
// starts a fresh graph id
func (s *Session) Reset() error {
	s.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned != nil {
		return s.poisoned
	}
	err := s.graph.Reset()
	s.lastResult = nil
	s.logger.Info("Session graph reset", zap.String("graphID", s.graph.ID().String()))
	return s.checkFatalLocked(err)
}

// Close aborts any running stream, disposes the scene and disconnects
func (s *Session) Close() error {
	s.Disconnect()
	if s.synchron != nil {
		return s.synchron.Close()
	}
	return nil
}

func (s *Session) beginStream(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return nil, nil, s.poisoned
	}
	if s.streaming {
		return nil, nil, pkgerrors.NewConflictError("a structuring stream is already active for this session")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.streaming = true
	s.cancelStream = cancel

	release := func() {
		cancel()
		s.mu.Lock()
		s.streaming = false
		s.cancelStream = nil
		s.mu.Unlock()
	}
	return ctx, release, nil
}

func (s *Session) finish(span trace.Span, target valueobjects.StructureTarget, res *reconciler.Result, err error) (*reconciler.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res != nil {
		s.lastResult = res
		s.lastTarget = target
		span.SetAttributes(
			attribute.String("stream.reason", string(res.Reason)),
			attribute.Int("stream.nodes_added", res.NodesAdded),
			attribute.Int("stream.edges_added", res.EdgesAdded),
			attribute.Int("stream.warnings", len(res.Warnings)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.machine.ReportFailure(err)
		return res, s.checkFatalLocked(err)
	}

	if res != nil && res.Reason.IsSuccess() && s.graph.Config().AutoLayout {
		placed, lerr := s.layout.Apply(s.graph)
		if lerr != nil {
			return res, s.checkFatalLocked(lerr)
		}
		if placed > 0 {
			s.logger.Debug("Auto layout placed nodes", zap.Int("placed", placed))
		}
	}
	return res, nil
}

// checkFatalLocked poisons the session on a fatal error. s.mu must be held.
func (s *Session) checkFatalLocked(err error) error {
	if err != nil && pkgerrors.IsFatal(err) && s.poisoned == nil {
		s.poisoned = err
		s.logger.Error("Session poisoned by fatal error", zap.Error(err))
	}
	return err
}
