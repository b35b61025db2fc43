package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphscape/application/connection"
	"graphscape/application/ports"
	"graphscape/application/scene"
	"graphscape/domain/config"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/protocol"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, req *protocol.ActionRequest) (*protocol.ActionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*protocol.ActionResponse)
	return resp, args.Error(1)
}

func (m *MockTransport) StructureStream(ctx context.Context, req *protocol.StructureRequest) (ports.ChunkStream, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context) ports.ChunkStream); ok {
		return fn(ctx), args.Error(1)
	}
	stream, _ := args.Get(0).(ports.ChunkStream)
	return stream, args.Error(1)
}

func (m *MockTransport) Structure(ctx context.Context, req *protocol.StructureRequest) (*protocol.StructureResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*protocol.StructureResponse)
	return resp, args.Error(1)
}

func (m *MockTransport) SuggestAlgorithms(ctx context.Context, req *protocol.AlgorithmSuggestionRequest) (*protocol.AlgorithmSuggestionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*protocol.AlgorithmSuggestionResponse)
	return resp, args.Error(1)
}

func (m *MockTransport) Check(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

// chanStream yields queued chunks, then blocks until its context ends
type chanStream struct {
	ctx    context.Context
	chunks chan *protocol.StructureChunk
}

func (s *chanStream) Recv() (*protocol.StructureChunk, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			return nil, io.EOF
		}
		return c, nil
	case <-s.ctx.Done():
		return nil, pkgerrors.NewCancelledError("structure")
	}
}

func (s *chanStream) Close() error { return nil }

func streamOf(chunks ...*protocol.StructureChunk) func(context.Context) ports.ChunkStream {
	return func(ctx context.Context) ports.ChunkStream {
		ch := make(chan *protocol.StructureChunk, len(chunks))
		for _, c := range chunks {
			ch <- c
		}
		close(ch)
		return &chanStream{ctx: ctx, chunks: ch}
	}
}

func nodeChunk(id string) *protocol.StructureChunk {
	return protocol.NewNodeChunk(&protocol.GraphNode{ID: id, Label: id, Kind: valueobjects.NodeKindConcept})
}

func edgeChunk(id, source, target string) *protocol.StructureChunk {
	return protocol.NewEdgeChunk(&protocol.GraphEdge{
		ID: id, SourceID: source, TargetID: target,
		Kind: valueobjects.EdgeKindInfluences, Weight: 0.5,
	})
}

type fixture struct {
	transport *MockTransport
	renderer  *scene.MemoryRenderer
	session   *Session
}

func newFixture(t *testing.T, autoLayout bool) *fixture {
	t.Helper()
	transport := &MockTransport{}
	cfg := config.DefaultDomainConfig()
	cfg.AutoLayout = autoLayout

	graph := aggregates.NewGraph("", nil, cfg)
	renderer := scene.NewMemoryRenderer(true)
	machine := connection.NewMachine(transport, connection.Settings{ProbeTimeout: time.Second}, zap.NewNop())

	session, err := NewSession(Dependencies{
		Transport:    transport,
		Machine:      machine,
		Graph:        graph,
		Synchronizer: scene.NewSynchronizer(renderer, zap.NewNop(), nil),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{transport: transport, renderer: renderer, session: session}
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.transport.On("Check", mock.Anything).Return(nil).Once()
	require.NoError(t, f.session.Connect(context.Background()))
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	_, err := NewSession(Dependencies{})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	f := newFixture(t, false)
	req, err := protocol.NewActionRequest(protocol.ActionRead)
	require.NoError(t, err)

	_, err = f.session.Send(context.Background(), req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotConnected(err))
	assert.Equal(t, connection.StateDisconnected, f.session.State())
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSession_Send(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	ok, err := protocol.NewActionRequest(protocol.ActionCreate, protocol.WithObjectName("scene"))
	require.NoError(t, err)
	fail, err := protocol.NewActionRequest(protocol.ActionDelete, protocol.WithObjectName("ghost"))
	require.NoError(t, err)
	down, err := protocol.NewActionRequest(protocol.ActionRead)
	require.NoError(t, err)

	success, _ := protocol.NewSuccessResponse("created", protocol.NumberPayload(7))
	failure, _ := protocol.NewFailureResponse("object not found")
	f.transport.On("Send", mock.Anything, ok).Return(success, nil)
	f.transport.On("Send", mock.Anything, fail).Return(failure, nil)
	f.transport.On("Send", mock.Anything, down).
		Return(nil, pkgerrors.NewTransportFailureError("send", context.DeadlineExceeded))

	resp, err := f.session.Send(context.Background(), ok)
	require.NoError(t, err)
	v, err := resp.Value()
	require.NoError(t, err)
	assert.Equal(t, protocol.NumberPayload(7), v)

	resp, err = f.session.Send(context.Background(), fail)
	assert.True(t, pkgerrors.IsRemoteFailure(err))
	assert.Equal(t, "object not found", resp.Message)
	assert.Equal(t, connection.StateConnected, f.session.State())

	_, err = f.session.Send(context.Background(), down)
	assert.True(t, pkgerrors.IsTransportFailure(err))
	assert.Equal(t, connection.StateError, f.session.State())
}

func TestSession_StructureDrivesGraphAndScene(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.AnythingOfType("*protocol.StructureRequest")).
		Return(streamOf(nodeChunk("A"), nodeChunk("B"), edgeChunk("ab", "A", "B"), protocol.NewFinalChunk(0.8)), nil)

	req := &protocol.StructureRequest{RawInput: "A influences B", Target: valueobjects.StructureTargetConcept}
	res, err := f.session.Structure(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, f.session.ID(), req.SessionID)
	assert.Equal(t, events.CompletionFinal, res.Reason)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 0.8, res.Confidence)

	snap := f.session.Snapshot()
	assert.Equal(t, 2, snap.NodeCount())
	assert.Equal(t, 1, snap.EdgeCount())

	var ops []string
	for _, op := range f.renderer.Ops() {
		ops = append(ops, string(op.Type)+"("+op.ID+")")
	}
	assert.Equal(t, []string{"add(A)", "add(B)", "add(ab)"}, ops)
	assert.Same(t, res, f.session.LastResult())
	assert.False(t, f.session.Streaming())
}

func TestSession_StructureAutoLayout(t *testing.T) {
	f := newFixture(t, true)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), nodeChunk("B"), protocol.NewFinalChunk(1)), nil)

	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.NoError(t, err)

	for _, n := range f.session.Snapshot().Nodes() {
		assert.True(t, n.HasPosition(), "node %s should be placed", n.ID())
	}
	ops := f.renderer.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, scene.OpModify, ops[2].Type)
	assert.Equal(t, scene.OpModify, ops[3].Type)
}

func TestSession_StructureCancellationKeepsPartialGraph(t *testing.T) {
	f := newFixture(t, true)
	f.connect(t)

	blocking := func(ctx context.Context) ports.ChunkStream {
		ch := make(chan *protocol.StructureChunk, 2)
		ch <- nodeChunk("A")
		ch <- edgeChunk("ab", "A", "B")
		return &chanStream{ctx: ctx, chunks: ch}
	}
	f.transport.On("StructureStream", mock.Anything, mock.Anything).Return(blocking, nil)

	var seen []events.CompletionReason
	f.session.Subscribe(func(e events.GraphEvent) error {
		if c, ok := e.(events.StreamCompleted); ok {
			seen = append(seen, c.Reason)
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.session.Snapshot().NodeCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, f.session.Streaming())

	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "y"})
	assert.True(t, pkgerrors.IsConflict(err), "only one stream may run at a time")

	f.session.Cancel()
	err = <-done
	assert.True(t, pkgerrors.IsCancelled(err))

	res := f.session.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, events.CompletionCancelled, res.Reason)
	assert.Equal(t, 1, res.DroppedEdges)
	assert.Equal(t, []events.CompletionReason{events.CompletionCancelled}, seen)
	assert.Equal(t, 1, f.session.Snapshot().NodeCount())
	assert.Equal(t, connection.StateConnected, f.session.State())

	n := f.session.Snapshot().Nodes()[0]
	assert.False(t, n.HasPosition(), "cancelled streams are not laid out")
}

func TestSession_StructureOnce(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("Structure", mock.Anything, mock.Anything).Return(&protocol.StructureResponse{
		Graph: &protocol.Graph{
			Nodes: []*protocol.GraphNode{{ID: "A"}, {ID: "B"}},
			Edges: []*protocol.GraphEdge{
				{ID: "ab", SourceID: "A", TargetID: "B"},
				{ID: "ac", SourceID: "A", TargetID: "C"},
			},
		},
		Confidence: 0.6,
		Warnings:   []string{"ambiguous input"},
	}, nil)

	res, err := f.session.StructureOnce(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.NodesAdded)
	assert.Equal(t, 1, res.EdgesAdded)
	assert.Equal(t, 1, res.DroppedEdges)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, events.WarningUpstream, res.Warnings[0].Kind)
	assert.Equal(t, events.WarningDroppedDeferredEdge, res.Warnings[1].Kind)
	assert.Equal(t, 0.6, res.Confidence)
}

func TestSession_StructureTransportFailure(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.NewTransportFailureError("stream", io.ErrUnexpectedEOF))

	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	assert.True(t, pkgerrors.IsTransportFailure(err))
	assert.Equal(t, connection.StateError, f.session.State())
	assert.False(t, f.session.Streaming())
}

func TestSession_SceneViolationPoisonsSession(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	// A second synchronizer bound to an empty renderer mapping sees an edge
	// whose endpoints it never mapped
	broken := scene.NewSynchronizer(scene.NewMemoryRenderer(false), nil, nil)
	f.session.Subscribe(func(e events.GraphEvent) error {
		if _, ok := e.(events.EdgeAdded); ok {
			return broken.Handle(e)
		}
		return nil
	})

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), nodeChunk("B"), edgeChunk("ab", "A", "B"), protocol.NewFinalChunk(1)), nil)

	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSceneConsistency(err))
	assert.Equal(t, err, f.session.Err())

	req, _ := protocol.NewActionRequest(protocol.ActionRead)
	_, again := f.session.Send(context.Background(), req)
	assert.Equal(t, err, again)
	assert.Equal(t, err, f.session.Reset())
}

func TestSession_SuggestAlgorithmsSendsSnapshot(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), protocol.NewFinalChunk(1)), nil)
	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.NoError(t, err)

	f.transport.On("SuggestAlgorithms", mock.Anything, mock.MatchedBy(func(req *protocol.AlgorithmSuggestionRequest) bool {
		return req.Goal == "rank nodes" && len(req.Context.Nodes) == 1 && req.Context.Nodes[0].ID == "A"
	})).Return(&protocol.AlgorithmSuggestionResponse{
		Suggestions: []*protocol.AlgorithmSuggestion{{AlgorithmID: "pagerank", Confidence: 0.7}},
	}, nil)

	resp, err := f.session.SuggestAlgorithms(context.Background(), "rank nodes", valueobjects.ModuleKindReasoning)
	require.NoError(t, err)
	assert.Equal(t, "pagerank", resp.Suggestions[0].AlgorithmID)
	f.transport.AssertExpectations(t)
}

func TestSession_AssessUsesLastTarget(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), protocol.NewFinalChunk(1)), nil)
	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{
		RawInput: "x", Target: valueobjects.StructureTargetScenario,
	})
	require.NoError(t, err)

	// one orphan, no causal edge, no scenario node
	assessment := f.session.Assess(valueobjects.StructureTargetUnspecified)
	assert.InDelta(t, 1-0.05-0.1-0.15, assessment.Confidence, 1e-9)
}

func TestSession_ResetDisposesScene(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), nodeChunk("B"), edgeChunk("ab", "A", "B"), protocol.NewFinalChunk(1)), nil)
	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.NoError(t, err)

	before := f.session.Snapshot().ID()
	require.NoError(t, f.session.Reset())

	assert.True(t, f.session.Snapshot().IsEmpty())
	assert.NotEqual(t, before, f.session.Snapshot().ID())
	assert.Equal(t, 0, f.renderer.Live())
	assert.Nil(t, f.session.LastResult())
}

func TestSession_Close(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	f.transport.On("StructureStream", mock.Anything, mock.Anything).
		Return(streamOf(nodeChunk("A"), protocol.NewFinalChunk(1)), nil)
	_, err := f.session.Structure(context.Background(), &protocol.StructureRequest{RawInput: "x"})
	require.NoError(t, err)

	require.NoError(t, f.session.Close())
	assert.Equal(t, connection.StateDisconnected, f.session.State())
	assert.Equal(t, 0, f.renderer.Live())
}
