package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	pkgerrors "graphscape/pkg/errors"
)

func mustNode(t *testing.T, id string) *entities.GraphNode {
	t.Helper()
	n, err := entities.NewGraphNode(valueobjects.NodeID(id), id, valueobjects.NodeKindEntity, nil)
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, id, source, target string) *entities.GraphEdge {
	t.Helper()
	e, err := entities.NewGraphEdge(valueobjects.EdgeID(id), valueobjects.NodeID(source), valueobjects.NodeID(target),
		valueobjects.EdgeKindAdjacent, 0.5, nil)
	require.NoError(t, err)
	return e
}

type opCounter map[string]int

func (c opCounter) ObserveSceneOp(op, kind string) {
	c[op+":"+kind]++
}

func summary(ops []Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op.Type) + "(" + op.ID + ")"
	}
	return out
}

func attached(t *testing.T) (*aggregates.Graph, *MemoryRenderer, *Synchronizer) {
	t.Helper()
	g := aggregates.NewGraph("", nil, nil)
	r := NewMemoryRenderer(true)
	s := NewSynchronizer(r, nil, nil)
	require.NoError(t, s.Attach(g))
	return g, r, s
}

func TestSynchronizer_AddsInEventOrder(t *testing.T) {
	g, r, s := attached(t)

	require.NoError(t, g.UpsertNode(mustNode(t, "A")))
	require.NoError(t, g.UpsertNode(mustNode(t, "B")))
	require.NoError(t, g.AddEdge(mustEdge(t, "ab", "A", "B")))

	ops := r.Ops()
	assert.Equal(t, []string{"add(A)", "add(B)", "add(ab)"}, summary(ops))

	ha, _ := s.NodeHandle("A")
	hb, _ := s.NodeHandle("B")
	assert.Equal(t, KindEdge, ops[2].Kind)
	assert.Equal(t, ha, ops[2].Attrs["source"])
	assert.Equal(t, hb, ops[2].Attrs["target"])
	assert.Equal(t, 0.5, ops[2].Attrs["weight"])

	nodes, edges := s.Len()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestSynchronizer_CascadeRemovesEdgesFirst(t *testing.T) {
	g, r, s := attached(t)
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, g.UpsertNode(mustNode(t, id)))
	}
	require.NoError(t, g.AddEdge(mustEdge(t, "ab", "A", "B")))
	require.NoError(t, g.AddEdge(mustEdge(t, "bc", "B", "C")))

	require.NoError(t, g.RemoveNode("B"))

	ops := r.Ops()
	assert.Equal(t, []string{"rem(ab)", "rem(bc)", "rem(B)"}, summary(ops[len(ops)-3:]))
	_, ok := s.NodeHandle("B")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Live())
}

func TestSynchronizer_ModifyCarriesOnlyTheDelta(t *testing.T) {
	g, r, s := attached(t)
	a := mustNode(t, "A")
	require.NoError(t, g.UpsertNode(a))
	h, _ := s.NodeHandle("A")

	pos, err := valueobjects.NewPosition3D(1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, g.UpsertNode(a.WithPosition(pos)))

	ops := r.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, OpModify, ops[1].Type)
	assert.Equal(t, h, ops[1].Handle)
	assert.Equal(t, Attrs{"position": []float64{1, 2, 3}}, ops[1].Attrs)

	obj, ok := r.Object(h)
	require.True(t, ok)
	assert.Equal(t, "A", obj.Attrs["label"])
	assert.Equal(t, []float64{1, 2, 3}, obj.Attrs["position"])
}

func TestNodeDelta(t *testing.T) {
	pos, err := valueobjects.NewPosition3D(0, 0, 1)
	require.NoError(t, err)
	base := mustNode(t, "A")
	placed := base.WithPosition(pos)

	tests := []struct {
		name     string
		previous *entities.GraphNode
		current  *entities.GraphNode
		want     Attrs
	}{
		{"identical", base, base, Attrs{}},
		{"label", base, base.WithLabel("renamed"), Attrs{"label": "renamed"}},
		{"position set", base, placed, Attrs{"position": []float64{0, 0, 1}}},
		{"position cleared", placed, base, Attrs{"position": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NodeDelta(tt.previous, tt.current))
		})
	}
}

func TestSynchronizer_AttachMaterializesExistingGraph(t *testing.T) {
	g := aggregates.NewGraph("", nil, nil)
	require.NoError(t, g.UpsertNode(mustNode(t, "A")))
	require.NoError(t, g.UpsertNode(mustNode(t, "B")))
	require.NoError(t, g.AddEdge(mustEdge(t, "ab", "A", "B")))

	r := NewMemoryRenderer(true)
	s := NewSynchronizer(r, nil, nil)
	require.NoError(t, s.Attach(g))
	assert.Equal(t, []string{"add(A)", "add(B)", "add(ab)"}, summary(r.Ops()))

	err := s.Attach(g)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestSynchronizer_MissingEndpointHandleIsFatal(t *testing.T) {
	r := NewMemoryRenderer(true)
	s := NewSynchronizer(r, nil, nil)

	err := s.Handle(events.NewEdgeAdded("g", 1, mustEdge(t, "xy", "X", "Y")))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSceneConsistency(err))
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Empty(t, r.Ops())

	// Once broken, the synchronizer refuses further work
	again := s.Handle(events.NewNodeAdded("g", 2, mustNode(t, "X")))
	assert.Equal(t, err, again)
	assert.Equal(t, err, s.Err())
	assert.Empty(t, r.Ops())
}

func TestSynchronizer_UnknownRemovalIsFatal(t *testing.T) {
	s := NewSynchronizer(NewMemoryRenderer(false), nil, nil)
	err := s.Handle(events.NewNodeRemoved("g", 1, "ghost"))
	assert.True(t, pkgerrors.IsSceneConsistency(err))
}

type failingRenderer struct {
	*MemoryRenderer
}

func (failingRenderer) Add(EntityKind, string, Attrs) (Handle, error) {
	return "", errors.New("gpu lost")
}

func TestSynchronizer_RendererFailureIsFatal(t *testing.T) {
	g := aggregates.NewGraph("", nil, nil)
	s := NewSynchronizer(failingRenderer{NewMemoryRenderer(false)}, nil, nil)
	require.NoError(t, s.Attach(g))

	err := g.UpsertNode(mustNode(t, "A"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSceneConsistency(err))
	assert.True(t, g.HasNode("A"))
}

func TestSynchronizer_CloseDisposesEverything(t *testing.T) {
	g, r, s := attached(t)
	require.NoError(t, g.UpsertNode(mustNode(t, "A")))
	require.NoError(t, g.UpsertNode(mustNode(t, "B")))
	require.NoError(t, g.AddEdge(mustEdge(t, "ab", "A", "B")))

	require.NoError(t, s.Close())
	assert.Equal(t, 0, r.Live())
	ops := r.Ops()
	assert.Equal(t, []string{"rem(ab)", "rem(B)", "rem(A)"}, summary(ops[3:]))

	// Detached: later graph events no longer reach the renderer
	require.NoError(t, g.UpsertNode(mustNode(t, "C")))
	assert.Len(t, r.Ops(), 6)
}

func TestSynchronizer_ObserverCountsOps(t *testing.T) {
	g := aggregates.NewGraph("", nil, nil)
	counter := opCounter{}
	s := NewSynchronizer(NewMemoryRenderer(false), nil, counter)
	require.NoError(t, s.Attach(g))

	require.NoError(t, g.UpsertNode(mustNode(t, "A")))
	require.NoError(t, g.UpsertNode(mustNode(t, "B")))
	require.NoError(t, g.AddEdge(mustEdge(t, "ab", "A", "B")))
	require.NoError(t, g.RemoveNode("A"))

	assert.Equal(t, opCounter{"add:node": 2, "add:edge": 1, "rem:edge": 1, "rem:node": 1}, counter)
}

func TestMemoryRenderer_UnknownHandle(t *testing.T) {
	r := NewMemoryRenderer(false)
	assert.True(t, pkgerrors.IsNotFound(r.Remove("nope")))
	assert.True(t, pkgerrors.IsNotFound(r.Modify("nope", Attrs{"label": "x"})))
}

func TestMemoryRenderer_SceneReplaysLiveObjects(t *testing.T) {
	g, r, s := attached(t)
	defer s.Close()

	require.NoError(t, g.UpsertNode(mustNode(t, "A")))
	require.NoError(t, g.UpsertNode(mustNode(t, "B")))
	require.NoError(t, g.UpsertNode(mustNode(t, "C")))
	require.NoError(t, g.AddEdge(mustEdge(t, "bc", "B", "C")))
	require.NoError(t, g.RemoveNode("A"))

	moved, err := entities.NewGraphNode("B", "B2", valueobjects.NodeKindEntity, nil)
	require.NoError(t, err)
	require.NoError(t, g.UpsertNode(moved))

	snap := r.Scene()
	assert.Equal(t, []string{"add(B)", "add(C)", "add(bc)"}, summary(snap))
	assert.Equal(t, "B2", snap[0].Attrs["label"])

	replay := NewMemoryRenderer(false)
	for _, op := range snap {
		_, err := replay.Add(op.Kind, op.ID, op.Attrs)
		require.NoError(t, err)
	}
	assert.Equal(t, r.Live(), replay.Live())
}
