package entities

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphscape/domain/core/valueobjects"
)

func TestNewGraphNode(t *testing.T) {
	tests := []struct {
		name     string
		id       valueobjects.NodeID
		kind     valueobjects.NodeKind
		wantKind valueobjects.NodeKind
		wantErr  bool
		errMsg   string
	}{
		{name: "valid concept", id: "A", kind: valueobjects.NodeKindConcept, wantKind: valueobjects.NodeKindConcept},
		{name: "unknown kind falls back", id: "A", kind: valueobjects.NodeKind(42), wantKind: valueobjects.NodeKindUnspecified},
		{name: "empty id", id: "", wantErr: true, errMsg: "node id cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewGraphNode(tt.id, "label", tt.kind, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, node.ID())
			assert.Equal(t, tt.wantKind, node.Kind())
			assert.False(t, node.HasPosition())
		})
	}
}

func TestGraphNode_EqualityAndCopies(t *testing.T) {
	props := []valueobjects.Property{valueobjects.StringProperty("source", "llm")}
	a, err := NewGraphNode("A", "Alpha", valueobjects.NodeKindEntity, props)
	require.NoError(t, err)
	b, err := NewGraphNode("A", "Alpha", valueobjects.NodeKindEntity, props)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(a.WithLabel("Beta")))

	pos, err := valueobjects.NewPosition3D(1, 2, 3)
	require.NoError(t, err)
	placed := a.WithPosition(pos)
	assert.False(t, a.HasPosition(), "WithPosition must not mutate the receiver")
	assert.False(t, a.Equal(placed))
	got, ok := placed.Position()
	require.True(t, ok)
	assert.True(t, pos.Equals(got))

	clone := placed.Clone()
	assert.True(t, placed.Equal(clone))
}

func TestNewGraphEdge(t *testing.T) {
	tests := []struct {
		name    string
		id      valueobjects.EdgeID
		source  valueobjects.NodeID
		target  valueobjects.NodeID
		weight  float64
		wantID  valueobjects.EdgeID
		wantErr bool
		errMsg  string
	}{
		{name: "explicit id", id: "e1", source: "A", target: "B", weight: 0.5, wantID: "e1"},
		{name: "derived id", source: "A", target: "B", weight: -2, wantID: "A->B#influences"},
		{name: "missing target", id: "e1", source: "A", wantErr: true, errMsg: "endpoints"},
		{name: "large weight has no range", id: "e1", source: "A", target: "B", weight: 1e300, wantID: "e1"},
		{name: "NaN weight", id: "e1", source: "A", target: "B", weight: math.NaN(), wantErr: true, errMsg: "finite"},
		{name: "infinite weight", id: "e1", source: "A", target: "B", weight: math.Inf(1), wantErr: true, errMsg: "finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, err := NewGraphEdge(tt.id, tt.source, tt.target, valueobjects.EdgeKindInfluences, tt.weight, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, edge.ID())
			assert.True(t, edge.Touches(tt.source))
			assert.True(t, edge.Touches(tt.target))
			assert.False(t, edge.Touches("Z"))
		})
	}
}

func TestGraphEdge_MarshalJSON(t *testing.T) {
	edge, err := NewGraphEdge("e1", "A", "B", valueobjects.EdgeKindDependsOn, 0.5, nil)
	require.NoError(t, err)

	data, err := json.Marshal(edge)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","sourceId":"A","targetId":"B","kind":"depends_on","weight":0.5}`, string(data))

	other := edge.Clone()
	assert.True(t, edge.Equal(other))
}
