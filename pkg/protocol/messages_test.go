package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"graphscape/domain/core/valueobjects"
	pkgerrors "graphscape/pkg/errors"
)

func TestStructureChunk_NodeRoundTrip(t *testing.T) {
	chunk := NewNodeChunk(&GraphNode{
		ID:    "A",
		Label: "Alpha",
		Kind:  valueobjects.NodeKindScenario,
		Properties: []Property{
			{Key: "tag", Value: valueobjects.StringValue("x")},
			{Key: "tag", Value: valueobjects.IntValue(-3)},
			{Key: "raw", Value: valueobjects.JSONValue(`[1,2]`)},
		},
		Position: &Position{X: 1, Y: 0, Z: -2.5},
	})
	chunk.Confidence = 0.75
	chunk.Meta = &ResponseMeta{RequestUID: "r-1", TimestampMs: 1700000000000, SessionID: "s-1"}

	data, err := chunk.MarshalWire()
	require.NoError(t, err)

	var decoded StructureChunk
	require.NoError(t, decoded.UnmarshalWire(data))
	assert.Equal(t, chunk, &decoded)

	node, err := decoded.Payload.(NodeChunk).Node.ToEntity()
	require.NoError(t, err)
	assert.Equal(t, valueobjects.NodeID("A"), node.ID())
	assert.Len(t, node.Properties(), 3)
	pos, ok := node.Position()
	require.True(t, ok)
	assert.Equal(t, -2.5, pos.Z())
}

func TestStructureChunk_EdgeAndWarning(t *testing.T) {
	tests := []struct {
		name  string
		chunk *StructureChunk
	}{
		{"edge", NewEdgeChunk(&GraphEdge{ID: "e1", SourceID: "A", TargetID: "B", Kind: valueobjects.EdgeKindSupports, Weight: 0.5})},
		{"empty warning", NewWarningChunk("")},
		{"final only", NewFinalChunk(0.9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.chunk.MarshalWire()
			require.NoError(t, err)
			var decoded StructureChunk
			require.NoError(t, decoded.UnmarshalWire(data))
			assert.Equal(t, tt.chunk, &decoded)
		})
	}
}

func TestStructureChunk_RejectsTwoPayloads(t *testing.T) {
	var e encoder
	e.messageField(1, (&GraphNode{ID: "A"}).encode)
	e.stringField(3, "also a warning", true)

	var decoded StructureChunk
	err := decoded.UnmarshalWire(e.buf)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMalformedEnvelope(err))
}

func TestUnmarshal_WrongWireTypeIsMalformed(t *testing.T) {
	data := protowire.AppendTag(nil, 5, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)

	var chunk StructureChunk
	err := chunk.UnmarshalWire(data)
	assert.True(t, pkgerrors.IsMalformedEnvelope(err))

	var resp HealthCheckResponse
	assert.True(t, pkgerrors.IsMalformedEnvelope(resp.UnmarshalWire([]byte{0xff})))
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	data := protowire.AppendTag(nil, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")
	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)

	var resp HealthCheckResponse
	require.NoError(t, resp.UnmarshalWire(data))
	assert.True(t, resp.Healthy)
}

func TestStructureResponse_Chunks(t *testing.T) {
	resp := &StructureResponse{
		Graph: &Graph{
			ID:    "g",
			Nodes: []*GraphNode{{ID: "A"}, {ID: "B"}},
			Edges: []*GraphEdge{{SourceID: "A", TargetID: "B"}},
		},
		Confidence: 0.6,
		Warnings:   []string{"Orphan node: 'C'"},
		Meta:       &ResponseMeta{RequestUID: "r"},
	}

	data, err := resp.MarshalWire()
	require.NoError(t, err)
	var decoded StructureResponse
	require.NoError(t, decoded.UnmarshalWire(data))
	assert.Equal(t, resp, &decoded)

	chunks := decoded.Chunks()
	require.Len(t, chunks, 5)
	assert.IsType(t, NodeChunk{}, chunks[0].Payload)
	assert.IsType(t, NodeChunk{}, chunks[1].Payload)
	assert.IsType(t, EdgeChunk{}, chunks[2].Payload)
	assert.Equal(t, WarningChunk{Warning: "Orphan node: 'C'"}, chunks[3].Payload)
	assert.True(t, chunks[4].IsFinal)
	assert.Nil(t, chunks[4].Payload)
	assert.Equal(t, 0.6, chunks[4].Confidence)
}

func TestStructureRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     StructureRequest
		wantErr bool
	}{
		{"valid", StructureRequest{RawInput: "a city grid", Target: valueobjects.StructureTargetEntity}, false},
		{"missing input", StructureRequest{Target: valueobjects.StructureTargetEntity}, true},
		{"unknown target", StructureRequest{RawInput: "x", Target: valueobjects.StructureTarget(7)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAlgorithmSuggestion_RoundTrip(t *testing.T) {
	req := &AlgorithmSuggestionRequest{
		Context: &Graph{ID: "g", Nodes: []*GraphNode{{ID: "A", Kind: valueobjects.NodeKindAlgorithm}}},
		Goal:    "shortest path",
		Module:  valueobjects.ModuleKindReasoning,
	}
	data, err := req.MarshalWire()
	require.NoError(t, err)
	var decodedReq AlgorithmSuggestionRequest
	require.NoError(t, decodedReq.UnmarshalWire(data))
	assert.Equal(t, req, &decodedReq)

	resp := &AlgorithmSuggestionResponse{
		Suggestions: []*AlgorithmSuggestion{{
			AlgorithmID: "dijkstra",
			Name:        "Dijkstra",
			Rationale:   "non-negative weights",
			Confidence:  0.8,
			Parameters:  []Property{{Key: "directed", Value: valueobjects.BoolValue(true)}},
		}},
	}
	data, err = resp.MarshalWire()
	require.NoError(t, err)
	var decodedResp AlgorithmSuggestionResponse
	require.NoError(t, decodedResp.UnmarshalWire(data))
	assert.Equal(t, resp, &decodedResp)
}

func TestGraphNode_ToEntityValidation(t *testing.T) {
	tests := []struct {
		name string
		node GraphNode
	}{
		{"empty id", GraphNode{Label: "x"}},
		{"property without value", GraphNode{ID: "A", Properties: []Property{{Key: "k"}}}},
		{"invalid json property", GraphNode{ID: "A", Properties: []Property{{Key: "k", Value: valueobjects.JSONValue("{")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.node.ToEntity()
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestCodec(t *testing.T) {
	var c Codec
	assert.Equal(t, "proto", c.Name())

	data, err := c.Marshal(&HealthCheckResponse{Healthy: true})
	require.NoError(t, err)

	var resp HealthCheckResponse
	require.NoError(t, c.Unmarshal(data, &resp))
	assert.True(t, resp.Healthy)

	var raw RawMessage
	require.NoError(t, c.Unmarshal(data, &raw))
	var fromRaw HealthCheckResponse
	require.NoError(t, fromRaw.UnmarshalWire(raw))
	assert.True(t, fromRaw.Healthy)

	_, err = c.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(data, new(int)))
}
