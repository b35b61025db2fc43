package entities

import (
	"encoding/json"
	"math"

	"graphscape/domain/core/valueobjects"
	pkgerrors "graphscape/pkg/errors"
)

// GraphEdge is a directed relationship between two nodes of the same graph.
type GraphEdge struct {
	id         valueobjects.EdgeID
	source     valueobjects.NodeID
	target     valueobjects.NodeID
	kind       valueobjects.EdgeKind
	weight     float64
	properties []valueobjects.Property
}

// NewGraphEdge creates an edge. An empty id is replaced by the derived
// source->target#kind id. Weight has no enforced range but must be finite.
func NewGraphEdge(
	id valueobjects.EdgeID,
	source, target valueobjects.NodeID,
	kind valueobjects.EdgeKind,
	weight float64,
	properties []valueobjects.Property,
) (*GraphEdge, error) {
	if source.IsZero() || target.IsZero() {
		return nil, pkgerrors.NewValidationError("edge endpoints cannot be empty")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return nil, pkgerrors.NewValidationError("edge weight must be a finite number")
	}
	if !kind.IsValid() {
		kind = valueobjects.EdgeKindUnspecified
	}
	if id.IsZero() {
		id = valueobjects.DeriveEdgeID(source, target, kind)
	}

	return &GraphEdge{
		id:         id,
		source:     source,
		target:     target,
		kind:       kind,
		weight:     weight,
		properties: valueobjects.CloneProperties(properties),
	}, nil
}

// ID returns the edge identifier
func (e *GraphEdge) ID() valueobjects.EdgeID {
	return e.id
}

// SourceID returns the id of the source node
func (e *GraphEdge) SourceID() valueobjects.NodeID {
	return e.source
}

// TargetID returns the id of the target node
func (e *GraphEdge) TargetID() valueobjects.NodeID {
	return e.target
}

// Kind returns the edge kind
func (e *GraphEdge) Kind() valueobjects.EdgeKind {
	return e.kind
}

// Weight returns the edge weight
func (e *GraphEdge) Weight() float64 {
	return e.weight
}

// Properties returns a copy of the ordered property list
func (e *GraphEdge) Properties() []valueobjects.Property {
	return valueobjects.CloneProperties(e.properties)
}

// Touches reports whether the edge has nodeID as either endpoint
func (e *GraphEdge) Touches(nodeID valueobjects.NodeID) bool {
	return e.source == nodeID || e.target == nodeID
}

// Equal reports whether two edges carry identical content
func (e *GraphEdge) Equal(other *GraphEdge) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.id == other.id &&
		e.source == other.source &&
		e.target == other.target &&
		e.kind == other.kind &&
		e.weight == other.weight &&
		valueobjects.PropertiesEqual(e.properties, other.properties)
}

// Clone returns a deep copy
func (e *GraphEdge) Clone() *GraphEdge {
	c := *e
	c.properties = valueobjects.CloneProperties(e.properties)
	return &c
}

// MarshalJSON renders the edge for the read boundary
func (e *GraphEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string                  `json:"id"`
		SourceID   string                  `json:"sourceId"`
		TargetID   string                  `json:"targetId"`
		Kind       string                  `json:"kind"`
		Weight     float64                 `json:"weight"`
		Properties []valueobjects.Property `json:"properties,omitempty"`
	}{
		ID:         e.id.String(),
		SourceID:   e.source.String(),
		TargetID:   e.target.String(),
		Kind:       e.kind.String(),
		Weight:     e.weight,
		Properties: e.properties,
	})
}
