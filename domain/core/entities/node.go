package entities

import (
	"encoding/json"

	"graphscape/domain/core/valueobjects"
	pkgerrors "graphscape/pkg/errors"
)

// GraphNode is a vertex of the live graph. Its id never changes once assigned;
// every other attribute can be replaced through the owning aggregate.
type GraphNode struct {
	id         valueobjects.NodeID
	label      string
	kind       valueobjects.NodeKind
	properties []valueobjects.Property
	position   *valueobjects.Position
}

// NewGraphNode creates a node with validation
func NewGraphNode(id valueobjects.NodeID, label string, kind valueobjects.NodeKind, properties []valueobjects.Property) (*GraphNode, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}
	if !kind.IsValid() {
		kind = valueobjects.NodeKindUnspecified
	}

	return &GraphNode{
		id:         id,
		label:      label,
		kind:       kind,
		properties: valueobjects.CloneProperties(properties),
	}, nil
}

// ID returns the node's identifier
func (n *GraphNode) ID() valueobjects.NodeID {
	return n.id
}

// Label returns the display label
func (n *GraphNode) Label() string {
	return n.label
}

// Kind returns the node kind
func (n *GraphNode) Kind() valueobjects.NodeKind {
	return n.kind
}

// Properties returns a copy of the ordered property list
func (n *GraphNode) Properties() []valueobjects.Property {
	return valueobjects.CloneProperties(n.properties)
}

// Position returns the node's position and whether one is set
func (n *GraphNode) Position() (valueobjects.Position, bool) {
	if n.position == nil {
		return valueobjects.Position{}, false
	}
	return *n.position, true
}

// HasPosition reports whether the node has been placed
func (n *GraphNode) HasPosition() bool {
	return n.position != nil
}

// WithPosition returns a copy of the node placed at pos
func (n *GraphNode) WithPosition(pos valueobjects.Position) *GraphNode {
	c := n.Clone()
	c.position = &pos
	return c
}

// WithLabel returns a copy of the node carrying a new label
func (n *GraphNode) WithLabel(label string) *GraphNode {
	c := n.Clone()
	c.label = label
	return c
}

// Equal reports whether two nodes carry identical content
func (n *GraphNode) Equal(other *GraphNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.id != other.id || n.label != other.label || n.kind != other.kind {
		return false
	}
	if (n.position == nil) != (other.position == nil) {
		return false
	}
	if n.position != nil && !n.position.Equals(*other.position) {
		return false
	}
	return valueobjects.PropertiesEqual(n.properties, other.properties)
}

// Clone returns a deep copy
func (n *GraphNode) Clone() *GraphNode {
	c := &GraphNode{
		id:         n.id,
		label:      n.label,
		kind:       n.kind,
		properties: valueobjects.CloneProperties(n.properties),
	}
	if n.position != nil {
		pos := *n.position
		c.position = &pos
	}
	return c
}

// MarshalJSON renders the node for the read boundary
func (n *GraphNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string                  `json:"id"`
		Label      string                  `json:"label"`
		Kind       string                  `json:"kind"`
		Properties []valueobjects.Property `json:"properties,omitempty"`
		Position   *valueobjects.Position  `json:"position,omitempty"`
	}{
		ID:         n.id.String(),
		Label:      n.label,
		Kind:       n.kind.String(),
		Properties: n.properties,
		Position:   n.position,
	})
}
