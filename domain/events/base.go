package events

import (
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// GraphEvent is the base interface for every change notification raised by a graph.
// Events describe something that has already happened to the model.
type GraphEvent interface {
	GetGraphID() string
	GetEventType() string
	GetSequence() uint64
}

// BaseEvent provides common event fields. Sequence is the graph version at
// emission, so two replays of the same input yield identical event streams.
type BaseEvent struct {
	GraphID   string `json:"graphId"`
	EventType string `json:"eventType"`
	Sequence  uint64 `json:"sequence"`
}

func (e BaseEvent) GetGraphID() string   { return e.GraphID }
func (e BaseEvent) GetEventType() string { return e.EventType }
func (e BaseEvent) GetSequence() uint64  { return e.Sequence }

// Event type names
const (
	TypeNodeAdded          = "node.added"
	TypeNodeUpdated        = "node.updated"
	TypeNodeRemoved        = "node.removed"
	TypeEdgeAdded          = "edge.added"
	TypeEdgeRemoved        = "edge.removed"
	TypeEdgeDeferred       = "edge.deferred"
	TypeWarningRaised      = "warning.raised"
	TypeConfidenceReported = "confidence.reported"
	TypeStreamCompleted    = "stream.completed"
	TypeGraphMetaChanged   = "graph.meta_changed"
)

func newBase(graphID, eventType string, seq uint64) BaseEvent {
	return BaseEvent{GraphID: graphID, EventType: eventType, Sequence: seq}
}

// Node Events

// NodeAdded is raised when a node with a new id enters the graph
type NodeAdded struct {
	BaseEvent
	Node *entities.GraphNode `json:"node"`
}

// NewNodeAdded creates a NodeAdded event
func NewNodeAdded(graphID string, seq uint64, node *entities.GraphNode) NodeAdded {
	return NodeAdded{BaseEvent: newBase(graphID, TypeNodeAdded, seq), Node: node}
}

// NodeUpdated is raised when an existing node is replaced with different content
type NodeUpdated struct {
	BaseEvent
	Node     *entities.GraphNode `json:"node"`
	Previous *entities.GraphNode `json:"previous"`
}

// NewNodeUpdated creates a NodeUpdated event
func NewNodeUpdated(graphID string, seq uint64, node, previous *entities.GraphNode) NodeUpdated {
	return NodeUpdated{BaseEvent: newBase(graphID, TypeNodeUpdated, seq), Node: node, Previous: previous}
}

// NodeRemoved is raised after every edge touching the node has been removed
type NodeRemoved struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"nodeId"`
}

// NewNodeRemoved creates a NodeRemoved event
func NewNodeRemoved(graphID string, seq uint64, nodeID valueobjects.NodeID) NodeRemoved {
	return NodeRemoved{BaseEvent: newBase(graphID, TypeNodeRemoved, seq), NodeID: nodeID}
}

// Edge Events

// EdgeAdded is raised when an edge is committed with both endpoints present
type EdgeAdded struct {
	BaseEvent
	Edge *entities.GraphEdge `json:"edge"`
}

// NewEdgeAdded creates an EdgeAdded event
func NewEdgeAdded(graphID string, seq uint64, edge *entities.GraphEdge) EdgeAdded {
	return EdgeAdded{BaseEvent: newBase(graphID, TypeEdgeAdded, seq), Edge: edge}
}

// EdgeRemoved is raised when an edge leaves the graph
type EdgeRemoved struct {
	BaseEvent
	EdgeID   valueobjects.EdgeID `json:"edgeId"`
	SourceID valueobjects.NodeID `json:"sourceId"`
	TargetID valueobjects.NodeID `json:"targetId"`
}

// NewEdgeRemoved creates an EdgeRemoved event
func NewEdgeRemoved(graphID string, seq uint64, edge *entities.GraphEdge) EdgeRemoved {
	return EdgeRemoved{
		BaseEvent: newBase(graphID, TypeEdgeRemoved, seq),
		EdgeID:    edge.ID(),
		SourceID:  edge.SourceID(),
		TargetID:  edge.TargetID(),
	}
}

// EdgeDeferred is raised when an edge is held until its missing endpoints arrive
type EdgeDeferred struct {
	BaseEvent
	Edge    *entities.GraphEdge   `json:"edge"`
	Missing []valueobjects.NodeID `json:"missing"`
}

// NewEdgeDeferred creates an EdgeDeferred event
func NewEdgeDeferred(graphID string, seq uint64, edge *entities.GraphEdge, missing []valueobjects.NodeID) EdgeDeferred {
	return EdgeDeferred{BaseEvent: newBase(graphID, TypeEdgeDeferred, seq), Edge: edge, Missing: missing}
}

// Graph Events

// GraphMetaChanged is raised when the graph-level meta properties are replaced
type GraphMetaChanged struct {
	BaseEvent
	Meta []valueobjects.Property `json:"meta"`
}

// NewGraphMetaChanged creates a GraphMetaChanged event
func NewGraphMetaChanged(graphID string, seq uint64, meta []valueobjects.Property) GraphMetaChanged {
	return GraphMetaChanged{BaseEvent: newBase(graphID, TypeGraphMetaChanged, seq), Meta: meta}
}
