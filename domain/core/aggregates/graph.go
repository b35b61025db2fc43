package aggregates

import (
	"fmt"

	"github.com/google/uuid"

	"graphscape/domain/config"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	pkgerrors "graphscape/pkg/errors"
)

// GraphID represents a unique graph identifier
type GraphID string

// NewGraphID creates a new random GraphID
func NewGraphID() GraphID {
	return GraphID(uuid.New().String())
}

// String returns the string representation
func (id GraphID) String() string {
	return string(id)
}

// EventFactory builds an event stamped with the graph id and the next sequence number
type EventFactory func(graphID string, seq uint64) events.GraphEvent

// Graph is the aggregate root for the live graph of one session.
// It owns node and edge identity and referential integrity, and notifies
// subscribers synchronously, in call order, after every mutation.
// Graph is not safe for concurrent use; callers serialize access.
type Graph struct {
	id        GraphID
	nodes     map[valueobjects.NodeID]*entities.GraphNode
	nodeOrder []valueobjects.NodeID
	edges     map[valueobjects.EdgeID]*entities.GraphEdge
	edgeOrder []valueobjects.EdgeID
	meta      []valueobjects.Property
	version   uint64
	seq       uint64
	bus       *events.Dispatcher
	config    *config.DomainConfig
}

// NewGraph creates an empty graph. An empty id is replaced by a random one,
// a nil bus by a private dispatcher and a nil config by the defaults.
func NewGraph(id GraphID, bus *events.Dispatcher, cfg *config.DomainConfig) *Graph {
	if id == "" {
		id = NewGraphID()
	}
	if bus == nil {
		bus = events.NewDispatcher()
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	return &Graph{
		id:     id,
		nodes:  make(map[valueobjects.NodeID]*entities.GraphNode),
		edges:  make(map[valueobjects.EdgeID]*entities.GraphEdge),
		bus:    bus,
		config: cfg,
	}
}

// ID returns the graph's identifier
func (g *Graph) ID() GraphID {
	return g.id
}

// Version returns the number of committed mutations
func (g *Graph) Version() uint64 {
	return g.version
}

// Config returns the domain rules the graph enforces
func (g *Graph) Config() *config.DomainConfig {
	return g.config
}

// Bus returns the dispatcher the graph publishes to
func (g *Graph) Bus() *events.Dispatcher {
	return g.bus
}

// Subscribe registers a handler for every subsequent event
func (g *Graph) Subscribe(h events.Handler) func() {
	return g.bus.Subscribe(h)
}

// Emit publishes an event that does not change the model, such as a warning.
func (g *Graph) Emit(build EventFactory) error {
	return g.bus.Publish(build(g.id.String(), g.nextSeq()))
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// HasNode checks if a node exists in the graph
func (g *Graph) HasNode(id valueobjects.NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id
func (g *Graph) Node(id valueobjects.NodeID) (*entities.GraphNode, bool) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}

// Edge returns a copy of the edge with the given id
func (g *Graph) Edge(id valueobjects.EdgeID) (*entities.GraphEdge, bool) {
	edge, ok := g.edges[id]
	if !ok {
		return nil, false
	}
	return edge.Clone(), true
}

// Nodes returns copies of all nodes in append order
func (g *Graph) Nodes() []*entities.GraphNode {
	out := make([]*entities.GraphNode, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Edges returns copies of all edges in append order
func (g *Graph) Edges() []*entities.GraphEdge {
	out := make([]*entities.GraphEdge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id].Clone())
	}
	return out
}

// Meta returns a copy of the graph-level properties
func (g *Graph) Meta() []valueobjects.Property {
	return valueobjects.CloneProperties(g.meta)
}

// UpsertNode inserts a node or replaces the one with the same id.
// Replacing with identical content is a no-op and raises no event.
func (g *Graph) UpsertNode(node *entities.GraphNode) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}

	id := node.ID()
	existing, ok := g.nodes[id]
	if ok {
		if existing.Equal(node) {
			return nil
		}
		stored := node.Clone()
		g.nodes[id] = stored
		g.version++
		return g.bus.Publish(events.NewNodeUpdated(g.id.String(), g.nextSeq(), stored.Clone(), existing))
	}

	if limit := g.config.MaxNodesPerGraph; limit > 0 && len(g.nodes) >= limit {
		return pkgerrors.NewValidationError(fmt.Sprintf("maximum nodes reached: %d", limit)).
			WithCode(CodeLimitExceeded)
	}

	stored := node.Clone()
	g.nodes[id] = stored
	g.nodeOrder = append(g.nodeOrder, id)
	g.version++
	return g.bus.Publish(events.NewNodeAdded(g.id.String(), g.nextSeq(), stored.Clone()))
}

// MissingEndpoints returns the endpoints of edge that are not in the graph,
// source first.
func (g *Graph) MissingEndpoints(edge *entities.GraphEdge) []valueobjects.NodeID {
	var missing []valueobjects.NodeID
	if !g.HasNode(edge.SourceID()) {
		missing = append(missing, edge.SourceID())
	}
	if edge.TargetID() != edge.SourceID() && !g.HasNode(edge.TargetID()) {
		missing = append(missing, edge.TargetID())
	}
	return missing
}

// AddEdge commits an edge whose endpoints both exist. An absent endpoint is a
// DanglingReference error; an identical duplicate is a no-op; a different edge
// with the same id is a conflict.
func (g *Graph) AddEdge(edge *entities.GraphEdge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}

	if missing := g.MissingEndpoints(edge); len(missing) > 0 {
		ids := make([]string, len(missing))
		for i, id := range missing {
			ids[i] = id.String()
		}
		return pkgerrors.NewDanglingReferenceError(edge.ID().String(), ids...)
	}

	if existing, ok := g.edges[edge.ID()]; ok {
		if existing.Equal(edge) {
			return nil
		}
		return pkgerrors.NewConflictError(fmt.Sprintf("edge id '%s' already exists with different content", edge.ID()))
	}

	if !g.config.AllowSelfConnections && edge.SourceID() == edge.TargetID() {
		return pkgerrors.NewValidationError("cannot connect node to itself")
	}

	if limit := g.config.MaxEdgesPerGraph; limit > 0 && len(g.edges) >= limit {
		return pkgerrors.NewValidationError(fmt.Sprintf("maximum edges reached: %d", limit)).
			WithCode(CodeLimitExceeded)
	}

	stored := edge.Clone()
	g.edges[stored.ID()] = stored
	g.edgeOrder = append(g.edgeOrder, stored.ID())
	g.version++
	return g.bus.Publish(events.NewEdgeAdded(g.id.String(), g.nextSeq(), stored.Clone()))
}

// RemoveEdge removes a single edge
func (g *Graph) RemoveEdge(id valueobjects.EdgeID) error {
	edge, ok := g.edges[id]
	if !ok {
		return pkgerrors.NewNotFoundError("edge")
	}

	g.deleteEdge(id)
	g.version++
	return g.bus.Publish(events.NewEdgeRemoved(g.id.String(), g.nextSeq(), edge))
}

// RemoveNode removes a node and every edge touching it. Edge removals are
// published in append order before the node removal, so no subscriber sees
// an edge whose endpoint is already gone.
func (g *Graph) RemoveNode(id valueobjects.NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return pkgerrors.NewNotFoundError("node")
	}

	var touching []*entities.GraphEdge
	for _, edgeID := range g.edgeOrder {
		if edge := g.edges[edgeID]; edge.Touches(id) {
			touching = append(touching, edge)
		}
	}

	var errs []error
	for _, edge := range touching {
		g.deleteEdge(edge.ID())
		g.version++
		if err := g.bus.Publish(events.NewEdgeRemoved(g.id.String(), g.nextSeq(), edge)); err != nil {
			errs = append(errs, err)
		}
	}

	delete(g.nodes, id)
	g.nodeOrder = removeID(g.nodeOrder, id)
	g.version++
	if err := g.bus.Publish(events.NewNodeRemoved(g.id.String(), g.nextSeq(), id)); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

// SetMeta replaces the graph-level properties
func (g *Graph) SetMeta(meta []valueobjects.Property) error {
	if valueobjects.PropertiesEqual(g.meta, meta) {
		return nil
	}
	g.meta = valueobjects.CloneProperties(meta)
	g.version++
	return g.bus.Publish(events.NewGraphMetaChanged(g.id.String(), g.nextSeq(), g.Meta()))
}

// Reset removes every node in reverse append order, cascading to their
// edges, clears the meta properties and assigns a fresh graph id.
func (g *Graph) Reset() error {
	var errs []error
	for i := len(g.nodeOrder) - 1; i >= 0; i-- {
		if err := g.RemoveNode(g.nodeOrder[i]); err != nil {
			errs = append(errs, err)
		}
	}
	g.meta = nil
	g.id = NewGraphID()
	return joinErrors(errs)
}

// Validate ensures graph invariants
func (g *Graph) Validate() error {
	if len(g.nodes) != len(g.nodeOrder) {
		return pkgerrors.NewValidationError("node count mismatch")
	}
	if len(g.edges) != len(g.edgeOrder) {
		return pkgerrors.NewValidationError("edge count mismatch")
	}

	for _, id := range g.nodeOrder {
		if _, ok := g.nodes[id]; !ok {
			return pkgerrors.NewValidationError(fmt.Sprintf("node order references unknown node '%s'", id))
		}
	}

	for _, id := range g.edgeOrder {
		edge, ok := g.edges[id]
		if !ok {
			return pkgerrors.NewValidationError(fmt.Sprintf("edge order references unknown edge '%s'", id))
		}
		if missing := g.MissingEndpoints(edge); len(missing) > 0 {
			return pkgerrors.NewValidationError(fmt.Sprintf("edge '%s' references non-existent node '%s'", id, missing[0]))
		}
	}

	return nil
}

// Snapshot returns an immutable copy for diffing and display
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{
		id:      g.id,
		version: g.version,
		nodes:   g.Nodes(),
		edges:   g.Edges(),
		meta:    g.Meta(),
	}
}

// Private helper methods

func (g *Graph) nextSeq() uint64 {
	g.seq++
	return g.seq
}

func (g *Graph) deleteEdge(id valueobjects.EdgeID) {
	delete(g.edges, id)
	g.edgeOrder = removeID(g.edgeOrder, id)
}

func removeID[T comparable](ids []T, id T) []T {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
