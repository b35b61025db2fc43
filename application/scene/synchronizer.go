package scene

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	pkgerrors "graphscape/pkg/errors"
)

// OpObserver receives a count of every applied scene operation
type OpObserver interface {
	ObserveSceneOp(op, kind string)
}

// Synchronizer keeps a bijection between live graph ids and scene handles
// and turns each graph event into the matching add, rem or mod. It never
// mutates the graph.
type Synchronizer struct {
	mu        sync.Mutex
	renderer  Renderer
	logger    *zap.Logger
	observer  OpObserver
	nodes     map[valueobjects.NodeID]Handle
	edges     map[valueobjects.EdgeID]Handle
	nodeOrder []valueobjects.NodeID
	edgeOrder []valueobjects.EdgeID

	unsubscribe func()
	broken      error
}

// NewSynchronizer creates a synchronizer driving renderer. observer may be nil.
func NewSynchronizer(renderer Renderer, logger *zap.Logger, observer OpObserver) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		renderer: renderer,
		logger:   logger,
		observer: observer,
		nodes:    make(map[valueobjects.NodeID]Handle),
		edges:    make(map[valueobjects.EdgeID]Handle),
	}
}

// Attach adds every existing node, then every edge, of g to the scene and
// subscribes to its events
func (s *Synchronizer) Attach(g *aggregates.Graph) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return pkgerrors.NewConflictError("synchronizer is already attached")
	}
	for _, n := range g.Nodes() {
		if err := s.addNode(n); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	for _, e := range g.Edges() {
		if err := s.addEdge(e); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	unsubscribe := g.Subscribe(s.Handle)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Handle is the events.Handler applying one graph event to the scene.
// A broken id-to-handle mapping is a SceneConsistency error; once raised,
// every later event returns it again.
func (s *Synchronizer) Handle(e events.GraphEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return s.broken
	}

	var err error
	switch evt := e.(type) {
	case events.NodeAdded:
		err = s.addNode(evt.Node)
	case events.NodeUpdated:
		err = s.modifyNode(evt.Previous, evt.Node)
	case events.NodeRemoved:
		err = s.removeNode(evt.NodeID)
	case events.EdgeAdded:
		err = s.addEdge(evt.Edge)
	case events.EdgeRemoved:
		err = s.removeEdge(evt.EdgeID)
	}

	if err != nil && pkgerrors.IsSceneConsistency(err) {
		s.broken = err
		s.logger.Error("Scene consistency violated",
			zap.String("eventType", e.GetEventType()),
			zap.Uint64("sequence", e.GetSequence()),
			zap.Error(err))
	}
	return err
}

// NodeHandle returns the handle of a live node
func (s *Synchronizer) NodeHandle(id valueobjects.NodeID) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.nodes[id]
	return h, ok
}

// EdgeHandle returns the handle of a live edge
func (s *Synchronizer) EdgeHandle(id valueobjects.EdgeID) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.edges[id]
	return h, ok
}

// Len returns the number of mapped nodes and edges
func (s *Synchronizer) Len() (nodes, edges int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes), len(s.edges)
}

// Err returns the consistency violation that broke the synchronizer, if any
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Close detaches from the graph and disposes every handle, edges first
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.edgeOrder) - 1; i >= 0; i-- {
		if err := s.removeEdge(s.edgeOrder[i]); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.nodeOrder) - 1; i >= 0; i-- {
		if err := s.removeNode(s.nodeOrder[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("disposing scene: %v", errs))
	}
	return nil
}

func (s *Synchronizer) addNode(n *entities.GraphNode) error {
	if _, ok := s.nodes[n.ID()]; ok {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("node '%s' already has a scene handle", n.ID()))
	}
	h, err := s.renderer.Add(KindNode, n.ID().String(), NodeAttrs(n))
	if err != nil {
		return rendererFailure("add node", n.ID().String(), err)
	}
	s.nodes[n.ID()] = h
	s.nodeOrder = append(s.nodeOrder, n.ID())
	s.observe(OpAdd, KindNode)
	s.logger.Debug("Scene node added", zap.String("nodeID", n.ID().String()), zap.String("handle", string(h)))
	return nil
}

func (s *Synchronizer) modifyNode(previous, current *entities.GraphNode) error {
	h, ok := s.nodes[current.ID()]
	if !ok {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("node '%s' has no scene handle", current.ID()))
	}
	delta := NodeDelta(previous, current)
	if len(delta) == 0 {
		return nil
	}
	if err := s.renderer.Modify(h, delta); err != nil {
		return rendererFailure("modify node", current.ID().String(), err)
	}
	s.observe(OpModify, KindNode)
	return nil
}

func (s *Synchronizer) removeNode(id valueobjects.NodeID) error {
	h, ok := s.nodes[id]
	if !ok {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("node '%s' has no scene handle", id))
	}
	if err := s.renderer.Remove(h); err != nil {
		return rendererFailure("remove node", id.String(), err)
	}
	delete(s.nodes, id)
	s.nodeOrder = removeID(s.nodeOrder, id)
	s.observe(OpRemove, KindNode)
	return nil
}

func (s *Synchronizer) addEdge(e *entities.GraphEdge) error {
	if _, ok := s.edges[e.ID()]; ok {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("edge '%s' already has a scene handle", e.ID()))
	}
	source, ok := s.nodes[e.SourceID()]
	if !ok {
		return pkgerrors.NewSceneConsistencyError(
			fmt.Sprintf("edge '%s' source node '%s' has no scene handle", e.ID(), e.SourceID()))
	}
	target, ok := s.nodes[e.TargetID()]
	if !ok {
		return pkgerrors.NewSceneConsistencyError(
			fmt.Sprintf("edge '%s' target node '%s' has no scene handle", e.ID(), e.TargetID()))
	}

	h, err := s.renderer.Add(KindEdge, e.ID().String(), EdgeAttrs(e, source, target))
	if err != nil {
		return rendererFailure("add edge", e.ID().String(), err)
	}
	s.edges[e.ID()] = h
	s.edgeOrder = append(s.edgeOrder, e.ID())
	s.observe(OpAdd, KindEdge)
	s.logger.Debug("Scene edge added", zap.String("edgeID", e.ID().String()), zap.String("handle", string(h)))
	return nil
}

func (s *Synchronizer) removeEdge(id valueobjects.EdgeID) error {
	h, ok := s.edges[id]
	if !ok {
		return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("edge '%s' has no scene handle", id))
	}
	if err := s.renderer.Remove(h); err != nil {
		return rendererFailure("remove edge", id.String(), err)
	}
	delete(s.edges, id)
	s.edgeOrder = removeID(s.edgeOrder, id)
	s.observe(OpRemove, KindEdge)
	return nil
}

func (s *Synchronizer) observe(op OpType, kind EntityKind) {
	if s.observer != nil {
		s.observer.ObserveSceneOp(string(op), string(kind))
	}
}

func rendererFailure(op, id string, err error) error {
	return pkgerrors.NewSceneConsistencyError(fmt.Sprintf("renderer failed to %s '%s'", op, id)).WithCause(err)
}

func removeID[T comparable](ids []T, id T) []T {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
