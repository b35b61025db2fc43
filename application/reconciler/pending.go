package reconciler

import (
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// pendingKey identifies the endpoints a deferred edge waits on
type pendingKey struct {
	source valueobjects.NodeID
	target valueobjects.NodeID
}

// pendingBuffer holds deferred edges keyed by their endpoints, remembering
// arrival order so flushes and drops are deterministic
type pendingBuffer struct {
	order []*entities.GraphEdge
	byKey map[pendingKey][]*entities.GraphEdge
	byID  map[valueobjects.EdgeID]*entities.GraphEdge
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{
		byKey: make(map[pendingKey][]*entities.GraphEdge),
		byID:  make(map[valueobjects.EdgeID]*entities.GraphEdge),
	}
}

func keyOf(e *entities.GraphEdge) pendingKey {
	return pendingKey{source: e.SourceID(), target: e.TargetID()}
}

func (b *pendingBuffer) Len() int {
	return len(b.order)
}

func (b *pendingBuffer) get(id valueobjects.EdgeID) (*entities.GraphEdge, bool) {
	e, ok := b.byID[id]
	return e, ok
}

// between returns the edges waiting on exactly this source and target
func (b *pendingBuffer) between(source, target valueobjects.NodeID) []*entities.GraphEdge {
	return b.byKey[pendingKey{source: source, target: target}]
}

func (b *pendingBuffer) add(e *entities.GraphEdge) {
	k := keyOf(e)
	b.order = append(b.order, e)
	b.byKey[k] = append(b.byKey[k], e)
	b.byID[e.ID()] = e
}

func (b *pendingBuffer) remove(e *entities.GraphEdge) {
	b.order = without(b.order, e)
	k := keyOf(e)
	if rest := without(b.byKey[k], e); len(rest) > 0 {
		b.byKey[k] = rest
	} else {
		delete(b.byKey, k)
	}
	delete(b.byID, e.ID())
}

// takeResolvable removes and returns, in arrival order, the edges whose
// endpoints all satisfy present
func (b *pendingBuffer) takeResolvable(present func(valueobjects.NodeID) bool) []*entities.GraphEdge {
	var ready []*entities.GraphEdge
	for _, e := range b.order {
		if present(e.SourceID()) && present(e.TargetID()) {
			ready = append(ready, e)
		}
	}
	for _, e := range ready {
		b.remove(e)
	}
	return ready
}

func (b *pendingBuffer) takeOldest() *entities.GraphEdge {
	if len(b.order) == 0 {
		return nil
	}
	e := b.order[0]
	b.remove(e)
	return e
}

func (b *pendingBuffer) drain() []*entities.GraphEdge {
	out := b.order
	b.order = nil
	b.byKey = make(map[pendingKey][]*entities.GraphEdge)
	b.byID = make(map[valueobjects.EdgeID]*entities.GraphEdge)
	return out
}

func without(edges []*entities.GraphEdge, e *entities.GraphEdge) []*entities.GraphEdge {
	for i, x := range edges {
		if x == e {
			return append(edges[:i:i], edges[i+1:]...)
		}
	}
	return edges
}
