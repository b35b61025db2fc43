// Package scene mirrors graph model events onto an external 3-D scene.
package scene

import (
	"fmt"
	"sort"
	"sync"

	pkgerrors "graphscape/pkg/errors"
)

// EntityKind tells the renderer what kind of object to allocate
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindEdge EntityKind = "edge"
)

// Handle is an opaque reference to a renderable object, owned by the renderer
type Handle string

// Attrs describes an object, or the changed part of one on Modify
type Attrs map[string]interface{}

// Renderer is the scene boundary. Implementations own the handles they return.
type Renderer interface {
	Add(kind EntityKind, id string, attrs Attrs) (Handle, error)
	Remove(h Handle) error
	Modify(h Handle, attrs Attrs) error
}

// OpType names a scene operation
type OpType string

const (
	OpAdd    OpType = "add"
	OpRemove OpType = "rem"
	OpModify OpType = "mod"
)

// Op is one scene operation as seen by a renderer
type Op struct {
	Type   OpType     `json:"op"`
	Kind   EntityKind `json:"kind,omitempty"`
	ID     string     `json:"id,omitempty"`
	Handle Handle     `json:"handle"`
	Attrs  Attrs      `json:"attrs,omitempty"`
}

// MemoryRenderer keeps the scene in memory and records every operation.
// It backs headless sessions and is the handle allocator for remote renderers.
type MemoryRenderer struct {
	mu     sync.Mutex
	next   uint64
	live   map[Handle]Op
	born   map[Handle]uint64
	ops    []Op
	record bool
}

// NewMemoryRenderer creates an empty scene. With record set every
// operation is kept for Ops.
func NewMemoryRenderer(record bool) *MemoryRenderer {
	return &MemoryRenderer{
		live:   make(map[Handle]Op),
		born:   make(map[Handle]uint64),
		record: record,
	}
}

// Add allocates a handle for a new object
func (m *MemoryRenderer) Add(kind EntityKind, id string, attrs Attrs) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	h := Handle(fmt.Sprintf("%s-%d", kind, m.next))
	op := Op{Type: OpAdd, Kind: kind, ID: id, Handle: h, Attrs: copyAttrs(attrs)}
	m.live[h] = op
	m.born[h] = m.next
	m.keep(op)
	return h, nil
}

// Remove disposes an object
func (m *MemoryRenderer) Remove(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.live[h]
	if !ok {
		return pkgerrors.NewNotFoundError(fmt.Sprintf("scene handle '%s'", h))
	}
	delete(m.live, h)
	delete(m.born, h)
	m.keep(Op{Type: OpRemove, Kind: obj.Kind, ID: obj.ID, Handle: h})
	return nil
}

// Modify merges attrs into an existing object
func (m *MemoryRenderer) Modify(h Handle, attrs Attrs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.live[h]
	if !ok {
		return pkgerrors.NewNotFoundError(fmt.Sprintf("scene handle '%s'", h))
	}
	merged := copyAttrs(obj.Attrs)
	if merged == nil {
		merged = Attrs{}
	}
	for k, v := range attrs {
		merged[k] = v
	}
	obj.Attrs = merged
	m.live[h] = obj
	m.keep(Op{Type: OpModify, Kind: obj.Kind, ID: obj.ID, Handle: h, Attrs: copyAttrs(attrs)})
	return nil
}

// Ops returns the recorded operations in order
func (m *MemoryRenderer) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// Live returns the number of objects in the scene
func (m *MemoryRenderer) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Object returns the current attributes of a live object
func (m *MemoryRenderer) Object(h Handle) (Op, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.live[h]
	return obj, ok
}

// Scene returns every live object as an add operation, oldest first.
// Replaying the result on an empty renderer rebuilds the current scene.
func (m *MemoryRenderer) Scene() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Op, 0, len(m.live))
	for _, obj := range m.live {
		obj.Type = OpAdd
		obj.Attrs = copyAttrs(obj.Attrs)
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.born[out[i].Handle] < m.born[out[j].Handle]
	})
	return out
}

func (m *MemoryRenderer) keep(op Op) {
	if m.record {
		m.ops = append(m.ops, op)
	}
}

func copyAttrs(a Attrs) Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
