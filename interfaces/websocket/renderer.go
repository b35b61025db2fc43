package websocket

import (
	"sync"

	"go.uber.org/zap"

	"graphscape/application/scene"
)

// HubRenderer is a scene.Renderer whose scene lives in the browsers
// connected to a Hub. Handles are allocated by an in-memory scene, which
// also answers snapshot requests from clients that join late.
type HubRenderer struct {
	mu     sync.Mutex
	scene  *scene.MemoryRenderer
	hub    *Hub
	logger *zap.Logger
	seq    uint64
}

var _ scene.Renderer = (*HubRenderer)(nil)

// NewHubRenderer creates a renderer broadcasting through hub and installs
// itself as the hub's snapshot source
func NewHubRenderer(hub *Hub, logger *zap.Logger) *HubRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &HubRenderer{
		scene:  scene.NewMemoryRenderer(false),
		hub:    hub,
		logger: logger,
	}
	hub.SetSnapshotSource(r.snapshot)
	return r
}

// Add allocates a handle and broadcasts the add
func (r *HubRenderer) Add(kind scene.EntityKind, id string, attrs scene.Attrs) (scene.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.scene.Add(kind, id, attrs)
	if err != nil {
		return "", err
	}
	r.publish(scene.Op{Type: scene.OpAdd, Kind: kind, ID: id, Handle: h, Attrs: attrs})
	return h, nil
}

// Remove disposes the object and broadcasts the removal
func (r *HubRenderer) Remove(h scene.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.scene.Object(h)
	if err := r.scene.Remove(h); err != nil {
		return err
	}
	op := scene.Op{Type: scene.OpRemove, Handle: h}
	if ok {
		op.Kind, op.ID = obj.Kind, obj.ID
	}
	r.publish(op)
	return nil
}

// Modify merges attrs and broadcasts the delta
func (r *HubRenderer) Modify(h scene.Handle, attrs scene.Attrs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.scene.Modify(h, attrs); err != nil {
		return err
	}
	obj, _ := r.scene.Object(h)
	r.publish(scene.Op{Type: scene.OpModify, Kind: obj.Kind, ID: obj.ID, Handle: h, Attrs: attrs})
	return nil
}

// Live returns the number of objects in the scene
func (r *HubRenderer) Live() int {
	return r.scene.Live()
}

// Seq returns the sequence number of the last broadcast operation
func (r *HubRenderer) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// publish must run with r.mu held so sequence numbers follow scene order.
// It never blocks: the hub loop takes r.mu for snapshots. A dropped frame
// is logged and the browser recovers with a resync.
func (r *HubRenderer) publish(op scene.Op) {
	r.seq++
	if err := r.hub.TryPublish(TypeSceneOp, r.seq, op); err != nil {
		r.logger.Warn("Scene operation not broadcast",
			zap.String("op", string(op.Type)),
			zap.String("handle", string(op.Handle)),
			zap.Uint64("seq", r.seq),
			zap.Error(err))
	}
}

func (r *HubRenderer) snapshot() (interface{}, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scene.Scene(), r.seq
}
