package events

import pkgerrors "graphscape/pkg/errors"

// WarningKind classifies non-fatal reconciliation problems
type WarningKind string

const (
	WarningNodeCollision       WarningKind = "node_collision"
	WarningEdgeCollision       WarningKind = "edge_collision"
	WarningDroppedDeferredEdge WarningKind = "dropped_deferred_edge"
	WarningUpstream            WarningKind = "upstream"
	WarningInvalidChunk        WarningKind = "invalid_chunk"
	WarningLimitExceeded       WarningKind = "limit_exceeded"
)

// Warning is reported to subscribers as data; it never aborts a stream.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	EntityID string      `json:"entityId,omitempty"`
}

// Err renders the warning as a non-fatal RECONCILIATION_WARNING error
func (w Warning) Err() error {
	err := pkgerrors.NewReconciliationWarning(w.Message).WithCode(string(w.Kind))
	if w.EntityID != "" {
		err = err.WithDetails(map[string]interface{}{"entityId": w.EntityID})
	}
	return err
}

// WarningRaised carries one reconciliation warning
type WarningRaised struct {
	BaseEvent
	Warning Warning `json:"warning"`
}

// NewWarningRaised creates a WarningRaised event
func NewWarningRaised(graphID string, seq uint64, w Warning) WarningRaised {
	return WarningRaised{BaseEvent: newBase(graphID, TypeWarningRaised, seq), Warning: w}
}

// ConfidenceReported passes the upstream confidence score through unchanged
type ConfidenceReported struct {
	BaseEvent
	Confidence float64 `json:"confidence"`
}

// NewConfidenceReported creates a ConfidenceReported event
func NewConfidenceReported(graphID string, seq uint64, confidence float64) ConfidenceReported {
	return ConfidenceReported{BaseEvent: newBase(graphID, TypeConfidenceReported, seq), Confidence: confidence}
}

// CompletionReason tells how a structuring stream ended
type CompletionReason string

const (
	CompletionFinal     CompletionReason = "final"
	CompletionClosed    CompletionReason = "closed"
	CompletionCancelled CompletionReason = "cancelled"
	CompletionFailed    CompletionReason = "failed"
)

// IsSuccess reports whether the stream ended without cancellation or failure
func (r CompletionReason) IsSuccess() bool {
	return r == CompletionFinal || r == CompletionClosed
}

// StreamCompleted is the last event of every structuring stream
type StreamCompleted struct {
	BaseEvent
	Reason       CompletionReason `json:"reason"`
	NodesAdded   int              `json:"nodesAdded"`
	EdgesAdded   int              `json:"edgesAdded"`
	DroppedEdges int              `json:"droppedEdges"`
	Warnings     int              `json:"warnings"`
}

// NewStreamCompleted creates a StreamCompleted event
func NewStreamCompleted(graphID string, seq uint64, reason CompletionReason, nodes, edges, dropped, warnings int) StreamCompleted {
	return StreamCompleted{
		BaseEvent:    newBase(graphID, TypeStreamCompleted, seq),
		Reason:       reason,
		NodesAdded:   nodes,
		EdgesAdded:   edges,
		DroppedEdges: dropped,
		Warnings:     warnings,
	}
}
