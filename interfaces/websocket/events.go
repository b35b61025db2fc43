package websocket

import (
	"go.uber.org/zap"

	"graphscape/domain/events"
)

// Stream event frame types
const (
	TypeStreamWarning    = "stream.warning"
	TypeStreamConfidence = "stream.confidence"
)

// ForwardStreamEvents is an events.Handler relaying reconciliation progress
// to browsers. Model events are skipped; the scene frames already carry them.
// It never fails, so a slow hub cannot abort a stream.
func (h *Hub) ForwardStreamEvents(e events.GraphEvent) error {
	var frameType string
	switch e.(type) {
	case events.WarningRaised:
		frameType = TypeStreamWarning
	case events.ConfidenceReported:
		frameType = TypeStreamConfidence
	case events.StreamCompleted:
		frameType = TypeStreamCompleted
	default:
		return nil
	}
	if err := h.Publish(frameType, 0, e); err != nil {
		h.logger.Warn("Stream event not broadcast",
			zap.String("eventType", e.GetEventType()),
			zap.Error(err))
	}
	return nil
}
