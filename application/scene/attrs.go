package scene

import (
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// NodeAttrs describes a node for Renderer.Add
func NodeAttrs(n *entities.GraphNode) Attrs {
	attrs := Attrs{
		"label":      n.Label(),
		"kind":       n.Kind().String(),
		"properties": n.Properties(),
	}
	if pos, ok := n.Position(); ok {
		attrs["position"] = positionAttr(pos)
	}
	return attrs
}

// NodeDelta returns the attributes that differ between two versions of a
// node. A removed position is reported as a nil position.
func NodeDelta(previous, current *entities.GraphNode) Attrs {
	if previous == nil {
		return NodeAttrs(current)
	}
	delta := Attrs{}
	if previous.Label() != current.Label() {
		delta["label"] = current.Label()
	}
	if previous.Kind() != current.Kind() {
		delta["kind"] = current.Kind().String()
	}
	if !valueobjects.PropertiesEqual(previous.Properties(), current.Properties()) {
		delta["properties"] = current.Properties()
	}

	prevPos, hadPos := previous.Position()
	curPos, hasPos := current.Position()
	switch {
	case hasPos && (!hadPos || !prevPos.Equals(curPos)):
		delta["position"] = positionAttr(curPos)
	case hadPos && !hasPos:
		delta["position"] = nil
	}
	return delta
}

// EdgeAttrs describes an edge for Renderer.Add, connecting the handles of
// its endpoints
func EdgeAttrs(e *entities.GraphEdge, source, target Handle) Attrs {
	return Attrs{
		"source":     source,
		"target":     target,
		"sourceId":   e.SourceID().String(),
		"targetId":   e.TargetID().String(),
		"kind":       e.Kind().String(),
		"weight":     e.Weight(),
		"properties": e.Properties(),
	}
}

func positionAttr(p valueobjects.Position) []float64 {
	return []float64{p.X(), p.Y(), p.Z()}
}
