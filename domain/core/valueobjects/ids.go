package valueobjects

import "fmt"

// NodeID identifies a node within one graph. It is immutable once assigned.
type NodeID string

// String returns the string representation
func (id NodeID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty
func (id NodeID) IsZero() bool {
	return id == ""
}

// EdgeID identifies an edge within one graph.
type EdgeID string

// String returns the string representation
func (id EdgeID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty
func (id EdgeID) IsZero() bool {
	return id == ""
}

// DeriveEdgeID builds the id used for edges that arrive without one.
// The result only depends on its inputs so replays produce the same graph.
func DeriveEdgeID(source, target NodeID, kind EdgeKind) EdgeID {
	return EdgeID(fmt.Sprintf("%s->%s#%s", source, target, kind))
}
