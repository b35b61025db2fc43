package aggregates

import (
	"encoding/json"

	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// Snapshot is an immutable copy of a graph at one version.
// Nothing reachable from it is shared with the live graph.
type Snapshot struct {
	id      GraphID
	version uint64
	nodes   []*entities.GraphNode
	edges   []*entities.GraphEdge
	meta    []valueobjects.Property
}

// NewSnapshot assembles a snapshot from detached parts, e.g. a decoded wire graph.
func NewSnapshot(id GraphID, nodes []*entities.GraphNode, edges []*entities.GraphEdge, meta []valueobjects.Property) *Snapshot {
	s := &Snapshot{id: id, meta: valueobjects.CloneProperties(meta)}
	for _, n := range nodes {
		s.nodes = append(s.nodes, n.Clone())
	}
	for _, e := range edges {
		s.edges = append(s.edges, e.Clone())
	}
	return s
}

// ID returns the graph id at the time of the snapshot
func (s *Snapshot) ID() GraphID {
	return s.id
}

// Version returns the graph version at the time of the snapshot
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Nodes returns copies of the nodes in append order
func (s *Snapshot) Nodes() []*entities.GraphNode {
	out := make([]*entities.GraphNode, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns copies of the edges in append order
func (s *Snapshot) Edges() []*entities.GraphEdge {
	out := make([]*entities.GraphEdge, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.Clone()
	}
	return out
}

// Meta returns a copy of the graph-level properties
func (s *Snapshot) Meta() []valueobjects.Property {
	return valueobjects.CloneProperties(s.meta)
}

// NodeCount returns the number of nodes
func (s *Snapshot) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges
func (s *Snapshot) EdgeCount() int {
	return len(s.edges)
}

// IsEmpty reports whether the snapshot holds no nodes
func (s *Snapshot) IsEmpty() bool {
	return len(s.nodes) == 0
}

// Equal compares two snapshots by content, ignoring id and version
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.nodes) != len(other.nodes) || len(s.edges) != len(other.edges) {
		return false
	}
	for i := range s.nodes {
		if !s.nodes[i].Equal(other.nodes[i]) {
			return false
		}
	}
	for i := range s.edges {
		if !s.edges[i].Equal(other.edges[i]) {
			return false
		}
	}
	return valueobjects.PropertiesEqual(s.meta, other.meta)
}

// Degree returns the number of edges touching each node
func (s *Snapshot) Degree() map[valueobjects.NodeID]int {
	degree := make(map[valueobjects.NodeID]int, len(s.nodes))
	for _, n := range s.nodes {
		degree[n.ID()] = 0
	}
	for _, e := range s.edges {
		degree[e.SourceID()]++
		if e.TargetID() != e.SourceID() {
			degree[e.TargetID()]++
		}
	}
	return degree
}

// HasCycle reports whether the directed edges form a cycle
func (s *Snapshot) HasCycle() bool {
	adjacency := make(map[valueobjects.NodeID][]valueobjects.NodeID, len(s.nodes))
	for _, e := range s.edges {
		adjacency[e.SourceID()] = append(adjacency[e.SourceID()], e.TargetID())
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[valueobjects.NodeID]int, len(s.nodes))

	var visit func(valueobjects.NodeID) bool
	visit = func(id valueobjects.NodeID) bool {
		state[id] = inProgress
		for _, next := range adjacency[id] {
			switch state[next] {
			case inProgress:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for _, n := range s.nodes {
		if state[n.ID()] == unvisited && visit(n.ID()) {
			return true
		}
	}
	return false
}

// MarshalJSON renders the snapshot for the read boundary
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	nodes := s.nodes
	if nodes == nil {
		nodes = []*entities.GraphNode{}
	}
	edges := s.edges
	if edges == nil {
		edges = []*entities.GraphEdge{}
	}
	return json.Marshal(struct {
		ID      string                  `json:"id"`
		Version uint64                  `json:"version"`
		Nodes   []*entities.GraphNode   `json:"nodes"`
		Edges   []*entities.GraphEdge   `json:"edges"`
		Meta    []valueobjects.Property `json:"meta,omitempty"`
	}{s.id.String(), s.version, nodes, edges, s.meta})
}
