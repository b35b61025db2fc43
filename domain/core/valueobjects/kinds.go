package valueobjects

import "strings"

// NodeKind classifies a graph node. Values match the wire enum.
type NodeKind int32

const (
	NodeKindUnspecified NodeKind = 0
	NodeKindConcept     NodeKind = 1
	NodeKindEntity      NodeKind = 2
	NodeKindScenario    NodeKind = 3
	NodeKindAlgorithm   NodeKind = 4
)

var nodeKindNames = map[NodeKind]string{
	NodeKindUnspecified: "unspecified",
	NodeKindConcept:     "concept",
	NodeKindEntity:      "entity",
	NodeKindScenario:    "scenario",
	NodeKindAlgorithm:   "algorithm",
}

// String returns the lower-case name of the kind
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// IsValid checks if the node kind is a known enum value
func (k NodeKind) IsValid() bool {
	_, ok := nodeKindNames[k]
	return ok
}

// ParseNodeKind parses a kind name; unknown names map to NodeKindUnspecified.
func ParseNodeKind(s string) NodeKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range nodeKindNames {
		if name == s {
			return kind
		}
	}
	return NodeKindUnspecified
}

// EdgeKind classifies the relationship between two nodes. Values match the wire enum.
type EdgeKind int32

const (
	EdgeKindUnspecified EdgeKind = 0
	EdgeKindInfluences  EdgeKind = 1
	EdgeKindDependsOn   EdgeKind = 2
	EdgeKindAdjacent    EdgeKind = 3
	EdgeKindContains    EdgeKind = 4
	EdgeKindConflicts   EdgeKind = 5
	EdgeKindSupports    EdgeKind = 6
)

var edgeKindNames = map[EdgeKind]string{
	EdgeKindUnspecified: "unspecified",
	EdgeKindInfluences:  "influences",
	EdgeKindDependsOn:   "depends_on",
	EdgeKindAdjacent:    "adjacent",
	EdgeKindContains:    "contains",
	EdgeKindConflicts:   "conflicts",
	EdgeKindSupports:    "supports",
}

// String returns the lower-case name of the kind
func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// IsValid checks if the edge kind is a known enum value
func (k EdgeKind) IsValid() bool {
	_, ok := edgeKindNames[k]
	return ok
}

// IsCausal reports whether the kind expresses cause and effect.
func (k EdgeKind) IsCausal() bool {
	return k == EdgeKindInfluences || k == EdgeKindDependsOn
}

// IsSpatial reports whether the kind expresses a spatial relationship.
func (k EdgeKind) IsSpatial() bool {
	return k == EdgeKindAdjacent || k == EdgeKindContains
}

// ParseEdgeKind parses a kind name; unknown names map to EdgeKindUnspecified.
func ParseEdgeKind(s string) EdgeKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range edgeKindNames {
		if name == s {
			return kind
		}
	}
	return EdgeKindUnspecified
}

// StructureTarget selects the kind of structure the backend extracts from raw input.
type StructureTarget int32

const (
	StructureTargetUnspecified StructureTarget = 0
	StructureTargetConcept     StructureTarget = 1
	StructureTargetEntity      StructureTarget = 2
	StructureTargetScenario    StructureTarget = 3
	StructureTargetAlgorithm   StructureTarget = 4
)

var structureTargetNames = map[StructureTarget]string{
	StructureTargetUnspecified: "unspecified",
	StructureTargetConcept:     "concept",
	StructureTargetEntity:      "entity",
	StructureTargetScenario:    "scenario",
	StructureTargetAlgorithm:   "algorithm",
}

// String returns the lower-case name of the target
func (t StructureTarget) String() string {
	if name, ok := structureTargetNames[t]; ok {
		return name
	}
	return "unspecified"
}

// ParseStructureTarget parses a target name; unknown names map to StructureTargetUnspecified.
func ParseStructureTarget(s string) StructureTarget {
	s = strings.ToLower(strings.TrimSpace(s))
	for target, name := range structureTargetNames {
		if name == s {
			return target
		}
	}
	return StructureTargetUnspecified
}

// ModuleKind selects the backend module an algorithm suggestion is drawn from.
type ModuleKind int32

const (
	ModuleKindUnspecified ModuleKind = 0
	ModuleKindGeometry    ModuleKind = 1
	ModuleKindReasoning   ModuleKind = 2
)

// String returns the lower-case name of the module
func (m ModuleKind) String() string {
	switch m {
	case ModuleKindGeometry:
		return "geometry"
	case ModuleKindReasoning:
		return "reasoning"
	default:
		return "unspecified"
	}
}

// ParseModuleKind parses a module name; unknown names map to ModuleKindUnspecified.
func ParseModuleKind(s string) ModuleKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "geometry":
		return ModuleKindGeometry
	case "reasoning":
		return ModuleKindReasoning
	default:
		return ModuleKindUnspecified
	}
}
