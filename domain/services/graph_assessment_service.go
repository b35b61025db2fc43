package services

import (
	"fmt"

	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/valueobjects"
)

// AlgorithmIDKey is the property every node of an algorithm pipeline must carry
const AlgorithmIDKey = "algorithm_id"

// Assessment is the outcome of checking a graph against the structure target
type Assessment struct {
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
}

// GraphAssessmentService scores how well a graph fits the requested structure target.
// It never mutates the graph.
type GraphAssessmentService struct{}

// NewGraphAssessmentService creates a new graph assessment service
func NewGraphAssessmentService() *GraphAssessmentService {
	return &GraphAssessmentService{}
}

// Assess applies the domain checks for target and returns a confidence in [0,1]
func (s *GraphAssessmentService) Assess(snapshot *aggregates.Snapshot, target valueobjects.StructureTarget) Assessment {
	result := Assessment{Confidence: 1.0, Warnings: []string{}}

	if snapshot == nil || snapshot.IsEmpty() {
		result.Confidence = 0
		result.Warnings = append(result.Warnings, "Empty graph: no nodes extracted")
		return result
	}

	nodes := snapshot.Nodes()
	edges := snapshot.Edges()

	degree := snapshot.Degree()
	for _, node := range nodes {
		if degree[node.ID()] == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Orphan node: '%s'", node.Label()))
			result.Confidence -= 0.05
		}
	}

	switch target {
	case valueobjects.StructureTargetConcept, valueobjects.StructureTargetScenario:
		hasCausal := false
		for _, edge := range edges {
			if edge.Kind().IsCausal() {
				hasCausal = true
				break
			}
		}
		if !hasCausal {
			result.Warnings = append(result.Warnings, "No causal edges (INFLUENCES/DEPENDS_ON) found")
			result.Confidence -= 0.1
		}

		if target == valueobjects.StructureTargetScenario {
			hasScenario := false
			for _, node := range nodes {
				if node.Kind() == valueobjects.NodeKindScenario {
					hasScenario = true
					break
				}
			}
			if !hasScenario {
				result.Warnings = append(result.Warnings, "No SCENARIO node found: missing perturbation entry point")
				result.Confidence -= 0.15
			}
		}

	case valueobjects.StructureTargetEntity:
		hasSpatial := false
		for _, edge := range edges {
			if edge.Kind().IsSpatial() {
				hasSpatial = true
				break
			}
		}
		if !hasSpatial {
			result.Warnings = append(result.Warnings, "No spatial edges (ADJACENT/CONTAINS) found")
			result.Confidence -= 0.1
		}

	case valueobjects.StructureTargetAlgorithm:
		if snapshot.HasCycle() {
			result.Warnings = append(result.Warnings, "Cycle detected in algorithm pipeline: topological sort will fail")
			result.Confidence = 0
		}
		for _, node := range nodes {
			if _, ok := valueobjects.FindProperty(node.Properties(), AlgorithmIDKey); !ok {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Node '%s' missing required '%s' property", node.Label(), AlgorithmIDKey))
				result.Confidence -= 0.1
			}
		}
	}

	result.Confidence = clamp(result.Confidence, 0, 1)
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
