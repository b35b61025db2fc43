package services

import (
	"math"

	"graphscape/domain/config"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
)

// LayoutService places nodes that arrived without a position.
// Placement depends only on append order, so replays lay out identically.
type LayoutService struct {
	radius float64
}

// NewLayoutService creates a layout service using the configured sphere radius
func NewLayoutService(cfg *config.DomainConfig) *LayoutService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	radius := cfg.LayoutRadius
	if radius <= 0 {
		radius = config.DefaultDomainConfig().LayoutRadius
	}
	return &LayoutService{radius: radius}
}

// SpherePoint returns the i-th of n points on a Fibonacci sphere
func (s *LayoutService) SpherePoint(i, n int) valueobjects.Position {
	if n <= 1 {
		pos, _ := valueobjects.NewPosition3D(0, 0, 0)
		return pos
	}

	golden := math.Pi * (3 - math.Sqrt(5))
	y := 1 - (float64(i)/float64(n-1))*2
	r := math.Sqrt(1 - y*y)
	theta := golden * float64(i)

	pos, _ := valueobjects.NewPosition3D(
		math.Cos(theta)*r*s.radius,
		y*s.radius,
		math.Sin(theta)*r*s.radius,
	)
	return pos
}

// Plan returns positioned copies of every unplaced node, indexed over the whole
// graph so already-placed nodes keep their slot free.
func (s *LayoutService) Plan(snapshot *aggregates.Snapshot) []*entities.GraphNode {
	nodes := snapshot.Nodes()
	var placed []*entities.GraphNode
	for i, node := range nodes {
		if node.HasPosition() {
			continue
		}
		placed = append(placed, node.WithPosition(s.SpherePoint(i, len(nodes))))
	}
	return placed
}

// Apply positions every unplaced node of g through UpsertNode, which raises
// one NodeUpdated per node. It returns the number of nodes placed.
func (s *LayoutService) Apply(g *aggregates.Graph) (int, error) {
	placed := s.Plan(g.Snapshot())
	for i, node := range placed {
		if err := g.UpsertNode(node); err != nil {
			return i, err
		}
	}
	return len(placed), nil
}
