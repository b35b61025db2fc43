package config

import (
	pkgerrors "graphscape/pkg/errors"
)

// DomainConfig holds the configurable limits and rules of the graph model
type DomainConfig struct {
	// Graph constraints
	MaxNodesPerGraph int
	MaxEdgesPerGraph int

	// Reconciliation
	MaxDeferredEdges int

	// Edge constraints
	AllowSelfConnections bool

	// Layout
	AutoLayout   bool
	LayoutRadius float64
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxNodesPerGraph: 10000,
		MaxEdgesPerGraph: 50000,

		MaxDeferredEdges: 1024,

		AllowSelfConnections: true,

		AutoLayout:   true,
		LayoutRadius: 10,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Tighter limits keep scene sizes bounded
	config.MaxNodesPerGraph = 5000
	config.MaxEdgesPerGraph = 25000
	config.MaxDeferredEdges = 512

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxNodesPerGraph = 100000
	config.MaxEdgesPerGraph = 500000
	config.MaxDeferredEdges = 4096

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid. Zero limits mean unlimited.
func (c *DomainConfig) Validate() error {
	if c.MaxNodesPerGraph < 0 || c.MaxEdgesPerGraph < 0 || c.MaxDeferredEdges < 0 {
		return pkgerrors.NewValidationError("domain limits cannot be negative")
	}
	if c.AutoLayout && c.LayoutRadius <= 0 {
		return pkgerrors.NewValidationError("layout radius must be positive when auto layout is enabled")
	}
	return nil
}
