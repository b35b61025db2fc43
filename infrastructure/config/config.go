// Package config loads graphscape configuration from layered YAML files and
// GRAPHSCAPE_* environment variables, and hot reloads the safe subset of it.
package config

import (
	"time"

	domainconfig "graphscape/domain/config"
	pkgerrors "graphscape/pkg/errors"
	"graphscape/pkg/utils"
)

// Environment names a deployment environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	Environment Environment      `yaml:"environment" validate:"required,oneof=development staging production"`
	Log         LogConfig        `yaml:"log"`
	Backend     BackendConfig    `yaml:"backend"`
	Connection  ConnectionConfig `yaml:"connection"`
	Breaker     BreakerConfig    `yaml:"breaker"`
	Domain      DomainConfig     `yaml:"domain"`
	HTTP        HTTPConfig       `yaml:"http"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Tracing     TracingConfig    `yaml:"tracing"`

	// LoadedFrom lists the sources applied, lowest priority first
	LoadedFrom []string `yaml:"-"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// BackendConfig describes how to reach the remote backend
type BackendConfig struct {
	Target          string        `yaml:"target" validate:"required"`
	Insecure        bool          `yaml:"insecure"`
	DialTimeout     time.Duration `yaml:"dialTimeout" validate:"gte=0"`
	CallTimeout     time.Duration `yaml:"callTimeout" validate:"gte=0"`
	ProbeTimeout    time.Duration `yaml:"probeTimeout" validate:"gt=0"`
	MaxRecvMsgBytes int           `yaml:"maxRecvMsgBytes" validate:"gte=0"`
}

// ConnectionConfig drives the connection state machine
type ConnectionConfig struct {
	AutoConnect      bool          `yaml:"autoConnect"`
	LivenessInterval time.Duration `yaml:"livenessInterval" validate:"gte=0"`
	Reconnect        bool          `yaml:"reconnect"`
}

// BreakerConfig configures the circuit breaker in front of backend calls
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"maxRequests" validate:"gte=1"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failureThreshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"minRequests" validate:"gte=1"`
}

// DomainConfig mirrors the graph model limits. Zero limits mean unlimited.
type DomainConfig struct {
	MaxNodesPerGraph int     `yaml:"maxNodesPerGraph" validate:"gte=0"`
	MaxEdgesPerGraph int     `yaml:"maxEdgesPerGraph" validate:"gte=0"`
	MaxDeferredEdges int     `yaml:"maxDeferredEdges" validate:"gte=0"`
	AutoLayout       bool    `yaml:"autoLayout"`
	LayoutRadius     float64 `yaml:"layoutRadius" validate:"gte=0"`
}

// HTTPConfig configures the UI read boundary
type HTTPConfig struct {
	Address    string `yaml:"address" validate:"required"`
	EnableCORS bool   `yaml:"enableCORS"`
}

// MetricsConfig toggles the Prometheus collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SampleRate float64 `yaml:"sampleRate" validate:"gte=0,lte=1"`
}

// Default returns a configuration that runs against a local backend
func Default(env Environment) *Config {
	domain := domainconfig.LoadDomainConfig(string(env))
	return &Config{
		Environment: env,
		Log:         LogConfig{Level: "info"},
		Backend: BackendConfig{
			Target:          "localhost:50051",
			Insecure:        true,
			DialTimeout:     5 * time.Second,
			CallTimeout:     30 * time.Second,
			ProbeTimeout:    3 * time.Second,
			MaxRecvMsgBytes: 16 << 20,
		},
		Connection: ConnectionConfig{
			AutoConnect:      true,
			LivenessInterval: 15 * time.Second,
			Reconnect:        true,
		},
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Domain: DomainConfig{
			MaxNodesPerGraph: domain.MaxNodesPerGraph,
			MaxEdgesPerGraph: domain.MaxEdgesPerGraph,
			MaxDeferredEdges: domain.MaxDeferredEdges,
			AutoLayout:       domain.AutoLayout,
			LayoutRadius:     domain.LayoutRadius,
		},
		HTTP: HTTPConfig{
			Address:    ":8080",
			EnableCORS: env == Development,
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
		},
	}
}

// Validate checks struct tags and the domain rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.DomainConfig().Validate(); err != nil {
		return pkgerrors.Wrap(err, "domain")
	}
	return nil
}

// DomainConfig converts the domain section into the graph model's settings
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	dc := domainconfig.DefaultDomainConfig()
	dc.MaxNodesPerGraph = c.Domain.MaxNodesPerGraph
	dc.MaxEdgesPerGraph = c.Domain.MaxEdgesPerGraph
	dc.MaxDeferredEdges = c.Domain.MaxDeferredEdges
	dc.AutoLayout = c.Domain.AutoLayout
	dc.LayoutRadius = c.Domain.LayoutRadius
	return dc
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// Clone returns a copy that shares no slices with c
func (c *Config) Clone() *Config {
	out := *c
	out.LoadedFrom = append([]string(nil), c.LoadedFrom...)
	return &out
}
