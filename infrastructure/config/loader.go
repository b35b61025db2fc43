package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pkgerrors "graphscape/pkg/errors"
)

// EnvPrefix prefixes every environment variable the loader reads
const EnvPrefix = "GRAPHSCAPE_"

// Loader builds a Config from layered sources. The loading order, lowest
// priority first:
//  1. Defaults for the environment
//  2. <dir>/base.yaml
//  3. <dir>/<environment>.yaml
//  4. GRAPHSCAPE_* environment variables
type Loader struct {
	dir         string
	environment Environment
	lookupEnv   func(string) (string, bool)
}

// NewLoader creates a loader reading files from dir
func NewLoader(dir string, env Environment) *Loader {
	if dir == "" {
		dir = "config"
	}
	if env == "" {
		env = Development
	}
	return &Loader{
		dir:         dir,
		environment: env,
		lookupEnv:   os.LookupEnv,
	}
}

// NewLoaderFromEnv picks the directory and environment from
// GRAPHSCAPE_CONFIG_DIR and GRAPHSCAPE_ENVIRONMENT
func NewLoaderFromEnv() *Loader {
	return NewLoader(os.Getenv(EnvPrefix+"CONFIG_DIR"), Environment(os.Getenv(EnvPrefix+"ENVIRONMENT")))
}

// Dir returns the directory configuration files are read from
func (l *Loader) Dir() string {
	return l.dir
}

// Environment returns the environment whose overlay file is applied
func (l *Loader) Environment() Environment {
	return l.environment
}

// Load reads every source in order and validates the result
func (l *Loader) Load() (*Config, error) {
	cfg := Default(l.environment)
	sources := []string{"defaults"}

	for _, name := range []string{"base", string(l.environment)} {
		path, err := l.loadFile(name, cfg)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("failed to load %s config", name)).WithCause(err)
		}
		sources = append(sources, path)
	}

	// The environment picked the overlay file; files cannot move it
	cfg.Environment = l.environment

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	sources = append(sources, "environment")
	cfg.LoadedFrom = sources

	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// loadFile overlays <dir>/<name>.yaml (or .yml) onto cfg
func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, name+ext)
		file, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		err = decodeYAML(file, cfg)
		file.Close()
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", os.ErrNotExist
}

func decodeYAML(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays GRAPHSCAPE_* variables. Unparseable values are errors.
func (l *Loader) applyEnv(cfg *Config) error {
	p := envParser{lookup: l.lookupEnv}

	p.str("LOG_LEVEL", &cfg.Log.Level)

	p.str("BACKEND_TARGET", &cfg.Backend.Target)
	p.boolean("BACKEND_INSECURE", &cfg.Backend.Insecure)
	p.duration("BACKEND_DIAL_TIMEOUT", &cfg.Backend.DialTimeout)
	p.duration("BACKEND_CALL_TIMEOUT", &cfg.Backend.CallTimeout)
	p.duration("BACKEND_PROBE_TIMEOUT", &cfg.Backend.ProbeTimeout)
	p.integer("BACKEND_MAX_RECV_MSG_BYTES", &cfg.Backend.MaxRecvMsgBytes)

	p.boolean("CONNECTION_AUTO_CONNECT", &cfg.Connection.AutoConnect)
	p.duration("CONNECTION_LIVENESS_INTERVAL", &cfg.Connection.LivenessInterval)
	p.boolean("CONNECTION_RECONNECT", &cfg.Connection.Reconnect)

	p.uint32("BREAKER_MAX_REQUESTS", &cfg.Breaker.MaxRequests)
	p.duration("BREAKER_INTERVAL", &cfg.Breaker.Interval)
	p.duration("BREAKER_TIMEOUT", &cfg.Breaker.Timeout)
	p.float("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	p.uint32("BREAKER_MIN_REQUESTS", &cfg.Breaker.MinRequests)

	p.integer("DOMAIN_MAX_NODES_PER_GRAPH", &cfg.Domain.MaxNodesPerGraph)
	p.integer("DOMAIN_MAX_EDGES_PER_GRAPH", &cfg.Domain.MaxEdgesPerGraph)
	p.integer("DOMAIN_MAX_DEFERRED_EDGES", &cfg.Domain.MaxDeferredEdges)
	p.boolean("DOMAIN_AUTO_LAYOUT", &cfg.Domain.AutoLayout)
	p.float("DOMAIN_LAYOUT_RADIUS", &cfg.Domain.LayoutRadius)

	p.str("HTTP_ADDRESS", &cfg.HTTP.Address)
	p.boolean("HTTP_ENABLE_CORS", &cfg.HTTP.EnableCORS)
	p.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	p.boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	p.str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	p.float("TRACING_SAMPLE_RATE", &cfg.Tracing.SampleRate)

	if len(p.bad) > 0 {
		return pkgerrors.NewValidationError("invalid environment variables: " + strings.Join(p.bad, ", "))
	}
	return nil
}

type envParser struct {
	lookup func(string) (string, bool)
	bad    []string
}

func (p *envParser) get(key string) (string, bool) {
	v, ok := p.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *envParser) fail(key string) {
	p.bad = append(p.bad, EnvPrefix+key)
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *envParser) boolean(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key)
			return
		}
		*dst = b
	}
}

func (p *envParser) integer(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key)
			return
		}
		*dst = n
	}
}

func (p *envParser) uint32(key string, dst *uint32) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail(key)
			return
		}
		*dst = uint32(n)
	}
}

func (p *envParser) float(key string, dst *float64) {
	if v, ok := p.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key)
			return
		}
		*dst = f
	}
}

func (p *envParser) duration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key)
			return
		}
		*dst = d
	}
}
