package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "graphscape/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	for _, env := range []Environment{Development, Staging, Production} {
		t.Run(string(env), func(t *testing.T) {
			cfg := Default(env)
			assert.NoError(t, cfg.Validate())
			assert.Equal(t, "localhost:50051", cfg.Backend.Target)
		})
	}
	assert.Equal(t, 5000, Default(Production).Domain.MaxNodesPerGraph)
}

func TestLoader_LayeringOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
log:
  level: warn
backend:
  target: base:50051
  callTimeout: 10s
breaker:
  failureThreshold: 0.5
`)
	writeFile(t, dir, "staging.yaml", `
backend:
  target: staging:50051
domain:
  maxDeferredEdges: 64
`)

	loader := NewLoader(dir, Staging)
	loader.lookupEnv = envMap(map[string]string{
		"GRAPHSCAPE_BACKEND_TARGET":      "env:50051",
		"GRAPHSCAPE_CONNECTION_RECONNECT": "false",
	})

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, Staging, cfg.Environment)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "env:50051", cfg.Backend.Target)
	assert.Equal(t, 10*time.Second, cfg.Backend.CallTimeout)
	assert.Equal(t, 3*time.Second, cfg.Backend.ProbeTimeout)
	assert.Equal(t, 0.5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 64, cfg.Domain.MaxDeferredEdges)
	assert.False(t, cfg.Connection.Reconnect)
	assert.Equal(t, []string{
		"defaults",
		filepath.Join(dir, "base.yaml"),
		filepath.Join(dir, "staging.yaml"),
		"environment",
	}, cfg.LoadedFrom)

	assert.Equal(t, 64, cfg.DomainConfig().MaxDeferredEdges)
}

func TestLoader_MissingFilesUseDefaults(t *testing.T) {
	loader := NewLoader(t.TempDir(), Production)
	loader.lookupEnv = envMap(nil)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(Production).Backend, cfg.Backend)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     Environment
		base    string
		vars    map[string]string
		wantMsg string
	}{
		{
			name:    "unknown yaml field",
			env:     Development,
			base:    "backend:\n  tagret: x\n",
			wantMsg: "failed to load base config",
		},
		{
			name:    "unparseable env var",
			env:     Development,
			vars:    map[string]string{"GRAPHSCAPE_BACKEND_CALL_TIMEOUT": "soon"},
			wantMsg: "GRAPHSCAPE_BACKEND_CALL_TIMEOUT",
		},
		{
			name:    "threshold out of range",
			env:     Development,
			base:    "breaker:\n  failureThreshold: 1.5\n",
			wantMsg: "breaker.failurethreshold must be at most 1",
		},
		{
			name:    "unknown environment",
			env:     "qa",
			wantMsg: "environment must be one of",
		},
		{
			name:    "tracing without endpoint",
			env:     Development,
			vars:    map[string]string{"GRAPHSCAPE_TRACING_ENABLED": "true", "GRAPHSCAPE_TRACING_ENDPOINT": ""},
			base:    "tracing:\n  endpoint: \"\"\n",
			wantMsg: "tracing.endpoint is required",
		},
		{
			name:    "auto layout without radius",
			env:     Development,
			base:    "domain:\n  autoLayout: true\n  layoutRadius: 0\n",
			wantMsg: "layout radius must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.base != "" {
				writeFile(t, dir, "base.yaml", tt.base)
			}
			loader := NewLoader(dir, tt.env)
			loader.lookupEnv = envMap(tt.vars)

			_, err := loader.Load()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewLoaderFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAPHSCAPE_CONFIG_DIR", dir)
	t.Setenv("GRAPHSCAPE_ENVIRONMENT", "production")

	loader := NewLoaderFromEnv()
	assert.Equal(t, dir, loader.Dir())
	assert.Equal(t, Production, loader.Environment())
}

func TestWatcher_ReloadAppliesOnlyHotFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "log:\n  level: info\n")
	loader := NewLoader(dir, Staging)
	loader.lookupEnv = envMap(nil)

	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var calls int32
	var seenOld, seenNew *Config
	w.OnChange(func(old, updated *Config) {
		atomic.AddInt32(&calls, 1)
		seenOld, seenNew = old, updated
	})

	t.Run("unchanged files notify nobody", func(t *testing.T) {
		require.NoError(t, w.Reload())
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("hot fields applied and cold fields kept", func(t *testing.T) {
		writeFile(t, dir, "base.yaml", `
log:
  level: debug
backend:
  target: elsewhere:50051
breaker:
  minRequests: 20
connection:
  livenessInterval: 1m
`)
		require.NoError(t, w.Reload())
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		cfg := w.Config()
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, uint32(20), cfg.Breaker.MinRequests)
		assert.Equal(t, time.Minute, cfg.Connection.LivenessInterval)
		assert.Equal(t, "localhost:50051", cfg.Backend.Target)

		assert.Equal(t, "info", seenOld.Log.Level)
		assert.Same(t, cfg, seenNew)
	})

	t.Run("invalid reload keeps current config", func(t *testing.T) {
		writeFile(t, dir, "base.yaml", "log:\n  level: loud\n")
		err := w.Reload()
		require.Error(t, err)
		assert.Equal(t, "debug", w.Config().Log.Level)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestWatcher_CallbackPanicIsContained(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir, Production)
	loader.lookupEnv = envMap(nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var after bool
	w.OnChange(func(_, _ *Config) { panic("boom") })
	w.OnChange(func(_, _ *Config) { after = true })

	writeFile(t, dir, "production.yaml", "log:\n  level: error\n")
	require.NoError(t, w.Reload())
	assert.True(t, after)
}

func TestWatcher_FileChangeTriggersReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "log:\n  level: info\n")
	loader := NewLoader(dir, Development)
	loader.lookupEnv = envMap(nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := newWatcher(loader, initial, zap.NewNop(), 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan string, 1)
	w.OnChange(func(_, updated *Config) {
		select {
		case changed <- updated.Log.Level:
		default:
		}
	})

	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "base.yaml", "log:\n  level: warn\n")

	select {
	case level := <-changed:
		assert.Equal(t, "warn", level)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration change was not picked up")
	}
}

func TestWatcher_MissingDirectoryDisablesWatching(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent"), Development)
	loader.lookupEnv = envMap(nil)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, initial, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, w.fs)
	w.Stop()
	assert.Same(t, initial, w.Config())
}
