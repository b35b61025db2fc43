package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"graphscape/domain/events"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// RPC metrics
	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
	BreakerOpen *prometheus.GaugeVec

	// Stream metrics
	ChunksReceived   *prometheus.CounterVec
	Warnings         *prometheus.CounterVec
	EdgesDeferred    prometheus.Counter
	StreamsCompleted *prometheus.CounterVec

	// Graph and scene metrics
	GraphEvents     *prometheus.CounterVec
	SceneOperations *prometheus.CounterVec

	// Connection metrics
	ConnectionState *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// ConnectionStates lists the label values of the connection state gauge
var ConnectionStates = []string{"disconnected", "connecting", "connected", "error"}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	rpcRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of backend RPCs by method and outcome",
		},
		[]string{"method", "status"},
	)

	rpcDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Backend RPC duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the named circuit breaker is open",
		},
		[]string{"name"},
	)

	chunksReceived := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Structuring chunks received by payload kind",
		},
		[]string{"kind"},
	)

	warnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_warnings_total",
			Help:      "Reconciliation warnings by kind",
		},
		[]string{"kind"},
	)

	edgesDeferred := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_deferred_total",
			Help:      "Edges held until their endpoints arrived",
		},
	)

	streamsCompleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_completed_total",
			Help:      "Structuring streams by completion reason",
		},
		[]string{"reason"},
	)

	graphEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_events_total",
			Help:      "Graph model events by type",
		},
		[]string{"type"},
	)

	sceneOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scene_operations_total",
			Help:      "Scene operations emitted to the renderer",
		},
		[]string{"op", "kind"},
	)

	connectionState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current backend connection state",
		},
		[]string{"state"},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		rpcRequests,
		rpcDuration,
		breakerOpen,
		chunksReceived,
		warnings,
		edgesDeferred,
		streamsCompleted,
		graphEvents,
		sceneOperations,
		connectionState,
		httpRequests,
		httpDuration,
	)

	globalCollector = &Collector{
		registry:         registry,
		RPCRequests:      rpcRequests,
		RPCDuration:      rpcDuration,
		BreakerOpen:      breakerOpen,
		ChunksReceived:   chunksReceived,
		Warnings:         warnings,
		EdgesDeferred:    edgesDeferred,
		StreamsCompleted: streamsCompleted,
		GraphEvents:      graphEvents,
		SceneOperations:  sceneOperations,
		ConnectionState:  connectionState,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
	}

	return globalCollector
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// Registry returns the registry the metrics are registered with
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRPC records one backend call
func (c *Collector) ObserveRPC(method string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.RPCRequests.WithLabelValues(method, status).Inc()
	c.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served HTTP request
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveChunk records one received structuring chunk
func (c *Collector) ObserveChunk(kind string) {
	c.ChunksReceived.WithLabelValues(kind).Inc()
}

// ObserveSceneOp records one scene operation
func (c *Collector) ObserveSceneOp(op, kind string) {
	c.SceneOperations.WithLabelValues(op, kind).Inc()
}

// SetBreakerOpen records whether the named breaker is open
func (c *Collector) SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	c.BreakerOpen.WithLabelValues(name).Set(v)
}

// SetConnectionState marks state as the only current connection state
func (c *Collector) SetConnectionState(state string) {
	for _, s := range ConnectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// ObserveGraphEvent is an events.Handler that counts model and stream events
func (c *Collector) ObserveGraphEvent(e events.GraphEvent) error {
	c.GraphEvents.WithLabelValues(e.GetEventType()).Inc()

	switch evt := e.(type) {
	case events.WarningRaised:
		c.Warnings.WithLabelValues(string(evt.Warning.Kind)).Inc()
	case events.EdgeDeferred:
		c.EdgesDeferred.Inc()
	case events.StreamCompleted:
		c.StreamsCompleted.WithLabelValues(string(evt.Reason)).Inc()
	}
	return nil
}
