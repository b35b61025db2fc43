package di

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"graphscape/application/connection"
	"graphscape/application/orchestrator"
	"graphscape/application/scene"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/events"
	"graphscape/domain/services"
	"graphscape/infrastructure/config"
	"graphscape/infrastructure/observability"
	"graphscape/infrastructure/transport"
	"graphscape/interfaces/http/rest"
	"graphscape/interfaces/websocket"
)

// ServiceName identifies this process in metrics and traces
const ServiceName = "graphscape"

// BreakerName labels the backend circuit breaker
const BreakerName = "backend"

// ProvideAtomicLevel creates the log level shared by the logger and config reloads
func ProvideAtomicLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	return zap.ParseAtomicLevel(cfg.Log.Level)
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", string(cfg.Environment))), nil
}

// ProvideCollector creates the Prometheus collector. It always exists so
// components need no nil checks; cfg.Metrics only controls exposure.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector(ServiceName)
}

// ProvideTracerProvider initializes tracing, no-op when disabled
func ProvideTracerProvider(cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    !cfg.IsProduction(),
	})
}

// ProvideTracer extracts the tracer handed to components
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// BreakerSettings converts the breaker section of cfg
func BreakerSettings(cfg *config.Config) transport.BreakerSettings {
	return transport.BreakerSettings{
		Name:             BreakerName,
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinRequests:      cfg.Breaker.MinRequests,
	}
}

// ProvideTransportSettings converts the backend section of cfg
func ProvideTransportSettings(cfg *config.Config) transport.Settings {
	return transport.Settings{
		Target:          cfg.Backend.Target,
		Insecure:        cfg.Backend.Insecure,
		DialTimeout:     cfg.Backend.DialTimeout,
		CallTimeout:     cfg.Backend.CallTimeout,
		ProbeTimeout:    cfg.Backend.ProbeTimeout,
		MaxRecvMsgBytes: cfg.Backend.MaxRecvMsgBytes,
		Breaker:         BreakerSettings(cfg),
	}
}

// ProvideTransport creates the gRPC client for the backend
func ProvideTransport(
	settings transport.Settings,
	logger *zap.Logger,
	collector *observability.Collector,
	tracer trace.Tracer,
) (*transport.GRPCClient, error) {
	return transport.NewGRPCClient(settings, logger.Named("transport"), collector, tracer)
}

// ConnectionSettings converts the probe related fields of cfg
func ConnectionSettings(cfg *config.Config) connection.Settings {
	return connection.Settings{
		ProbeTimeout:     cfg.Backend.ProbeTimeout,
		LivenessInterval: cfg.Connection.LivenessInterval,
		Reconnect:        cfg.Connection.Reconnect,
	}
}

// ConnectionStatePayload is the data of a connection.state frame
type ConnectionStatePayload struct {
	State string `json:"state"`
	From  string `json:"from"`
	Event string `json:"event"`
	Error string `json:"error,omitempty"`
}

// ProvideMachine creates the connection state machine and reports its
// transitions to metrics and browsers
func ProvideMachine(
	cfg *config.Config,
	client *transport.GRPCClient,
	hub *websocket.Hub,
	collector *observability.Collector,
	logger *zap.Logger,
) *connection.Machine {
	machine := connection.NewMachine(client, ConnectionSettings(cfg), logger.Named("connection"))
	collector.SetConnectionState(string(machine.State()))

	machine.OnTransition(func(t connection.Transition) {
		collector.SetConnectionState(string(t.To))

		payload := ConnectionStatePayload{
			State: string(t.To),
			From:  string(t.From),
			Event: string(t.Event),
		}
		if t.Err != nil {
			payload.Error = t.Err.Error()
		}
		if err := hub.Publish(websocket.TypeConnectionState, 0, payload); err != nil {
			logger.Warn("Connection state not broadcast", zap.Error(err))
		}
	})
	return machine
}

// ProvideDispatcher creates the synchronous event bus of the graph
func ProvideDispatcher() *events.Dispatcher {
	return events.NewDispatcher()
}

// ProvideGraph creates the session graph. Metrics and browser forwarding
// subscribe before the synchronizer attaches.
func ProvideGraph(
	cfg *config.Config,
	bus *events.Dispatcher,
	hub *websocket.Hub,
	collector *observability.Collector,
) *aggregates.Graph {
	g := aggregates.NewGraph(aggregates.NewGraphID(), bus, cfg.DomainConfig())
	if cfg.Metrics.Enabled {
		g.Subscribe(collector.ObserveGraphEvent)
	}
	g.Subscribe(hub.ForwardStreamEvents)
	return g
}

// ProvideHub creates the browser hub
func ProvideHub(logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(logger.Named("websocket"))
}

// ProvideHubRenderer creates the renderer mirroring the scene to browsers
func ProvideHubRenderer(hub *websocket.Hub, logger *zap.Logger) *websocket.HubRenderer {
	return websocket.NewHubRenderer(hub, logger.Named("renderer"))
}

// ProvideSynchronizer creates the graph to scene synchronizer
func ProvideSynchronizer(
	renderer scene.Renderer,
	logger *zap.Logger,
	collector *observability.Collector,
) *scene.Synchronizer {
	return scene.NewSynchronizer(renderer, logger.Named("scene"), collector)
}

// ProvideAssessor creates the graph assessment service
func ProvideAssessor() *services.GraphAssessmentService {
	return services.NewGraphAssessmentService()
}

// ProvideLayout creates the radial layout service
func ProvideLayout(cfg *config.Config) *services.LayoutService {
	return services.NewLayoutService(cfg.DomainConfig())
}

// ProvideSession wires the orchestration session
func ProvideSession(
	client *transport.GRPCClient,
	machine *connection.Machine,
	graph *aggregates.Graph,
	synchronizer *scene.Synchronizer,
	assessor *services.GraphAssessmentService,
	layout *services.LayoutService,
	logger *zap.Logger,
	tracer trace.Tracer,
) (*orchestrator.Session, error) {
	return orchestrator.NewSession(orchestrator.Dependencies{
		Transport:    client,
		Machine:      machine,
		Graph:        graph,
		Synchronizer: synchronizer,
		Assessor:     assessor,
		Layout:       layout,
		Logger:       logger.Named("session"),
		Tracer:       tracer,
	})
}

// ProvideRouter creates the HTTP read boundary
func ProvideRouter(
	cfg *config.Config,
	session *orchestrator.Session,
	hub *websocket.Hub,
	collector *observability.Collector,
	logger *zap.Logger,
) *rest.Router {
	opts := rest.Options{
		EnableCORS: cfg.HTTP.EnableCORS,
		WebSocket:  hub.ServeWS,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = collector
		opts.MetricsHandler = collector.Handler()
	}
	return rest.NewRouter(session, logger.Named("http"), opts)
}

// ProvideWatcher creates the config watcher and routes hot fields to the
// components that can apply them without a restart
func ProvideWatcher(
	loader *config.Loader,
	cfg *config.Config,
	level zap.AtomicLevel,
	client *transport.GRPCClient,
	machine *connection.Machine,
	logger *zap.Logger,
) (*config.Watcher, error) {
	watcher, err := config.NewWatcher(loader, cfg, logger.Named("config"))
	if err != nil {
		return nil, err
	}

	watcher.OnChange(func(old, updated *config.Config) {
		if old.Log.Level != updated.Log.Level {
			l, err := zapcore.ParseLevel(updated.Log.Level)
			if err != nil {
				logger.Warn("Ignoring log level", zap.String("level", updated.Log.Level), zap.Error(err))
			} else {
				level.SetLevel(l)
			}
		}
		if old.Breaker != updated.Breaker {
			client.SetBreakerSettings(BreakerSettings(updated))
		}
		if old.Connection.LivenessInterval != updated.Connection.LivenessInterval {
			machine.SetProbeSettings(ConnectionSettings(updated))
		}
	})
	return watcher, nil
}
