package di

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"graphscape/application/connection"
	"graphscape/application/orchestrator"
	"graphscape/infrastructure/config"
	"graphscape/infrastructure/observability"
	"graphscape/infrastructure/transport"
	"graphscape/interfaces/http/rest"
	"graphscape/interfaces/websocket"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Level     zap.AtomicLevel
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Tracing   *observability.TracerProvider
	Transport *transport.GRPCClient
	Machine   *connection.Machine
	Hub       *websocket.Hub
	Renderer  *websocket.HubRenderer
	Session   *orchestrator.Session
	Router    *rest.Router
	Watcher   *config.Watcher
}

// Start runs the hub loop. Connection transitions and scene operations are
// broadcast through it, so every command starts it before using the session.
func (c *Container) Start() {
	go c.Hub.Run()
}

// Close releases everything in reverse order of creation
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	c.Watcher.Stop()
	if err := c.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	c.Hub.Stop()
	if err := c.Transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = c.Logger.Sync()

	return errors.Join(errs...)
}
