//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"graphscape/application/scene"
	"graphscape/infrastructure/config"
	"graphscape/interfaces/websocket"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideAtomicLevel,
	ProvideLogger,
	ProvideCollector,
	ProvideTracerProvider,
	ProvideTracer,
	ProvideTransportSettings,
	ProvideTransport,
	ProvideHub,
	ProvideHubRenderer,
	wire.Bind(new(scene.Renderer), new(*websocket.HubRenderer)),
	ProvideMachine,
	ProvideDispatcher,
	ProvideGraph,
	ProvideSynchronizer,
	ProvideAssessor,
	ProvideLayout,
	ProvideSession,
	ProvideRouter,
	ProvideWatcher,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(cfg *config.Config, loader *config.Loader) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
