//go:build wireinject
// +build wireinject

package di

import (
	"SecMaster/pkg/config"
	"SecMaster/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStorage,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvidePublisher,
		ProvideDiagnostics,
		ProvideRateLimiter,
		ProvideHTTPFetcher,

		// Use cases
		ProvideResolver,
		ProvideIngestor,
		ProvideValidator,
		ProvideConsensusUseCase,
		ProvidePipeline,
		ProvideKafkaPricesHandler,

		// Application server
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
