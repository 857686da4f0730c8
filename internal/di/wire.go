//go:build wireinject
// +build wireinject

package di

import (
	"CoinPull/pkg/config"
	"CoinPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideMetrics,

		// Exchange access
		ProvideIntervalCatalog,
		ProvideClassifier,
		ProvideRateLimiter,
		ProvideHTTPClient,
		ProvideAdapters,
		ProvideSymbolCache,
		ProvideSymbolSource,

		// Mirror
		ProvideRecordPublisher,
		ProvideRecordStorage,
		ProvideRecordMirror,
		ProvideMirrorPipeline,

		// Use cases
		ProvideOrchestrator,

		// Application server
		ProvideTasksHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
