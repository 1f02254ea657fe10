//go:build wireinject
// +build wireinject

package di

import (
	"FinAlert/pkg/config"
	"FinAlert/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideStore,
		ProvideCache,
		ProvideCorrelationMemo,
		ProvideDeliveryQueue,
		ProvideFingerprintRegistry,
		ProvideAlertPublisher,
		ProvideTickPublisher,

		// Upstream signal services
		ProvideSentimentScorer,
		ProvideForecaster,

		// Use cases
		ProvideSentimentLookup,
		ProvideAnomalyDetector,
		ProvideCorrelationScorer,
		ProvideAlertEngine,
		ProvideSymbolEvaluator,
		ProvideScheduler,
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,
		ProvideKafkaNewsHandler,
		ProvideAlertsQuery,

		// Transport
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
