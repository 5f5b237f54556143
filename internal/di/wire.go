//go:build wireinject
// +build wireinject

package di

import (
	"RecoGateway/pkg/config"
	"RecoGateway/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application. The cleanup function
// releases them in reverse order of construction and must run after the HTTP server has stopped.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Audit
		ProvideClickHouseClient,
		ProvideAuditSink,
		ProvideAuditRecorder,

		// Policy layer
		ProvideRedisClient,
		ProvideRateLimiter,
		ProvideTokenVerifier,
		ProvideFeatureFlags,

		// Downstream services
		ProvideOptionsAnalytics,
		ProvideSignals,
		ProvideRecommender,
		ProvideRationale,

		// Use cases
		ProvideRouter,

		// Application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
