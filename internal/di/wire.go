//go:build wireinject
// +build wireinject

package di

import (
	domrepo "CandleInsight/internal/domain/repository"
	"CandleInsight/pkg/config"
	"CandleInsight/pkg/metrics"
	"CandleInsight/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideMetrics,
	wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideRedisCache,
	ProvideCache,
	ProvideRateLimiter,
	ProvideClickHouseClient,
)

var analysisSet = wire.NewSet(
	ProvidePipeline,
	ProvideExplainer,
	ProvideNewsFetcher,
	ProvideInsightRecorder,
	ProvideArchivePipeline,
	ProvideAnalyzeUseCase,
	ProvideFeatureStore,
	ProvideStoredAnalysisUseCase,
)

var transportSet = wire.NewSet(
	ProvideHTTPHandler,
	ProvideHTTPServer,
	ProvideKafkaConsumer,
	ProvideRequestQueue,
	ProvideApp,
)

// InitializeApp wires every dependency. The returned cleanup closes clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(infraSet, analysisSet, transportSet)
	return nil, nil, nil
}
