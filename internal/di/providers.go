package di

import (
	"context"
	"fmt"
	"time"

	domrepo "CandleInsight/internal/domain/repository"
	domsvc "CandleInsight/internal/domain/service"
	"CandleInsight/internal/handler/api"
	mid "CandleInsight/internal/middleware"
	"CandleInsight/internal/repository"
	"CandleInsight/internal/service/ratelimit"
	"CandleInsight/internal/services/analytics"
	"CandleInsight/internal/services/fusion"
	"CandleInsight/internal/services/indicators"
	"CandleInsight/internal/services/scoring"
	"CandleInsight/internal/usecase"
	"CandleInsight/pkg/cache"
	pkgch "CandleInsight/pkg/clickhouse"
	"CandleInsight/pkg/config"
	xhttp "CandleInsight/pkg/http"
	"CandleInsight/pkg/http/middleware"
	pkgkafka "CandleInsight/pkg/kafka"
	applogger "CandleInsight/pkg/logger"
	"CandleInsight/pkg/metrics"
	"CandleInsight/pkg/queue"
	"CandleInsight/pkg/server"
)

// ProvideLogger builds the app logger. With logging.collector_topic set, repeated
// errors are aggregated and shipped through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectorTopic != "" && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectorInterval,
			CountThreshold: cfg.Logging.CollectorThreshold,
			Topic:          cfg.Logging.CollectorTopic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache connects when cache.redis.enabled; otherwise it returns nil.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache layers memory over Redis when Redis is available.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, func()) {
	var c cache.Service
	if rc != nil {
		c = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
		// the layered cache shares rc, which ProvideRedisCache closes
		return c, func() {}
	}
	mc := cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
		cache.WithMemoryDefaultTTL(cfg.Cache.MemoryTTL),
	)
	return mc, func() { _ = mc.Close() }
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config, c cache.Service) middleware.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.Backend == "redis" {
		return ratelimit.NewWindowLimiter(c, int64(rl.Capacity), rl.Window)
	}
	return ratelimit.NewTokenBucket(rl.Capacity, rl.RefillPerSecond)
}

// ProvideClickHouseClient connects when clickhouse.enabled; otherwise it returns nil.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer returns nil unless some component publishes to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.KafkaEnabled() {
		return nil, func() {}, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

func ProvidePipeline() *usecase.Pipeline {
	return usecase.NewPipeline(
		indicators.NewEngine(),
		scoring.NewPatternScorer(),
		scoring.NewRuleScorer(),
		fusion.NewEngine(),
		fusion.NewRiskAssessor(),
	)
}

// ProvideExplainer prefers Gemini and falls back to the local rule text.
func ProvideExplainer(cfg *config.Config, c cache.Service, m domrepo.Metrics, l *applogger.Logger) domsvc.Explainer {
	return analytics.NewFallbackExplainer(
		analytics.NewGeminiExplainer(cfg, c),
		analytics.NewRuleExplainer(),
		m,
		l,
	)
}

func ProvideNewsFetcher(cfg *config.Config, c cache.Service, l *applogger.Logger) domsvc.NewsFetcher {
	return analytics.NewCachedFetcher(analytics.NewChainFetcher(cfg, l), c, cfg.News.CacheTTL)
}

// ProvideInsightRecorder builds the archive backend selected by archive.backend.
func ProvideInsightRecorder(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client, m domrepo.Metrics) (*usecase.InsightRecorder, func(), error) {
	var (
		pub   domrepo.InsightPublisher
		store domrepo.InsightStorage
	)
	switch cfg.Archive.Backend {
	case usecase.ArchiveKafka:
		if producer == nil {
			return nil, nil, fmt.Errorf("kafka archive: producer not configured")
		}
		pub = repository.NewKafkaInsightPublisher(producer, cfg.Kafka.InsightsTopic)
	case usecase.ArchiveClickHouse:
		if ch == nil {
			return nil, nil, fmt.Errorf("clickhouse archive: client not configured")
		}
		s := repository.NewClickHouseInsightStorage(ch, cfg.ClickHouse.InsightsTable)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("clickhouse archive schema: %w", err)
		}
		store = s
	}
	rec := usecase.NewInsightRecorder(pub, store, m, cfg.Archive.Backend)
	return rec, rec.Close, nil
}

// ProvideArchivePipeline returns nil for the "none" backend so analyses skip archiving entirely.
func ProvideArchivePipeline(cfg *config.Config, rec *usecase.InsightRecorder, m domrepo.Metrics) *mid.ArchivePipeline {
	if rec.Backend() == usecase.ArchiveNone {
		return nil
	}
	a := cfg.Archive
	return mid.NewArchivePipeline(rec, m,
		mid.WithMaxRPS(a.MaxRPS),
		mid.WithBufferSize(a.BufferSize),
		mid.WithRetryBackoff(a.RetryMin, a.RetryMax),
		mid.WithMaxAttempts(a.MaxAttempts),
		mid.WithWriteTimeout(a.WriteTimeout),
	)
}

func ProvideAnalyzeUseCase(
	cfg *config.Config,
	p *usecase.Pipeline,
	explainer domsvc.Explainer,
	news domsvc.NewsFetcher,
	m domrepo.Metrics,
	l *applogger.Logger,
	archive *mid.ArchivePipeline,
) *usecase.AnalyzeUseCase {
	opts := []usecase.AnalyzeOption{usecase.WithNewsTimeout(cfg.News.Timeout)}
	if archive != nil {
		opts = append(opts, usecase.WithInsightSink(archive))
	}
	return usecase.NewAnalyzeUseCase(p, explainer, news, m, l, opts...)
}

// ProvideFeatureStore returns a nil interface (not a typed nil) when ClickHouse is off.
func ProvideFeatureStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.FeatureStore {
	if ch == nil {
		return nil
	}
	return repository.NewCHFeatureStore(ch, cfg.ClickHouse.CandlesTable, l)
}

func ProvideStoredAnalysisUseCase(store domrepo.FeatureStore, analyze *usecase.AnalyzeUseCase) *usecase.StoredAnalysisUseCase {
	return usecase.NewStoredAnalysisUseCase(store, analyze)
}

func ProvideHTTPHandler(cfg *config.Config, l *applogger.Logger, analyze *usecase.AnalyzeUseCase, stored *usecase.StoredAnalysisUseCase) xhttp.Handler {
	return xhttp.Handlers{
		api.NewInsightsHandler(l, analyze, stored),
		api.NewStreamHandler(l, analyze, cfg.Server.CORSOrigins),
	}
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger, limiter middleware.Limiter) *xhttp.Server {
	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithBodyLimit(s.BodyLimit),
		xhttp.WithCORSOrigins(s.CORSOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	if limiter != nil {
		opts = append(opts, xhttp.WithRateLimiter(limiter))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideKafkaConsumer returns nil unless kafka.requests_topic is set.
// Results go back out through the shared producer.
func ProvideKafkaConsumer(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	analyze *usecase.AnalyzeUseCase,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if k.RequestsTopic == "" {
		return nil, nil
	}
	if producer == nil {
		return nil, fmt.Errorf("kafka consumer: producer not configured")
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(usecase.ConsumerHooks(m))
	consumer.RegisterHandler(usecase.NewAnalysisRequestHandler(k.RequestsTopic, k.ResultsTopic, analyze, producer, m, l))
	return consumer, nil
}

// ProvideRequestQueue returns nil unless queue.enabled. Requests and results share the Redis connection.
func ProvideRequestQueue(
	cfg *config.Config,
	rc *cache.RedisCache,
	analyze *usecase.AnalyzeUseCase,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*queue.RedisQueue, error) {
	qc := cfg.Queue
	if !qc.Enabled {
		return nil, nil
	}
	if rc == nil {
		return nil, fmt.Errorf("request queue: redis not configured")
	}
	q := queue.NewRedisQueue(rc.Client(), l,
		queue.WithPrefix(qc.Prefix),
		queue.WithWorkers(qc.Workers),
		queue.WithRetry(qc.RetryMax, qc.RetryDelay),
		queue.WithBlockTimeout(qc.BlockTimeout),
	)
	q.RegisterHandler(usecase.NewAnalysisRequestHandler(qc.RequestsTopic, qc.ResultsTopic, analyze, q, m, l))
	return q, nil
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	archive *mid.ArchivePipeline,
) *server.App {
	return server.New(cfg, l, srv,
		server.WithKafkaConsumer(consumer),
		server.WithRequestQueue(q),
		server.WithArchive(archive),
	)
}
