package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinAlert/internal/domain/repository"
	domsvc "FinAlert/internal/domain/service"
	"FinAlert/internal/handler/api"
	mid "FinAlert/internal/middleware"
	internalrepo "FinAlert/internal/repository"
	"FinAlert/internal/service/finnhub"
	"FinAlert/internal/service/ratelimit"
	"FinAlert/internal/services/analytics"
	"FinAlert/internal/usecase"
	"FinAlert/pkg/cache"
	pkgch "FinAlert/pkg/clickhouse"
	"FinAlert/pkg/config"
	xhttp "FinAlert/pkg/http"
	pkgkafka "FinAlert/pkg/kafka"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/metrics"
	"FinAlert/pkg/server"
)

// CorrelationMemo is the process-local cache of scored (anomaly, news) pairs.
// It is a separate type so it never gets confused with the shared cache.
type CorrelationMemo interface {
	cache.Service
}

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient opens ClickHouse and applies the schema. It returns
// nil when the store runs in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Store.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStore picks the durable store for store.backend.
func ProvideStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.Store {
	if cfg.Store.Backend == "clickhouse" && ch != nil {
		return internalrepo.NewCHStore(ch, l)
	}
	l.Warn("using in-memory store; data is lost on restart")
	return internalrepo.NewMemoryStore(internalrepo.WithTickRetention(4 * cfg.Detector.Bars))
}

// ProvideRedisCache connects to Redis when the delivery backend needs it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Delivery.Backend != "redis" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache returns the shared cache: Redis when connected, memory otherwise.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache()
}

// ProvideCorrelationMemo bounds the pair memo by correlation.memo_size.
func ProvideCorrelationMemo(cfg *config.Config) CorrelationMemo {
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Correlation.MemoSize))
}

func ProvideDeliveryQueue(cfg *config.Config, rc *cache.RedisCache) domrepo.DeliveryQueue {
	if rc != nil {
		return internalrepo.NewRedisDeliveryQueue(rc.Client(), cfg.Delivery.Key, cfg.Delivery.Capacity)
	}
	return internalrepo.NewMemoryDeliveryQueue(cfg.Delivery.Capacity)
}

func ProvideFingerprintRegistry(c cache.Service) domrepo.FingerprintRegistry {
	return internalrepo.NewCacheFingerprintRegistry(c)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertPublisher returns nil unless Kafka is on and an alerts topic is set.
func ProvideAlertPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.AlertPublisher {
	if producer == nil || cfg.Kafka.AlertsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic)
}

func ProvideTickPublisher(cfg *config.Config, producer *pkgkafka.Producer) usecase.TickPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

func ProvideKafkaTicksHandler(cfg *config.Config, store domrepo.Store, m domrepo.Metrics, l *applogger.Logger) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, store, m, l)
}

func ProvideKafkaNewsHandler(cfg *config.Config, store domrepo.Store, m domrepo.Metrics, l *applogger.Logger) *usecase.KafkaNewsHandler {
	return usecase.NewKafkaNewsHandler(cfg, store, m, l)
}

// ProvideTickProcessor routes collected ticks to finnhub.sink.
func ProvideTickProcessor(cfg *config.Config, store domrepo.Store, pub usecase.TickPublisher, m domrepo.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(store, pub, m, cfg.Finnhub.Sink)
}

// ProvideTickCollector builds the Finnhub stream and its pipeline. It returns
// nil when the collector is disabled.
func ProvideTickCollector(
	cfg *config.Config,
	processor *usecase.TickProcessor,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.TickCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, s.Code)
	}
	stream := finnhub.New(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		l.With(applogger.String("component", "finnhub")),
	)
	pipe := mid.NewTickPipeline(processor, m,
		mid.WithMaxRPS(cfg.Finnhub.MaxRPS),
		mid.WithBufferSize(cfg.Finnhub.BufferSize),
	)
	return usecase.NewTickCollector(stream, pipe, m, l)
}

func ProvideSentimentScorer(cfg *config.Config) domsvc.SentimentScorer {
	return analytics.NewHTTPSentimentScorer(cfg, ratelimit.New(cfg.Resilience.UpstreamRPS, cfg.Resilience.UpstreamBurst))
}

func ProvideForecaster(cfg *config.Config) domsvc.Forecaster {
	return analytics.NewHTTPForecaster(cfg, ratelimit.New(cfg.Resilience.UpstreamRPS, cfg.Resilience.UpstreamBurst))
}

func ProvideSentimentLookup(store domrepo.Store, scorer domsvc.SentimentScorer, m domrepo.Metrics, l *applogger.Logger) *usecase.SentimentLookup {
	return usecase.NewSentimentLookup(store, scorer, m, l)
}

func ProvideAnomalyDetector(cfg *config.Config, store domrepo.Store, m domrepo.Metrics, l *applogger.Logger) *usecase.AnomalyDetector {
	return usecase.NewAnomalyDetector(cfg, store, m, l)
}

func ProvideCorrelationScorer(
	cfg *config.Config,
	store domrepo.Store,
	sentiment *usecase.SentimentLookup,
	memo CorrelationMemo,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.CorrelationScorer {
	return usecase.NewCorrelationScorer(cfg, store, store, sentiment, memo, m, l)
}

func ProvideAlertEngine(
	cfg *config.Config,
	registry domrepo.FingerprintRegistry,
	store domrepo.Store,
	queue domrepo.DeliveryQueue,
	publisher domrepo.AlertPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AlertEngine {
	return usecase.NewAlertEngine(cfg, registry, store, queue, publisher, m, l)
}

func ProvideSymbolEvaluator(
	cfg *config.Config,
	store domrepo.Store,
	detector *usecase.AnomalyDetector,
	correlator *usecase.CorrelationScorer,
	sentiment *usecase.SentimentLookup,
	forecaster domsvc.Forecaster,
	engine *usecase.AlertEngine,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.SymbolEvaluator {
	return usecase.NewSymbolEvaluator(cfg, store, store, detector, correlator, sentiment, forecaster,
		usecase.NewSignalAggregator(cfg), engine, m, l)
}

func ProvideScheduler(cfg *config.Config, eval *usecase.SymbolEvaluator, m domrepo.Metrics, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(cfg, eval, m, l)
}

func ProvideAlertsQuery(
	cfg *config.Config,
	store domrepo.Store,
	queue domrepo.DeliveryQueue,
	c cache.Service,
	l *applogger.Logger,
) *usecase.AlertsQuery {
	return usecase.NewAlertsQuery(store, queue, c, cfg.API.HistoryCacheTTL, cfg.Delivery.Capacity, l)
}

// ProvideHTTPServer builds the echo server with the alerts API mounted.
func ProvideHTTPServer(cfg *config.Config, query *usecase.AlertsQuery, l *applogger.Logger) *xhttp.Server {
	h := api.NewAlertsEchoHandler(query, ratelimit.New(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst), l)
	return xhttp.NewServer(l, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORS),
	)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store domrepo.Store,
	c cache.Service,
	memo CorrelationMemo,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	ticks *usecase.KafkaTicksHandler,
	news *usecase.KafkaNewsHandler,
	collector *usecase.TickCollector,
	eval *usecase.SymbolEvaluator,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Store:     store,
		Closers:   []server.Closer{c, memo},
		Producer:  producer,
		Consumer:  consumer,
		Handlers:  []pkgkafka.MessageHandler{ticks, news},
		Collector: collector,
		Evaluator: eval,
		Scheduler: scheduler,
		HTTP:      httpServer,
	})
}
