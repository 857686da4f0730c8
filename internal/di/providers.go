package di

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	"CoinPull/internal/handler/api"
	mid "CoinPull/internal/middleware"
	internalrepo "CoinPull/internal/repository"
	"CoinPull/internal/service/binance"
	"CoinPull/internal/service/cache"
	"CoinPull/internal/service/errclass"
	"CoinPull/internal/service/huobi"
	"CoinPull/internal/service/interval"
	"CoinPull/internal/service/kucoin"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/usecase"
	pkgch "CoinPull/pkg/clickhouse"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	pkgkafka "CoinPull/pkg/kafka"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
	"CoinPull/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer when the mirror or the log
// digest needs one, and nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Mirror.Backend != usecase.BackendKafka && !cfg.Log.Digest.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID(cfg.Kafka.ClientID),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, err
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With log.digest enabled,
// repeated error lines are folded and published on the producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(logger.String("env", cfg.Environment))
	if cfg.Log.Digest.Enabled && producer != nil {
		l.AttachDigest(&logger.DigestConfig{
			Interval:    cfg.Log.Digest.Interval,
			MaxDistinct: cfg.Log.Digest.CountThreshold,
			Topic:       cfg.Log.Digest.Topic,
			Source:      "coinpull",
			Publisher:   producer,
		})
	}
	return l, l.DetachDigest, nil
}

// ProvideClickHouseClient connects to ClickHouse when it is the mirror backend.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Mirror.Backend != usecase.BackendClickHouse {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(context.Background(), pkgch.Config{
		Host:         cfg.ClickHouse.Host,
		Port:         cfg.ClickHouse.Port,
		Database:     cfg.ClickHouse.Database,
		User:         cfg.ClickHouse.User,
		Password:     cfg.ClickHouse.Password,
		UseHTTP:      cfg.ClickHouse.UseHTTP,
		DialTimeout:  cfg.ClickHouse.DialTimeout,
		ReadTimeout:  cfg.ClickHouse.ReadTimeout,
		AsyncInsert:  cfg.ClickHouse.AsyncInsert,
		WaitForAsync: cfg.ClickHouse.WaitForAsync,
		MaxExecTime:  cfg.ClickHouse.MaxExecTime,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("clickhouse connected", logger.String("database", cfg.ClickHouse.Database))
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", logger.Error(err))
		}
	}, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideIntervalCatalog rejects an interval_seconds that a configured
// exchange cannot serve when klines are collected.
func ProvideIntervalCatalog(cfg *config.Config) (*interval.Catalog, error) {
	c := interval.Default()
	for _, m := range cfg.Collector.Metrics {
		if models.Metric(m) == models.MetricKlines {
			if err := c.Check(cfg.Collector.Exchanges, cfg.Collector.IntervalSeconds); err != nil {
				return nil, fmt.Errorf("collector.interval_seconds: %w", err)
			}
		}
	}
	return c, nil
}

func ProvideClassifier() *errclass.Classifier { return errclass.New() }

func ProvideRateLimiter() *ratelimit.Limiter { return ratelimit.New() }

func ProvideHTTPClient() *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
}

// ProvideAdapters builds one adapter per configured exchange. They share
// the HTTP client; the limiter keys buckets by exchange name.
func ProvideAdapters(
	cfg *config.Config,
	client *xhttp.Client,
	limiter *ratelimit.Limiter,
	intervals *interval.Catalog,
) map[string]repository.ExchangeAdapter {
	out := make(map[string]repository.ExchangeAdapter, len(cfg.Collector.Exchanges))
	for _, name := range cfg.Collector.Exchanges {
		ex := cfg.Exchange(name)
		switch name {
		case models.ExchangeHuobi:
			out[name] = huobi.New(huobi.Config{
				RESTURL: ex.RESTURL, WSURL: ex.WSURL, RateCapacity: ex.RateCapacity, RatePerSec: ex.RatePerSec,
			}, client, limiter, intervals)
		case models.ExchangeBinance:
			out[name] = binance.New(binance.Config{
				RESTURL: ex.RESTURL, WSURL: ex.WSURL, RateCapacity: ex.RateCapacity, RatePerSec: ex.RatePerSec,
			}, client, limiter, intervals)
		case models.ExchangeKucoin:
			out[name] = kucoin.New(kucoin.Config{
				RESTURL: ex.RESTURL, RateCapacity: ex.RateCapacity, RatePerSec: ex.RatePerSec,
			}, client, limiter, intervals)
		}
	}
	return out
}

// ProvideSymbolCache uses Redis when enabled and reachable, the in-process
// TTL cache otherwise.
func ProvideSymbolCache(cfg *config.Config, log *logger.Logger) (cache.BytesCache, func()) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewTTLCache(), func() {}
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		log.Warn("redis unavailable, using in-memory symbol cache",
			logger.String("addr", cfg.Cache.Redis.Addr), logger.Error(err))
		_ = rc.Close()
		return cache.NewTTLCache(), func() {}
	}
	return rc, func() { _ = rc.Close() }
}

func ProvideSymbolSource(cfg *config.Config, c cache.BytesCache, log *logger.Logger) *usecase.SymbolSource {
	return usecase.NewSymbolSource(usecase.SymbolSourceConfig{
		Exclude:    cfg.Collector.Exclude,
		Override:   cfg.Collector.Symbols,
		MaxSymbols: cfg.Collector.MaxSymbols,
		CacheTTL:   cfg.Cache.SymbolsTTL,
	}, c, log)
}

// ProvideRecordPublisher wraps the producer; nil when Kafka is not the mirror.
func ProvideRecordPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil || cfg.Mirror.Backend != usecase.BackendKafka {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideRecordStorage creates the ClickHouse records table; nil when
// ClickHouse is not the mirror.
func ProvideRecordStorage(client *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	if client == nil {
		return nil, nil
	}
	st := internalrepo.NewClickHouseStorage(client, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return st, nil
}

func ProvideRecordMirror(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.RecordMirror {
	return usecase.NewRecordMirror(pub, store, m, cfg.Mirror.Backend)
}

// ProvideMirrorPipeline puts a buffer between record stores and the mirror.
func ProvideMirrorPipeline(mirror *usecase.RecordMirror, m repository.Metrics, cfg *config.Config) *mid.MirrorPipeline {
	return mid.NewMirrorPipeline(mirror, m,
		mid.WithBufferSize(cfg.Mirror.BufferSize),
		mid.WithBatchSize(cfg.Mirror.BatchSize),
	)
}

func ProvideOrchestrator(
	cfg *config.Config,
	adapters map[string]repository.ExchangeAdapter,
	intervals *interval.Catalog,
	classifier *errclass.Classifier,
	pipeline *mid.MirrorPipeline,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Orchestrator {
	c := cfg.Collector
	ms := make([]models.Metric, 0, len(c.Metrics))
	for _, name := range c.Metrics {
		ms = append(ms, models.Metric(name))
	}
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		Metrics:         ms,
		Shape:           usecase.TaskShape(c.Mode),
		IntervalSeconds: c.IntervalSeconds,
		BatchDelay:      c.BatchDelay,
		Task: usecase.TaskConfig{
			Duration:        c.Duration,
			PollInterval:    c.PollInterval,
			BackoffDelay:    c.BackoffDelay,
			FetchLimit:      c.FetchLimit,
			DataDir:         c.DataDir,
			RecencyCapacity: c.RecencyCapacity,
			Truncate:        c.Truncate,
		},
	}, adapters, intervals, classifier, pipeline, m, log)
}

func ProvideTasksHandler(log *logger.Logger, orch *usecase.Orchestrator, mirror *usecase.RecordMirror) *api.TasksEchoHandler {
	return api.NewTasksEchoHandler(log, orch, mirror)
}

// ProvideHTTPServer returns nil when the status API is disabled.
func ProvideHTTPServer(cfg *config.Config, h *api.TasksEchoHandler, log *logger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return xhttp.NewServer(h, log,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	adapters map[string]repository.ExchangeAdapter,
	symbols *usecase.SymbolSource,
	orch *usecase.Orchestrator,
	pipeline *mid.MirrorPipeline,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, log, adapters, symbols, orch, pipeline, httpServer)
}
