package di

import (
	"context"
	"fmt"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	"SecMaster/internal/handler/api"
	internalrepo "SecMaster/internal/repository"
	"SecMaster/internal/service/ratelimit"
	"SecMaster/internal/service/vendor"
	"SecMaster/internal/usecase"
	"SecMaster/internal/usecase/ingest"
	"SecMaster/internal/usecase/symbology"
	"SecMaster/internal/usecase/validator"
	"SecMaster/pkg/cache"
	pkgch "SecMaster/pkg/clickhouse"
	"SecMaster/pkg/config"
	xhttp "SecMaster/pkg/http"
	pkgkafka "SecMaster/pkg/kafka"
	applogger "SecMaster/pkg/logger"
	"SecMaster/pkg/metrics"
	"SecMaster/pkg/postgres"
	"SecMaster/pkg/server"
)

// Storage groups the stores of the configured backend.
type Storage struct {
	Reference repository.ReferenceStore
	Vendors   repository.VendorStore
	Seeder    repository.VendorSeeder
	Symbology repository.SymbologyStore
	Prices    repository.PriceStore
	Health    map[string]xhttp.HealthCheck
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage opens Postgres and ClickHouse (or memory stores), applies
// the schema and seeds the vendor table.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (*Storage, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		s       *Storage
		cleanup = func() {}
	)
	switch cfg.Storage.Type {
	case "memory":
		vendors := internalrepo.NewMemoryVendorStore()
		s = &Storage{
			Reference: internalrepo.NewMemoryReferenceStore(),
			Vendors:   vendors,
			Seeder:    vendors,
			Symbology: internalrepo.NewMemorySymbologyStore(),
			Prices:    internalrepo.NewMemoryPriceStore(cfg.Consensus.VendorID),
			Health:    map[string]xhttp.HealthCheck{},
		}
	default:
		pg, err := postgres.NewClient(ctx,
			postgres.WithHost(cfg.Postgres.Host, cfg.Postgres.Port),
			postgres.WithDatabase(cfg.Postgres.Name),
			postgres.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
			postgres.WithSSLMode(cfg.Postgres.SSLMode),
			postgres.WithPoolSize(cfg.Postgres.MinConns, cfg.Postgres.MaxConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		if err := pg.InitSchema(ctx, internalrepo.PostgresSchema); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}

		ch, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
			pkgch.WithSyncDeletes(true),
		)
		if err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if err := ch.InitSchema(ctx, internalrepo.ClickHouseSchema); err != nil {
			_ = ch.Close()
			pg.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}

		vendors := internalrepo.NewPostgresVendorStore(pg.Pool())
		s = &Storage{
			Reference: internalrepo.NewPostgresReferenceStore(pg.Pool()),
			Vendors:   vendors,
			Seeder:    vendors,
			Symbology: internalrepo.NewPostgresSymbologyStore(pg.Pool()),
			Prices: internalrepo.NewClickHousePriceStore(ch.DB(), cfg.Consensus.VendorID,
				cfg.ClickHouse.InsertBatchSize, l.With(applogger.String("component", "clickhouse"))),
			Health: map[string]xhttp.HealthCheck{
				"postgres":   pg.Health,
				"clickhouse": ch.Health,
			},
		}
		cleanup = func() {
			if err := ch.Close(); err != nil {
				l.Warn("clickhouse close error", applogger.Error(err))
			}
			pg.Close()
		}
	}

	if err := s.Seeder.SeedVendors(ctx, VendorsFromConfig(cfg)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("seed vendors: %w", err)
	}
	l.Info("storage ready", applogger.String("type", cfg.Storage.Type), applogger.Int("vendors", len(cfg.Vendors)))
	return s, cleanup, nil
}

// VendorsFromConfig returns the configured vendors plus the consensus vendor.
func VendorsFromConfig(cfg *config.Config) []models.Vendor {
	out := make([]models.Vendor, 0, len(cfg.Vendors)+1)
	for _, v := range cfg.Vendors {
		mv := models.Vendor{ID: v.ID, Name: v.Name, Source: v.Source}
		if v.Weight != nil {
			mv.ConsensusWeight, mv.HasWeight = *v.Weight, true
		}
		out = append(out, mv)
	}
	return append(out, models.Vendor{ID: cfg.Consensus.VendorID, Name: cfg.Consensus.VendorName})
}

// ProvideCache returns Redis when enabled, an in-process cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		c := cache.NewMemoryCache(cache.WithMemoryMaxSize(100_000), cache.WithMemoryCleanup(time.Minute))
		return c, func() { _ = c.Close() }, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvidePublisher publishes domain events to Kafka when a producer exists.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Events)
}

// ProvideKafkaConsumer creates the price consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.Retry),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Topics.DLQ),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideDiagnostics folds repeated warnings into batches on the
// diagnostics topic. Without Kafka entries are only counted.
func ProvideDiagnostics(cfg *config.Config, producer *pkgkafka.Producer) *applogger.DiagnosticCollector {
	cc := applogger.CollectorConfig{
		FlushInterval:  cfg.Diagnostics.FlushInterval,
		CountThreshold: cfg.Diagnostics.CountThreshold,
		Topic:          cfg.Kafka.Topics.Diagnostics,
		GroupBy:        cfg.Diagnostics.GroupBy,
	}
	if producer != nil {
		cc.Publisher = producer
	}
	return applogger.NewDiagnosticCollector(cc)
}

// ProvideRateLimiter creates the shared per-vendor limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPFetcher creates the vendor gateway client.
func ProvideHTTPFetcher(cfg *config.Config, limiter *ratelimit.Limiter, m repository.Metrics, l *applogger.Logger) *vendor.HTTPFetcher {
	endpoints := make([]vendor.Endpoint, 0, len(cfg.Vendors))
	for _, v := range cfg.Vendors {
		endpoints = append(endpoints, vendor.Endpoint{
			Name:    v.Name,
			Source:  v.Source,
			BaseURL: v.BaseURL,
			APIKey:  v.APIKey,
			Calls:   v.Calls,
			Period:  v.Period,
			Retry:   v.Retry,
		})
	}
	var timeout time.Duration
	for _, v := range cfg.Vendors {
		if v.Timeout > timeout {
			timeout = v.Timeout
		}
	}
	opts := []vendor.Option{
		vendor.WithMetrics(m),
		vendor.WithLogger(l.With(applogger.String("component", "vendor_gateway"))),
	}
	if timeout > 0 {
		opts = append(opts, vendor.WithClient(xhttp.NewClient(xhttp.WithTimeout(timeout))))
	}
	return vendor.NewHTTPFetcher(endpoints, limiter, opts...)
}

// ProvideResolver builds the symbology rules and resolver.
func ProvideResolver(cfg *config.Config, s *Storage, c cache.Service, fetcher *vendor.HTTPFetcher,
	pub repository.Publisher, m repository.Metrics, l *applogger.Logger) (*symbology.Resolver, error) {
	rules, err := symbology.BuildRules(cfg.Symbology)
	if err != nil {
		return nil, fmt.Errorf("symbology rules: %w", err)
	}
	return symbology.NewResolver(s.Reference, s.Symbology, rules, symbology.BuildExchangeTable(cfg.Exchanges),
		symbology.WithCache(c, cfg.Redis.LookupTTL),
		symbology.WithCodeLister(fetcher, symbology.SyntheticSources(cfg.Symbology)...),
		symbology.WithSyntheticRange(cfg.Symbology.SyntheticMin, cfg.Symbology.SyntheticMax),
		symbology.WithLockTTL(cfg.Symbology.LockTTL),
		symbology.WithPublisher(pub),
		symbology.WithMetrics(m),
		symbology.WithLogger(l.With(applogger.String("component", "symbology"))),
	), nil
}

// ProvideIngestor creates the price ingestion usecase.
func ProvideIngestor(cfg *config.Config, s *Storage, fetcher *vendor.HTTPFetcher, r *symbology.Resolver,
	m repository.Metrics, l *applogger.Logger) *ingest.Ingestor {
	return ingest.NewIngestor(s.Symbology, s.Vendors, s.Prices, fetcher, r,
		ingest.Config{
			Workers:           cfg.Ingest.Workers,
			Mode:              cfg.Ingest.Mode,
			ReplaceWindowDays: cfg.Ingest.ReplaceWindowDays,
		},
		ingest.WithMetrics(m),
		ingest.WithLogger(l.With(applogger.String("component", "ingest"))),
	)
}

// ProvideKafkaPricesHandler consumes pushed vendor batches.
func ProvideKafkaPricesHandler(cfg *config.Config, i *ingest.Ingestor, l *applogger.Logger) pkgkafka.MessageHandler {
	return ingest.NewKafkaPricesHandler(cfg.Kafka.Topics.Prices, i, l.With(applogger.String("component", "kafka_prices")))
}

// ProvideValidator creates the cross-source validator.
func ProvideValidator(cfg *config.Config, s *Storage, pub repository.Publisher, m repository.Metrics, l *applogger.Logger) *validator.Validator {
	return validator.NewValidator(s.Prices, s.Vendors,
		validator.Config{
			Workers:        cfg.Validator.Workers,
			PeriodDays:     cfg.Validator.PeriodDays,
			Precision:      *cfg.Validator.PricePrecision,
			ConsensusID:    cfg.Consensus.VendorID,
			ConsensusName:  cfg.Consensus.VendorName,
			ExcludeVendors: excludedVendors(cfg),
			DeleteRetry:    cfg.Validator.DeleteRetry,
		},
		validator.WithPublisher(pub),
		validator.WithMetrics(m),
		validator.WithLogger(l.With(applogger.String("component", "validator"))),
	)
}

func excludedVendors(cfg *config.Config) []string {
	out := append([]string(nil), cfg.Validator.ExcludeVendors...)
	for _, v := range cfg.Vendors {
		if v.Excluded {
			out = append(out, v.Name)
		}
	}
	return out
}

// ProvideConsensusUseCase creates the price read usecase.
func ProvideConsensusUseCase(cfg *config.Config, s *Storage) *usecase.ConsensusUseCase {
	return usecase.NewConsensusUseCase(s.Prices, cfg.Consensus.VendorID)
}

// ProvidePipeline chains the three phases.
func ProvidePipeline(r *symbology.Resolver, i *ingest.Ingestor, v *validator.Validator, pub repository.Publisher, l *applogger.Logger) *usecase.Pipeline {
	return usecase.NewPipeline(r, i, v, pub, l.With(applogger.String("component", "pipeline")))
}

// ProvideHTTPHandler registers the API routes.
func ProvideHTTPHandler(l *applogger.Logger, r *symbology.Resolver, i *ingest.Ingestor, v *validator.Validator, uc *usecase.ConsensusUseCase) xhttp.Handler {
	return api.NewSecMasterEchoHandler(l.With(applogger.String("component", "api")), r, i, v, uc)
}

// ProvideHTTPServer creates the echo server with health checks per backend.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, s *Storage, c cache.Service, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	}
	for name, check := range s.Health {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		opts = append(opts, xhttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the application.
func ProvideApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler, p *usecase.Pipeline, d *applogger.DiagnosticCollector) *server.App {
	return server.New(cfg, l, srv, consumer, kh, p, d)
}
