package di

import (
	"context"
	"fmt"
	"time"

	"RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/internal/handler/api"
	"RecoGateway/internal/middleware"
	internalrepo "RecoGateway/internal/repository"
	"RecoGateway/internal/service/auth"
	"RecoGateway/internal/service/featureflag"
	"RecoGateway/internal/service/ratelimit"
	"RecoGateway/internal/services/downstream"
	"RecoGateway/internal/usecase"
	pkgch "RecoGateway/pkg/clickhouse"
	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
	pkgkafka "RecoGateway/pkg/kafka"
	applogger "RecoGateway/pkg/logger"
	"RecoGateway/pkg/metrics"
	"RecoGateway/pkg/redisx"
	"RecoGateway/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideKafkaProducer creates the producer shared by the audit sink and the log collector. It is
// nil when neither needs Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Audit.Backend != "kafka" && !cfg.Log.Collector.Enabled {
		return nil, func() {}, nil
	}
	kc := cfg.Audit.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(kc.Brokers),
		pkgkafka.WithCompression(kc.Compression),
		pkgkafka.WithRequiredAcks(kc.RequiredAcks),
		pkgkafka.WithMaxAttempts(kc.MaxAttempts),
		pkgkafka.WithLinger(kc.Linger),
		pkgkafka.WithWriteTimeout(kc.WriteTimeout),
		pkgkafka.WithAsync(kc.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the process logger and attaches the error collector when enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "recommendation-gateway",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and creates the audit table. It is nil unless audit goes to ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Audit.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	cc := cfg.Audit.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cc.Host, cc.Port),
		pkgch.WithDatabase(cc.Database),
		pkgch.WithCredentials(cc.User, cc.Password),
		pkgch.WithHTTP(cc.UseHTTP),
		pkgch.WithAsyncInsert(cc.AsyncInsert, cc.WaitForAsync),
		pkgch.WithTimeouts(cc.DialTimeout, cc.ReadTimeout, cc.WriteTimeout),
		pkgch.WithMaxExecutionTime(cc.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.AuditTableDDL(cc.Database, cc.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideAuditSink picks the sink for the configured backend; nil disables auditing.
func ProvideAuditSink(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client) repository.AuditSink {
	switch cfg.Audit.Backend {
	case "kafka":
		return internalrepo.NewKafkaAuditSink(producer, cfg.Audit.Kafka.Topic)
	case "clickhouse":
		return internalrepo.NewClickHouseAuditSink(ch.DB(), cfg.Audit.ClickHouse.Database+"."+cfg.Audit.ClickHouse.Table)
	default:
		return nil
	}
}

func ProvideAuditRecorder(cfg *config.Config, sink repository.AuditSink, logger *applogger.Logger) (*usecase.AuditRecorder, func()) {
	rec := usecase.NewAuditRecorder(sink, logger, usecase.WithAuditWriteTimeout(cfg.Audit.Kafka.WriteTimeout))
	return rec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Close(ctx); err != nil {
			logger.Warn("audit recorder close error", applogger.Error(err))
		}
	}
}

// ProvideRedisClient connects only when rate limits live in Redis.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return nil, func() {}, nil
	}
	rc := cfg.RateLimit.Redis
	client, err := redisx.NewClient(
		redisx.WithAddr(rc.Addr),
		redisx.WithPassword(rc.Password),
		redisx.WithDB(rc.DB),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideRateLimiter(cfg *config.Config, rc *redis.Client, m repository.Metrics, logger *applogger.Logger) *ratelimit.Limiter {
	var store ratelimit.Store
	if rc != nil {
		store = ratelimit.NewRedisStore(rc, cfg.RateLimit.Redis.Prefix)
	} else {
		store = ratelimit.NewMemoryStore()
	}
	return ratelimit.NewLimiter(store, ratelimit.Config{
		Window:    cfg.RateLimit.Window,
		PerUser:   cfg.RateLimit.PerUser,
		PerSymbol: cfg.RateLimit.PerSymbol,
	}, m, logger)
}

// ProvideTokenVerifier fetches the JWKS at boot; an unreachable key set fails startup.
func ProvideTokenVerifier(cfg *config.Config, logger *applogger.Logger) (*auth.Verifier, func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	v, err := auth.NewJWKSVerifier(ctx, auth.Config{
		JWKSURI:           cfg.Auth.JWKSURI,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
		RequestsPerMinute: cfg.Auth.JWKSRequestsPerMinute,
		RefreshInterval:   cfg.Auth.JWKSRefreshInterval,
		HTTPTimeout:       cfg.Auth.JWKSTimeout,
	}, logger)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("jwks: %w", err)
	}
	return v, cancel, nil
}

func ProvideFeatureFlags(cfg *config.Config, m repository.Metrics, logger *applogger.Logger) (*featureflag.Service, func()) {
	flags := featureflag.Connect(cfg.FeatureFlags.SDKKey, cfg.FeatureFlags.InitTimeout,
		featureflag.WithEvalTimeout(cfg.FeatureFlags.EvalTimeout),
		featureflag.WithLogger(logger),
		featureflag.WithMetrics(m),
	)
	logger.Info("feature flags ready", applogger.String("mode", flags.Mode()))
	return flags, func() { _ = flags.Close() }
}

func ProvideOptionsAnalytics(cfg *config.Config, m repository.Metrics) service.OptionsAnalytics {
	return downstream.NewOptionsAnalyticsClient(cfg.Services.OptionsAnalytics, m)
}

func ProvideSignals(cfg *config.Config, m repository.Metrics) service.SignalsProvider {
	return downstream.NewSignalsClient(cfg.Services.Signals, m)
}

func ProvideRecommender(cfg *config.Config, m repository.Metrics) service.Recommender {
	return downstream.NewRecommenderClient(cfg.Services.Recommender, m)
}

func ProvideRationale(cfg *config.Config, m repository.Metrics) service.RationaleGenerator {
	return downstream.NewRationaleClient(cfg.Services.Rationale, m)
}

func ProvideRouter(
	cfg *config.Config,
	analytics service.OptionsAnalytics,
	signals service.SignalsProvider,
	recommender service.Recommender,
	rationale service.RationaleGenerator,
	flags *featureflag.Service,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.Router {
	return usecase.NewRouter(analytics, signals, recommender, rationale, flags, m, logger, usecase.RouterConfig{
		RequestTimeout:      cfg.Router.RequestTimeout,
		SignalsRetryBackoff: cfg.Router.SignalsRetryBackoff,
		ValidationReserve:   cfg.Router.ValidationReserve,
		RationaleFlag:       cfg.Router.RationaleFlag,
		MarketDataURL:       cfg.Services.MarketDataURL,
	})
}

// ProvideHTTPHandler assembles every route the gateway serves besides /metrics.
func ProvideHTTPHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	router *usecase.Router,
	limiter *ratelimit.Limiter,
	verifier *auth.Verifier,
	audit *usecase.AuditRecorder,
	m repository.Metrics,
	flags *featureflag.Service,
	rdb *redis.Client,
	ch *pkgch.Client,
) xhttp.Handler {
	authn := middleware.Authenticate(verifier,
		middleware.WithCookieName(cfg.Auth.CookieName),
		middleware.WithLogger(logger),
	)
	return xhttp.Handlers{
		api.NewHealthHandler(flags.Mode, cfg.RateLimit.Backend, cfg.Audit.Backend, readinessChecks(rdb, ch)...),
		api.NewRecommendationHandler(logger, router, limiter, authn, audit, m),
	}
}

// readinessChecks pings only the stores this deployment actually uses.
func readinessChecks(rdb *redis.Client, ch *pkgch.Client) []api.HealthOption {
	var opts []api.HealthOption
	if rdb != nil {
		opts = append(opts, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if ch != nil {
		opts = append(opts, api.WithReadinessCheck("clickhouse", ch.Health))
	}
	return opts
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, logger *applogger.Logger, handler xhttp.Handler) *server.App {
	return server.New(cfg, logger, handler)
}
