package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	xutil "RecoGateway/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServiceEndpoint is one downstream collaborator reached over HTTP.
type ServiceEndpoint struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" default:"1s" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"4000" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"server"`
	Log struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"recommendation-gateway-logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Services struct {
		OptionsAnalytics ServiceEndpoint `yaml:"options_analytics"`
		Signals          ServiceEndpoint `yaml:"signals"`
		Recommender      ServiceEndpoint `yaml:"recommender"`
		Rationale        ServiceEndpoint `yaml:"rationale"`
		MarketDataURL    string          `yaml:"market_data_url" default:"http://localhost:7001"`
	} `yaml:"services"`
	Router struct {
		RequestTimeout      time.Duration `yaml:"request_timeout" default:"4s" validate:"gt=0"`
		SignalsRetryBackoff time.Duration `yaml:"signals_retry_backoff" default:"100ms"`
		ValidationReserve   time.Duration `yaml:"validation_reserve" default:"100ms"`
		RationaleFlag       string        `yaml:"rationale_flag" default:"recommendation-rag"`
	} `yaml:"router"`
	Auth struct {
		JWKSURI               string        `yaml:"jwks_uri" validate:"required,url"`
		Issuer                string        `yaml:"issuer" validate:"required"`
		Audience              string        `yaml:"audience" validate:"required"`
		JWKSRequestsPerMinute int           `yaml:"jwks_requests_per_minute" default:"5" validate:"gte=1"`
		JWKSRefreshInterval   time.Duration `yaml:"jwks_refresh_interval" default:"1h"`
		JWKSTimeout           time.Duration `yaml:"jwks_timeout" default:"5s"`
		CookieName            string        `yaml:"cookie_name" default:"token"`
	} `yaml:"auth"`
	FeatureFlags struct {
		SDKKey      string        `yaml:"sdk_key"`
		InitTimeout time.Duration `yaml:"init_timeout" default:"5s"`
		EvalTimeout time.Duration `yaml:"eval_timeout" default:"250ms"`
	} `yaml:"feature_flags"`
	RateLimit struct {
		Backend   string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Window    time.Duration `yaml:"window" default:"60s" validate:"gt=0"`
		PerUser   int           `yaml:"per_user" default:"60" validate:"gte=1"`
		PerSymbol int           `yaml:"per_symbol" default:"20" validate:"gte=1"`
		Redis     struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"recgw"`
		} `yaml:"redis"`
	} `yaml:"rate_limit"`
	Audit struct {
		Backend string `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		Kafka   struct {
			Brokers      []string      `yaml:"brokers" default:"[\"localhost:9092\"]"`
			Topic        string        `yaml:"topic" default:"recommendation-audit"`
			RequiredAcks int           `yaml:"required_acks" default:"1"`
			Compression  string        `yaml:"compression" default:"snappy"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"2s"`
			Async        bool          `yaml:"async"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Host             string        `yaml:"host" default:"localhost"`
			Port             int           `yaml:"port" default:"9000"`
			Database         string        `yaml:"database" default:"recgw"`
			Table            string        `yaml:"table" default:"recommendation_audit"`
			User             string        `yaml:"user" default:"default"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			AsyncInsert      bool          `yaml:"async_insert" default:"true"`
			WaitForAsync     bool          `yaml:"wait_for_async_insert"`
			DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
			WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		} `yaml:"clickhouse"`
	} `yaml:"audit"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. An empty path yields a config built only from
// defaults.
func Load(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return c, c.finish()
}

// LoadWithEnv loads config from YAML, overrides with environment variables, then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	return c, c.finish()
}

func readFile(path string) (*Config, error) {
	var c Config
	if path == "" {
		return &c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) finish() error {
	if err := c.applyDefaults(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() error {
	// Rationale generation is generative; give it more room than the data services.
	if c.Services.Rationale.Timeout == 0 {
		c.Services.Rationale.Timeout = 3 * time.Second
	}
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	endpoints := []struct {
		ep  *ServiceEndpoint
		url string
	}{
		{&c.Services.OptionsAnalytics, "http://localhost:7002"},
		{&c.Services.Signals, "http://localhost:7003"},
		{&c.Services.Recommender, "http://localhost:7004"},
		{&c.Services.Rationale, "http://localhost:7005"},
	}
	for _, e := range endpoints {
		if e.ep.URL == "" {
			e.ep.URL = e.url
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = xutil.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := getenv("OPTIONS_ANALYTICS_URL"); v != "" {
		c.Services.OptionsAnalytics.URL = v
	}
	if v := getenv("SIGNALS_URL"); v != "" {
		c.Services.Signals.URL = v
	}
	if v := getenv("RECOMMENDER_URL"); v != "" {
		c.Services.Recommender.URL = v
	}
	if v := getenv("AI_ORCHESTRATOR_URL"); v != "" {
		c.Services.Rationale.URL = v
	}
	if v := getenv("MARKET_DATA_URL"); v != "" {
		c.Services.MarketDataURL = v
	}
	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		c.Router.RequestTimeout = xutil.ParseDurationDefault(v, c.Router.RequestTimeout)
	}
	if v := getenv("AUTH_JWKS_URI"); v != "" {
		c.Auth.JWKSURI = v
	}
	if v := getenv("AUTH_ISSUER"); v != "" {
		c.Auth.Issuer = v
	}
	if v := getenv("AUTH_AUDIENCE"); v != "" {
		c.Auth.Audience = v
	}
	if v := getenv("LAUNCHDARKLY_SDK_KEY"); v != "" {
		c.FeatureFlags.SDKKey = v
	}
	if v := getenv("RATE_LIMIT_BACKEND"); v != "" {
		c.RateLimit.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.RateLimit.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.RateLimit.Redis.Password = v
	}
	if v := getenv("AUDIT_BACKEND"); v != "" {
		c.Audit.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Audit.Kafka.Brokers = xutil.SplitList(v)
	}
	if v := getenv("KAFKA_AUDIT_TOPIC"); v != "" {
		c.Audit.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.Audit.ClickHouse.Host = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.Redis.Addr == "" {
		return fmt.Errorf("rate_limit.redis.addr is required when backend is redis")
	}
	if c.Audit.Backend == "kafka" && len(c.Audit.Kafka.Brokers) == 0 {
		return fmt.Errorf("audit.kafka.brokers cannot be empty when audit backend is kafka")
	}
	if c.Log.Collector.Enabled && len(c.Audit.Kafka.Brokers) == 0 {
		return fmt.Errorf("log.collector requires audit.kafka.brokers")
	}
	return nil
}
