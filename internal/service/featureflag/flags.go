// Package featureflag resolves per-user boolean flags against LaunchDarkly, or against the
// caller's fallback when LaunchDarkly is not available.
package featureflag

import (
	"context"
	"sync"
	"time"

	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	applogger "RecoGateway/pkg/logger"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
)

// Modes reported by Service.Mode.
const (
	ModeRemote = "remote"
	ModeStatic = "static"
)

// Evaluator is the part of the LaunchDarkly client the service needs.
type Evaluator interface {
	BoolVariation(key string, context ldcontext.Context, defaultVal bool) (bool, error)
	Close() error
}

// Service always answers. With no evaluator it is static and every call returns the fallback.
type Service struct {
	eval    Evaluator
	timeout time.Duration
	logger  *applogger.Logger
	metrics domrepo.Metrics
	warned  sync.Map // flag key -> struct{}
}

var _ service.FeatureFlags = (*Service)(nil)

// Option configures Service.
type Option func(*Service)

// WithEvalTimeout bounds a single evaluation.
func WithEvalTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New wraps eval. A nil eval yields a static service.
func New(eval Evaluator, opts ...Option) *Service {
	s := &Service{eval: eval, timeout: 250 * time.Millisecond, logger: applogger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect starts a LaunchDarkly client and waits up to initTimeout for it to initialize. An empty
// sdkKey or a client that fails to initialize yields a static service.
func Connect(sdkKey string, initTimeout time.Duration, opts ...Option) *Service {
	return connect(sdkKey, ld.Config{}, initTimeout, opts...)
}

func connect(sdkKey string, cfg ld.Config, initTimeout time.Duration, opts ...Option) *Service {
	s := New(nil, opts...)
	if sdkKey == "" {
		s.logger.Warn("feature flags: no sdk key configured, using static fallbacks")
		return s
	}
	client, err := ld.MakeCustomClient(sdkKey, cfg, initTimeout)
	if err != nil || client == nil || !client.Initialized() {
		s.logger.Warn("feature flags: provider unreachable at startup, using static fallbacks",
			applogger.Error(err),
		)
		if client != nil {
			_ = client.Close()
		}
		return s
	}
	s.eval = client
	s.logger.Info("feature flags: connected")
	return s
}

// Mode reports whether evaluations reach the provider.
func (s *Service) Mode() string {
	if s.eval == nil {
		return ModeStatic
	}
	return ModeRemote
}

// BoolVariation evaluates flagKey for userKey. It returns fallback when the service is static,
// the evaluation fails, or it does not finish within the evaluation timeout.
func (s *Service) BoolVariation(ctx context.Context, flagKey, userKey string, fallback bool) bool {
	if s.eval == nil {
		s.fallback(flagKey, "provider unavailable", nil)
		return fallback
	}

	type result struct {
		v   bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := s.eval.BoolVariation(flagKey, ldcontext.New(userKey), fallback)
		ch <- result{v, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			s.fallback(flagKey, "evaluation failed", r.err)
			return fallback
		}
		return r.v
	case <-timer.C:
		s.fallback(flagKey, "evaluation timed out", nil)
		return fallback
	case <-ctx.Done():
		s.fallback(flagKey, "request cancelled", ctx.Err())
		return fallback
	}
}

// fallback counts every fallback but logs only the first one per flag key.
func (s *Service) fallback(flagKey, reason string, err error) {
	if s.metrics != nil {
		s.metrics.RecordFlagFallback(flagKey)
	}
	if _, seen := s.warned.LoadOrStore(flagKey, struct{}{}); seen {
		return
	}
	fields := []applogger.Field{
		applogger.String("flag", flagKey),
		applogger.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, applogger.Error(err))
	}
	s.logger.Warn("feature flag using fallback value", fields...)
}

// Close shuts down the provider client, if any.
func (s *Service) Close() error {
	if s.eval == nil {
		return nil
	}
	return s.eval.Close()
}
