package ratelimit

import (
	"context"
	"fmt"
	"time"

	domrepo "RecoGateway/internal/domain/repository"
	applogger "RecoGateway/pkg/logger"
)

// Scopes of the two inbound limits.
const (
	ScopeUser   = "user"
	ScopeSymbol = "symbol"
)

// ExceededError reports which limit rejected the request.
type ExceededError struct {
	Scope  string
	Limit  int
	Window time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s rate limit of %d per %s exceeded", e.Scope, e.Limit, e.Window)
}

type Config struct {
	Window    time.Duration
	PerUser   int
	PerSymbol int
}

// Limiter enforces the per-user and per-symbol limits together.
type Limiter struct {
	store   Store
	cfg     Config
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewLimiter(store Store, cfg Config, metrics domrepo.Metrics, logger *applogger.Logger) *Limiter {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Limiter{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

// Allow records one request for userID and symbol, or returns *ExceededError without recording
// anything. A store failure lets the request through.
func (l *Limiter) Allow(ctx context.Context, userID, symbol string) error {
	rules := []Rule{
		{Scope: ScopeUser, Key: userID, Limit: l.cfg.PerUser},
		{Scope: ScopeSymbol, Key: symbol, Limit: l.cfg.PerSymbol},
	}
	idx, err := l.store.Take(ctx, l.cfg.Window, rules)
	if err != nil {
		l.logger.Error("rate limit store unavailable, allowing request",
			applogger.String("user_id", userID),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil
	}
	if idx < 0 {
		return nil
	}
	r := rules[idx]
	if l.metrics != nil {
		l.metrics.RecordRateLimited(r.Scope)
	}
	return &ExceededError{Scope: r.Scope, Limit: r.Limit, Window: l.cfg.Window}
}
