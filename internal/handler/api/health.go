package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "RecoGateway/pkg/http"

	"github.com/labstack/echo/v4"
)

// ReadinessCheck pings one backing store.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler reports liveness, the modes the gateway booted in, and whether its stores answer.
type HealthHandler struct {
	flagMode         func() string
	rateLimitBackend string
	auditBackend     string
	checks           map[string]ReadinessCheck
	checkTimeout     time.Duration
}

type HealthOption func(*HealthHandler)

// WithReadinessCheck adds a dependency to /readyz. A nil check is ignored.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if d > 0 {
			h.checkTimeout = d
		}
	}
}

func NewHealthHandler(flagMode func() string, rateLimitBackend, auditBackend string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		flagMode:         flagMode,
		rateLimitBackend: rateLimitBackend,
		auditBackend:     auditBackend,
		checks:           make(map[string]ReadinessCheck),
		checkTimeout:     time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

func (h *HealthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready answers 503 when any registered store fails its ping.
func (h *HealthHandler) Ready(c echo.Context) error {
	mode := "static"
	if h.flagMode != nil {
		mode = h.flagMode()
	}
	body := map[string]interface{}{
		"feature_flags": mode,
		"rate_limit":    h.rateLimitBackend,
		"audit":         h.auditBackend,
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			// Only the state is reported; error text can carry addresses.
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	return xhttp.DataResponse(c, status, body)
}
