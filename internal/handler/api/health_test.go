package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getPath(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	e := echo.New()
	NewHealthHandler(func() string { return "remote" }, "redis", "kafka").RegisterRoutes(e)

	rec := getPath(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = getPath(e, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"feature_flags":"remote"`)
	assert.Contains(t, rec.Body.String(), `"rate_limit":"redis"`)
	assert.NotContains(t, rec.Body.String(), "dependencies")
}

func TestReadyReportsDependencies(t *testing.T) {
	e := echo.New()
	up := func(context.Context) error { return nil }
	NewHealthHandler(nil, "redis", "clickhouse",
		WithReadinessCheck("redis", up),
		WithReadinessCheck("clickhouse", up),
		WithReadinessCheck("ignored", nil),
	).RegisterRoutes(e)

	rec := getPath(e, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dependencies":{"clickhouse":"up","redis":"up"}`)
	assert.Contains(t, rec.Body.String(), `"feature_flags":"static"`)
}

func TestReadyFailsWhenStoreIsDown(t *testing.T) {
	e := echo.New()
	NewHealthHandler(nil, "redis", "none",
		WithReadinessCheck("redis", func(context.Context) error {
			return errors.New("dial tcp 10.0.0.9:6379: connection refused")
		}),
	).RegisterRoutes(e)

	rec := getPath(e, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
	assert.NotContains(t, rec.Body.String(), "10.0.0.9")
}

func TestReadyCheckIsBounded(t *testing.T) {
	e := echo.New()
	NewHealthHandler(nil, "none", "clickhouse",
		WithCheckTimeout(20*time.Millisecond),
		WithReadinessCheck("clickhouse", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	).RegisterRoutes(e)

	start := time.Now()
	rec := getPath(e, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
}
