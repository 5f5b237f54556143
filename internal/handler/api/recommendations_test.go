package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"RecoGateway/internal/domain/models"
	"RecoGateway/internal/middleware"
	"RecoGateway/internal/service/ratelimit"
	"RecoGateway/internal/usecase"
	xmw "RecoGateway/pkg/http/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (*models.Principal, error) {
	if raw == "good" {
		return &models.Principal{Subject: "user-1"}, nil
	}
	return nil, errors.New("signature invalid")
}

type stubRouter struct {
	calls int
	got   models.RecommendationRequest
	rec   *usecase.Recommendation
	err   error
}

func (s *stubRouter) Recommend(_ context.Context, _ string, req models.RecommendationRequest) (*usecase.Recommendation, error) {
	s.calls++
	s.got = req
	return s.rec, s.err
}

type stubLimiter struct{ err error }

func (s stubLimiter) Allow(context.Context, string, string) error { return s.err }

type recordingAuditor struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (a *recordingAuditor) Record(ev *models.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

const okBody = `{"decision":{"direction":"CALL","strategy":"long_call"},"contracts":[],"position":{"contracts":2,"notional":1000},"confidence":0.72,"rationale":{"summary":"s","layers":{}}}`

func newTestEcho(router *stubRouter, limiter stubLimiter, audit *recordingAuditor) *echo.Echo {
	e := echo.New()
	e.Use(xmw.RequestID())
	h := NewRecommendationHandler(nil, router, limiter, middleware.Authenticate(stubVerifier{}), audit, nil)
	h.RegisterRoutes(e)
	return e
}

func post(e *echo.Echo, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/recommendations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorBody {
	t.Helper()
	var body models.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const validRequest = `{"symbol":" aapl ","risk_profile":"neutral","capital_usd":5000}`

func TestRecommend_Success(t *testing.T) {
	router := &stubRouter{rec: &usecase.Recommendation{Body: []byte(okBody)}}
	audit := &recordingAuditor{}
	e := newTestEcho(router, stubLimiter{}, audit)

	rec := post(e, "good", validRequest)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, okBody, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "AAPL", router.got.Symbol)

	require.Len(t, audit.events, 1)
	ev := audit.events[0]
	assert.Equal(t, models.OutcomeSuccess, ev.Outcome)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), ev.RequestID)
}

func TestRecommend_Unauthenticated(t *testing.T) {
	router := &stubRouter{}
	audit := &recordingAuditor{}
	e := newTestEcho(router, stubLimiter{}, audit)

	for _, token := range []string{"", "bad"} {
		rec := post(e, token, validRequest)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, models.StagePolicy, body.Stage)
		assert.Equal(t, models.KindAuth, body.Kind)
	}
	assert.Zero(t, router.calls)
	assert.Empty(t, audit.events)
}

func TestRecommend_InvalidBody(t *testing.T) {
	router := &stubRouter{}
	audit := &recordingAuditor{}
	e := newTestEcho(router, stubLimiter{}, audit)

	for name, body := range map[string]string{
		"bad profile":   `{"symbol":"AAPL","risk_profile":"yolo","capital_usd":5000}`,
		"zero capital":  `{"symbol":"AAPL","risk_profile":"neutral","capital_usd":0}`,
		"blank symbol":  `{"symbol":"   ","risk_profile":"neutral","capital_usd":5000}`,
		"missing field": `{"risk_profile":"neutral","capital_usd":5000}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(e, "good", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			eb := decodeError(t, rec)
			assert.Equal(t, models.StageInput, eb.Stage)
			assert.Equal(t, models.KindValidation, eb.Kind)
			assert.NotEmpty(t, eb.Message)
		})
	}
	assert.Zero(t, router.calls)
	require.NotEmpty(t, audit.events)
	assert.Equal(t, models.OutcomeRejected, audit.events[0].Outcome)
}

func TestRecommend_RateLimited(t *testing.T) {
	router := &stubRouter{}
	limiter := stubLimiter{err: &ratelimit.ExceededError{Scope: ratelimit.ScopeSymbol, Limit: 20, Window: time.Minute}}
	e := newTestEcho(router, limiter, &recordingAuditor{})

	rec := post(e, "good", validRequest)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, models.StagePolicy, body.Stage)
	assert.Equal(t, models.KindRateLimit, body.Kind)
	assert.Zero(t, router.calls)
}

func TestRecommend_OrchestrationFailures(t *testing.T) {
	cases := map[string]struct {
		err    *models.StageError
		status int
	}{
		"downstream unavailable": {
			err: &models.StageError{Stage: models.StageGatheringMarket, Kind: models.KindDownstreamUnavailable,
				Service: "signals", Message: "signals service unavailable", Err: errors.New("dial tcp 10.0.0.7:7003: connection refused")},
			status: http.StatusBadGateway,
		},
		"downstream timeout": {
			err:    &models.StageError{Stage: models.StageScoring, Kind: models.KindDownstreamTimeout, Message: "recommender service timed out"},
			status: http.StatusGatewayTimeout,
		},
		"request timeout": {
			err:    &models.StageError{Stage: models.StageEnriching, Kind: models.KindRequestTimeout, Message: "request deadline exceeded"},
			status: http.StatusGatewayTimeout,
		},
		"invalid merged response": {
			err:    &models.StageError{Stage: models.StageValidating, Kind: models.KindValidation, Message: "recommendation failed response validation"},
			status: http.StatusBadGateway,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			audit := &recordingAuditor{}
			e := newTestEcho(&stubRouter{err: tc.err}, stubLimiter{}, audit)

			rec := post(e, "good", validRequest)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.err.Stage, body.Stage)
			assert.Equal(t, tc.err.Kind, body.Kind)
			assert.NotContains(t, rec.Body.String(), "10.0.0.7")
			assert.NotContains(t, rec.Body.String(), "http://")

			require.Len(t, audit.events, 1)
			assert.Equal(t, models.OutcomeFailed, audit.events[0].Outcome)
			assert.Equal(t, tc.err.Kind, audit.events[0].Kind)
		})
	}
}

func TestRecommend_WithoutPrincipal(t *testing.T) {
	e := echo.New()
	passthrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router := &stubRouter{}
	NewRecommendationHandler(nil, router, stubLimiter{}, passthrough, nil, nil).RegisterRoutes(e)

	rec := post(e, "", validRequest)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INTERNAL")
	assert.Zero(t, router.calls)
}
