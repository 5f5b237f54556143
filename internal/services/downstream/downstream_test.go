package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"RecoGateway/internal/domain/models"
	"RecoGateway/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu         sync.Mutex
	downstream map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{downstream: map[string]int{}} }

func (m *fakeMetrics) RecordRequest(string, models.ErrorKind)  {}
func (m *fakeMetrics) RecordStage(models.Stage, time.Duration) {}
func (m *fakeMetrics) RecordRateLimited(string)                {}
func (m *fakeMetrics) RecordFlagFallback(string)               {}
func (m *fakeMetrics) RecordRationaleDegraded(string)          {}
func (m *fakeMetrics) RecordDownstream(service, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downstream[service+"/"+result]++
}

func endpoint(url string) config.ServiceEndpoint {
	return config.ServiceEndpoint{URL: url, Timeout: 200 * time.Millisecond}
}

func serve(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireKind(t *testing.T, err error, kind models.ErrorKind) *Error {
	t.Helper()
	var de *Error
	require.True(t, errors.As(err, &de), "want *downstream.Error, got %T: %v", err, err)
	assert.Equal(t, kind, de.Kind)
	return de
}

var aapl = models.RecommendationRequest{Symbol: "AAPL", RiskProfile: "neutral", CapitalUSD: 5000}

func TestScreenPassesSnapshotThrough(t *testing.T) {
	body := `{"shortlist":[{"symbol":"AAPL240621C00190000","delta":0.42}],"liquidity":{"oi":1200}}`
	srv := serve(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/screen", r.URL.Path)
		var got models.RecommendationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, aapl, got)
	})
	m := newFakeMetrics()

	snap, err := NewOptionsAnalyticsClient(endpoint(srv.URL), m).Screen(context.Background(), aapl)
	require.NoError(t, err)
	assert.Equal(t, body, string(snap))
	assert.Equal(t, 1, m.downstream["options_analytics/ok"])
}

func TestScreenRejectsNonObject(t *testing.T) {
	srv := serve(t, http.StatusOK, `[1,2,3]`, nil)
	_, err := NewOptionsAnalyticsClient(endpoint(srv.URL), nil).Screen(context.Background(), aapl)
	requireKind(t, err, models.KindDownstreamShape)
}

func TestNon2xxIsUnavailable(t *testing.T) {
	srv := serve(t, http.StatusInternalServerError, `{"error":"db at 10.1.2.3 down"}`, nil)
	m := newFakeMetrics()

	_, err := NewOptionsAnalyticsClient(endpoint(srv.URL), m).Screen(context.Background(), aapl)
	de := requireKind(t, err, models.KindDownstreamUnavailable)
	assert.Equal(t, http.StatusInternalServerError, de.Status)
	assert.Equal(t, ServiceOptionsAnalytics, de.Service)
	assert.Equal(t, 1, m.downstream["options_analytics/unavailable"])
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := serve(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	_, err := NewSignalsClient(endpoint(url), nil).Snapshot(context.Background(), "AAPL")
	requireKind(t, err, models.KindDownstreamUnavailable)
}

func TestSlowServiceTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	m := newFakeMetrics()

	ep := config.ServiceEndpoint{URL: srv.URL, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := NewSignalsClient(ep, m).Snapshot(context.Background(), "AAPL")
	requireKind(t, err, models.KindDownstreamTimeout)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, m.downstream["signals/timeout"])
}

func TestSnapshotEscapesSymbol(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"sentiment":{"score":0.6}}`, func(r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/snapshot/BRK%2FB", r.URL.EscapedPath())
	})

	snap, err := NewSignalsClient(endpoint(srv.URL+"/"), nil).Snapshot(context.Background(), "BRK/B")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentiment":{"score":0.6}}`, string(snap))
}

const scored = `{
  "decision": {"direction": "CALL", "strategy": "LONG_CALL"},
  "contracts": [{"symbol": "AAPL240621C00190000", "qty": 1}],
  "position": {"contracts": 1, "notional": 500},
  "confidence": 0.71
}`

func TestScoreDecodes(t *testing.T) {
	srv := serve(t, http.StatusOK, scored, func(r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		var got map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.JSONEq(t, `"u-1"`, string(got["user_id"]))
		assert.JSONEq(t, `{"shortlist":[]}`, string(got["chain_snapshot"]))
		assert.JSONEq(t, `{"sentiment":{"score":0.6}}`, string(got["signals"]))
		assert.JSONEq(t, `"http://localhost:7001"`, string(got["market_data_url"]))
	})

	rec, err := NewRecommenderClient(endpoint(srv.URL), nil).Score(context.Background(), models.ScorePayload{
		UserID:        "u-1",
		ChainSnapshot: models.ChainSnapshot(`{"shortlist":[]}`),
		Signals:       models.SignalSnapshot(`{"sentiment":{"score":0.6}}`),
		Request:       aapl,
		MarketDataURL: "http://localhost:7001",
	})
	require.NoError(t, err)
	assert.Equal(t, "CALL", rec.Decision.Direction)
	assert.Equal(t, "LONG_CALL", rec.Decision.Strategy)
	assert.Len(t, rec.Contracts, 1)
	assert.Equal(t, 500.0, rec.Position.Notional)
	assert.Nil(t, rec.Position.EstMaxLoss)
	assert.Equal(t, 0.71, rec.Confidence)
}

func TestScoreShapeErrors(t *testing.T) {
	cases := map[string]string{
		"missing confidence": `{"decision":{"direction":"CALL","strategy":"x"},"contracts":[],"position":{"contracts":1,"notional":5}}`,
		"string confidence":  `{"decision":{"direction":"CALL","strategy":"x"},"contracts":[],"position":{"contracts":1,"notional":5},"confidence":"0.7"}`,
		"missing notional":   `{"decision":{"direction":"CALL","strategy":"x"},"contracts":[],"position":{"contracts":1},"confidence":0.7}`,
		"contracts object":   `{"decision":{"direction":"CALL","strategy":"x"},"contracts":{},"position":{"contracts":1,"notional":5},"confidence":0.7}`,
		"not json":           `<html>oops</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := serve(t, http.StatusOK, body, nil)
			_, err := NewRecommenderClient(endpoint(srv.URL), nil).Score(context.Background(), models.ScorePayload{UserID: "u"})
			requireKind(t, err, models.KindDownstreamShape)
		})
	}
}

func TestGenerateRationale(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"summary":"Bullish","layers":{"sentiment":"positive"},"compliance":{"reviewed":true}}`, func(r *http.Request) {
		assert.Equal(t, "/rationale", r.URL.Path)
		var got map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.JSONEq(t, `"AAPL"`, string(got["symbol"]))
		assert.Contains(t, string(got["recommendation"]), "LONG_CALL")
	})
	var rec models.RawRecommendation
	require.NoError(t, json.Unmarshal([]byte(scored), &rec))

	r, err := NewRationaleClient(endpoint(srv.URL), nil).Generate(context.Background(), models.RationalePayload{
		UserID:         "u-1",
		Symbol:         "AAPL",
		Recommendation: &rec,
		Signals:        models.SignalSnapshot(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bullish", r.Summary)
	assert.JSONEq(t, `{"sentiment":"positive"}`, string(r.Layers))
	assert.JSONEq(t, `{"reviewed":true}`, string(r.Compliance))
}

func TestGenerateRejectsMissingLayers(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"summary":"Bullish"}`, nil)
	_, err := NewRationaleClient(endpoint(srv.URL), nil).Generate(context.Background(), models.RationalePayload{})
	requireKind(t, err, models.KindDownstreamShape)
}
