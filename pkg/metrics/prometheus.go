package metrics

import (
	"time"

	"RecoGateway/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	requests          *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	downstream        *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	flagFallbacks     *prometheus.CounterVec
	rationaleDegraded *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recgw_requests_total",
				Help: "Recommendation requests by outcome and failure kind",
			},
			[]string{"outcome", "kind"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recgw_stage_duration_seconds",
				Help:    "Duration of each orchestration stage in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4},
			},
			[]string{"stage"},
		),
		downstream: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recgw_downstream_requests_total",
				Help: "Downstream calls by service and result",
			},
			[]string{"service", "result"},
		),
		rateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recgw_rate_limited_total",
				Help: "Requests rejected by the rate limiter by scope",
			},
			[]string{"scope"},
		),
		flagFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recgw_flag_fallbacks_total",
				Help: "Flag evaluations answered with the fallback value",
			},
			[]string{"flag"},
		),
		rationaleDegraded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recgw_rationale_degraded_total",
				Help: "Responses served with the placeholder rationale",
			},
			[]string{"reason"},
		),
	}
}

// RecordRequest counts a finished request. kind is empty on success.
func (r *Recorder) RecordRequest(outcome string, kind models.ErrorKind) {
	r.requests.WithLabelValues(outcome, string(kind)).Inc()
}

func (r *Recorder) RecordStage(stage models.Stage, d time.Duration) {
	r.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (r *Recorder) RecordDownstream(service, result string) {
	r.downstream.WithLabelValues(service, result).Inc()
}

func (r *Recorder) RecordRateLimited(scope string) {
	r.rateLimited.WithLabelValues(scope).Inc()
}

func (r *Recorder) RecordFlagFallback(flag string) {
	r.flagFallbacks.WithLabelValues(flag).Inc()
}

func (r *Recorder) RecordRationaleDegraded(reason string) {
	r.rationaleDegraded.WithLabelValues(reason).Inc()
}
