// Package metrics exports insight computation metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/fathom/internal/domain"
)

const namespace = "fathom"

// Insight outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Recorder records insight metrics. A nil *Recorder is a no-op, so callers
// that don't care about metrics can pass nil.
type Recorder struct {
	gatherer prometheus.Gatherer

	insights       *prometheus.CounterVec
	healthLabels   *prometheus.CounterVec
	ceilingApplied prometheus.Counter
	latency        *prometheus.HistogramVec
}

// New registers the insight metrics on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes the process registry.
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		insights: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_requests_total",
			Help:      "Insight computations by source and outcome.",
		}, []string{"source", "outcome"}),
		healthLabels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_labels_total",
			Help:      "Financial health labels produced, by score scale.",
		}, []string{"label", "scale"}),
		ceilingApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_ceiling_applied_total",
			Help:      "Recommendations scaled down to fit income.",
		}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_duration_seconds",
			Help:      "Latency of one insight computation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"source"}),
	}
}

// ObserveInsight records one computation.
func (r *Recorder) ObserveInsight(source, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.insights.WithLabelValues(source, outcome).Inc()
	r.latency.WithLabelValues(source).Observe(d.Seconds())
}

// RecordHealth counts a health label. Unscored results are labelled "none".
func (r *Recorder) RecordHealth(h domain.HealthResult) {
	if r == nil {
		return
	}
	scale := string(h.Score.Scale)
	if scale == "" {
		scale = "none"
	}
	r.healthLabels.WithLabelValues(string(h.FinancialHealth), scale).Inc()
}

// RecordRecommendation counts recommendations that hit the income ceiling.
func (r *Recorder) RecordRecommendation(rec *domain.RecommendationResult) {
	if r == nil || rec == nil || !rec.ScaledToIncome {
		return
	}
	r.ceilingApplied.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
