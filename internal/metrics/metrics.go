// Package metrics exposes the gateway's Prometheus instrumentation.
//
// The teacher (songquanpeng/one-api) only ever wires the default registry
// through promhttp.Handler() behind an admin-auth gate in main.go; it
// never defines a custom metrics package (its relay/billing/billing.go
// references a common/metrics.GlobalRecorder that does not actually exist
// in this codebase). The promauto-based CounterVec/HistogramVec/GaugeVec
// collector shape below is grounded instead on
// BaSui01-agentflow/internal/metrics/collector.go, the richest
// promauto-based metrics package in the retrieval pack, adapted from its
// generic HTTP/agent/cache/db metric families down to the families this
// gateway actually emits: upstream requests, token usage, cost, and
// in-flight counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns every Prometheus instrument the gateway registers. A
// single process-wide instance (Global) is created at init and handed to
// internal/usage, which records tokens, cost, billing errors and in-flight
// counts; nothing calls RecordUpstreamRequest. Tests construct their own via
// NewRecorder(prometheus.NewRegistry()) to avoid polluting the default
// registry.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	billingErrors   *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
}

// NewRecorder registers every instrument against reg and returns the
// Recorder. Pass prometheus.NewRegistry() in tests; pass
// prometheus.DefaultRegisterer (via promauto.With) in production, which
// Global does.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaygw",
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream provider requests, by provider/model/status.",
			},
			[]string{"provider", "model", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relaygw",
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream provider request duration in seconds, by provider/model.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaygw",
				Name:      "tokens_total",
				Help:      "Total tokens consumed, by provider/model/kind (prompt, completion, cached, reasoning, cache_creation).",
			},
			[]string{"provider", "model", "kind"},
		),
		costTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaygw",
				Name:      "cost_usd_total",
				Help:      "Total computed USD cost, by provider/model.",
			},
			[]string{"provider", "model"},
		),
		billingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaygw",
				Name:      "billing_errors_total",
				Help:      "Usage-recording failures that did not abort the request, by reason.",
			},
			[]string{"reason"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "relaygw",
				Name:      "in_flight_requests",
				Help:      "Requests currently being served, by model.",
			},
			[]string{"model"},
		),
	}
}

// Global is the process-wide recorder, registered against the default
// Prometheus registry — the same registry promhttp.Handler() serves at
// `/metrics` in internal/httpserver, matching the teacher's single
// `/metrics` endpoint.
var Global = NewRecorder(prometheus.DefaultRegisterer)

// RecordUpstreamRequest records one completed upstream call.
func (r *Recorder) RecordUpstreamRequest(provider, model, status string, durationSeconds float64) {
	r.requestsTotal.WithLabelValues(provider, model, status).Inc()
	r.requestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTokens adds prompt/completion/cached/reasoning/cache-creation
// token counts for one usage entry. Zero counts are skipped to avoid
// creating label combinations that never occur.
func (r *Recorder) RecordTokens(provider, model string, prompt, completion, cached, reasoning, cacheCreation int) {
	if prompt > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
	if cached > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "cached").Add(float64(cached))
	}
	if reasoning > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "reasoning").Add(float64(reasoning))
	}
	if cacheCreation > 0 {
		r.tokensTotal.WithLabelValues(provider, model, "cache_creation").Add(float64(cacheCreation))
	}
}

// RecordCost adds costUSD to the running total for provider/model.
func (r *Recorder) RecordCost(provider, model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	r.costTotal.WithLabelValues(provider, model).Add(costUSD)
}

// RecordBillingError increments the billing-error counter for reason —
// mirrors the teacher's PostConsumeQuotaWithLog pattern of logging and
// continuing rather than failing the request when usage bookkeeping
// itself fails.
func (r *Recorder) RecordBillingError(reason string) {
	r.billingErrors.WithLabelValues(reason).Inc()
}

// IncInFlight and DecInFlight track the in-flight request gauge described
// in spec.md §3's "In-flight request counter".
func (r *Recorder) IncInFlight(model string) {
	r.inFlight.WithLabelValues(model).Inc()
}

func (r *Recorder) DecInFlight(model string) {
	r.inFlight.WithLabelValues(model).Dec()
}
