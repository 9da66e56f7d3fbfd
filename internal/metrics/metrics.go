// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds the pipeline's Prometheus collectors. A nil *Handler is valid
// and records nothing, so components can run without metrics in tests.
type Handler struct {
	registry *prometheus.Registry

	RunsTotal             *prometheus.CounterVec
	StageFailuresTotal    *prometheus.CounterVec
	StageLatency          *prometheus.HistogramVec
	ProviderAttemptsTotal *prometheus.CounterVec
	FindingsDroppedTotal  prometheus.Counter
	EntriesFetchedTotal   prometheus.Counter
}

// New registers the collectors on a fresh registry
func New() *Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Handler{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_runs_total",
			Help: "The total number of pipeline runs by mode and final status",
		}, []string{"mode", "status"}),
		StageFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_stage_failures_total",
			Help: "The total number of failed runs by stage and error code",
		}, []string{"stage", "code"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oncall_stage_latency_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ProviderAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_provider_attempts_total",
			Help: "LLM provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		FindingsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "oncall_findings_dropped_total",
			Help: "Findings discarded because they failed validation",
		}),
		EntriesFetchedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "oncall_entries_fetched_total",
			Help: "Log entries pulled from the log source",
		}),
	}
}

// HTTPHandler exposes the registry in the Prometheus text format
func (h *Handler) HTTPHandler() http.Handler {
	if h == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (h *Handler) Registry() *prometheus.Registry {
	if h == nil {
		return nil
	}
	return h.registry
}

// IncRun counts a finished run
func (h *Handler) IncRun(mode, status string) {
	if h == nil {
		return
	}
	h.RunsTotal.WithLabelValues(mode, status).Inc()
}

// IncStageFailure counts a run that failed in stage with code
func (h *Handler) IncStageFailure(stage, code string) {
	if h == nil {
		return
	}
	h.StageFailuresTotal.WithLabelValues(stage, code).Inc()
}

// ObserveStage records how long a stage took
func (h *Handler) ObserveStage(stage string, d time.Duration) {
	if h == nil {
		return
	}
	h.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// IncProviderAttempt counts one provider call; outcome is success, transient or fatal
func (h *Handler) IncProviderAttempt(provider, outcome string) {
	if h == nil {
		return
	}
	h.ProviderAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// AddFindingsDropped counts findings rejected by validation
func (h *Handler) AddFindingsDropped(n int) {
	if h == nil || n <= 0 {
		return
	}
	h.FindingsDroppedTotal.Add(float64(n))
}

// AddEntriesFetched counts entries read from the log source
func (h *Handler) AddEntriesFetched(n int) {
	if h == nil || n <= 0 {
		return
	}
	h.EntriesFetchedTotal.Add(float64(n))
}
