package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Each Engine registers
// its own set with the Registerer given to WithMetrics, so several engines
// (and tests) can coexist.
type Metrics struct {
	// createsTotal counts intercepted creations by provenance of the result.
	createsTotal *prometheus.CounterVec

	// resolveErrors counts resolutions that hard-stopped, by error code.
	resolveErrors *prometheus.CounterVec

	// autopatchTotal counts stage-4 outcomes: patched, unchanged, failed, skipped.
	autopatchTotal *prometheus.CounterVec

	// reloadsTotal counts per-program reload attempts by result.
	reloadsTotal *prometheus.CounterVec

	// promotionsTotal counts promotions by result.
	promotionsTotal *prometheus.CounterVec

	// liveReplacements tracks installed replacements.
	liveReplacements prometheus.Gauge

	// resolveDuration tracks Resolve latency.
	resolveDuration prometheus.Histogram
}

// newMetrics registers collectors with reg. A nil reg yields unregistered
// collectors that still count.
func newMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		createsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shaderhunt_program_creates_total",
			Help: "Intercepted program creations by provenance of the bound program",
		}, []string{"provenance"}),
		resolveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shaderhunt_resolve_errors_total",
			Help: "Resolutions stopped by a broken artifact, by error code",
		}, []string{"code"}),
		autopatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shaderhunt_autopatch_total",
			Help: "Auto-patch outcomes",
		}, []string{"result"}),
		reloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shaderhunt_reloads_total",
			Help: "Per-program reload attempts by result",
		}, []string{"result"}),
		promotionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shaderhunt_promotions_total",
			Help: "Promotions by result",
		}, []string{"result"}),
		liveReplacements: f.NewGauge(prometheus.GaugeOpts{
			Name: "shaderhunt_live_replacements",
			Help: "Programs currently bound to a replacement",
		}),
		resolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shaderhunt_resolve_duration_seconds",
			Help:    "Resolve latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}),
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
