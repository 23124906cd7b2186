// Package telemetry exposes prometheus instrumentation for the composition
// pipeline.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CompositionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "compositions_completed_total", Help: "Composition jobs that reached completed"})
	CompositionsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "compositions_failed_total", Help: "Composition jobs that reached failed"})
	ProviderInvocations   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_invocations_total", Help: "Provider calls by adapter and outcome"}, []string{"provider", "outcome"})
	WatermarkDegraded     = prometheus.NewCounter(prometheus.CounterOpts{Name: "watermark_degraded_total", Help: "Images that fell back to their pre-watermark URL"})
	DispatchQueueDepth    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dispatch_queue_depth", Help: "Tasks waiting in the rate-limited dispatch queue"})
	CompositionSeconds    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "composition_duration_seconds", Help: "Wall time per composition job", Buckets: prometheus.DefBuckets})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CompositionsCompleted,
			CompositionsFailed,
			ProviderInvocations,
			WatermarkDegraded,
			DispatchQueueDepth,
			CompositionSeconds,
		)
	})
	return promhttp.Handler()
}
