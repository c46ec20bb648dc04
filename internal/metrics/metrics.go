// Package metrics provides Prometheus metrics for the sink consumer loop
// and the encoder backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camsink",
		Subsystem: "sink",
		Name:      "frames_total",
		Help:      "Frames read from the memory sink",
	}, []string{"sink"})

	sinkTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camsink",
		Subsystem: "sink",
		Name:      "read_timeouts_total",
		Help:      "Bounded-wait reads that elapsed without a new frame",
	}, []string{"sink"})

	captureFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camsink",
		Subsystem: "sink",
		Name:      "fps",
		Help:      "Frames observed during the last completed second",
	}, []string{"sink"})

	compressSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "camsink",
		Subsystem: "encoder",
		Name:      "compress_seconds",
		Help:      "Per-frame compression latency",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"backend"})

	backendFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camsink",
		Subsystem: "encoder",
		Name:      "fallbacks_total",
		Help:      "Irreversible hardware-to-software backend downgrades",
	})
)

// IncFrames records one frame read from the named sink.
func IncFrames(sink string) {
	framesObserved.WithLabelValues(sink).Inc()
}

// IncTimeouts records one bounded-wait read timeout on the named sink.
func IncTimeouts(sink string) {
	sinkTimeouts.WithLabelValues(sink).Inc()
}

// SetFPS publishes the FPS of the just-completed second for the named sink.
func SetFPS(sink string, fps uint) {
	captureFPS.WithLabelValues(sink).Set(float64(fps))
}

// ObserveCompress records one compression duration for a backend.
func ObserveCompress(backend string, seconds float64) {
	compressSeconds.WithLabelValues(backend).Observe(seconds)
}

// IncFallbacks records a backend-wide hardware-to-software downgrade.
func IncFallbacks() {
	backendFallbacks.Inc()
}
