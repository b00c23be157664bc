// internal/telemetry/metrics.go
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine and its collaborators report to.
// All collectors are registered against the registry passed to NewMetrics,
// so tests can use a private registry.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	GenerationRounds  prometheus.Histogram
	GenerationSeconds prometheus.Histogram
	ToolCalls         *prometheus.CounterVec
	RouterFallbacks   prometheus.Counter
	PushFrames        *prometheus.CounterVec
	TurnsSwept        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialogue",
			Name:      "messages_processed_total",
			Help:      "Inbound messages fully processed, by dialogue type and outcome.",
		}, []string{"dialogue_type", "outcome"}),
		GenerationRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dialogue",
			Name:      "generation_rounds",
			Help:      "Provider rounds consumed per generation loop run.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dialogue",
			Name:      "generation_seconds",
			Help:      "Wall time of a full generation loop run.",
			Buckets:   prometheus.DefBuckets,
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialogue",
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		RouterFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dialogue",
			Name:      "router_fallbacks_total",
			Help:      "Messages routed through the fallback handler because their dialogue type was unknown.",
		}),
		PushFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialogue",
			Name:      "push_frames_total",
			Help:      "Frames handed to the push layer, by frame type.",
		}, []string{"frame"}),
		TurnsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dialogue",
			Name:      "turns_swept_total",
			Help:      "Open turns moved to unresponded by the response-window sweeper.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesProcessed,
			m.GenerationRounds,
			m.GenerationSeconds,
			m.ToolCalls,
			m.RouterFallbacks,
			m.PushFrames,
			m.TurnsSwept,
		)
	}
	return m
}

// NewNopMetrics returns unregistered collectors for tests and for callers
// that do not export metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(nil)
}
