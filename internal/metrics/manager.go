package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for provider calls
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

type Manager struct {
	// counters
	CounterRequests      *prometheus.CounterVec
	CounterProviderCalls *prometheus.CounterVec
	CounterStreamChunks  prometheus.Counter
	CounterJobs          *prometheus.CounterVec

	// gauges
	GaugeRequests prometheus.Gauge

	// histograms
	HistRequestDuration  prometheus.Histogram
	HistProviderDuration *prometheus.HistogramVec
	HistContextTokens    prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("coachiq", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("coachiq", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterProviderCalls := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "provider_calls",
		Help:      "The total number of coaching provider operations by outcome",
	}, []string{"provider", "op", "outcome"})
	counterStreamChunks := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stream_chunks",
		Help:      "The total number of streamed chat chunks delivered",
	})
	counterJobs := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "jobs",
		Help:      "The total number of background jobs processed",
	}, []string{"type", "status"})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histReqDuration := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		Name:      "request_duration_seconds",
		Help:      "Total duration of requests in seconds",
	})
	histProviderDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of a single coaching provider operation in seconds",
	}, []string{"provider", "op"})
	histContextTokens := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		Name:      "context_tokens",
		Help:      "Estimated tokens of assembled athlete contexts",
	})

	return &Manager{
		CounterRequests:      counterRequests,
		CounterProviderCalls: counterProviderCalls,
		CounterStreamChunks:  counterStreamChunks,
		CounterJobs:          counterJobs,
		GaugeRequests:        gaugeRequests,
		HistRequestDuration:  histReqDuration,
		HistProviderDuration: histProviderDuration,
		HistContextTokens:    histContextTokens,
	}
}
