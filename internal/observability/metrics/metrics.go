package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the message pipeline.
type PipelineMetrics struct {
	turnsTotal       *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	nluLatency       *prometheus.HistogramVec
	actionAttempts   *prometheus.CounterVec
	turnLatency      *prometheus.HistogramVec
	logWriteFailures prometheus.Counter
	logDropped       prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"channel", "generator", "status"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "pipeline",
			Name:      "fallback_total",
			Help:      "Total fallback generations by reason",
		}, []string{"reason"}),
		nluLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "pipeline",
			Name:      "nlu_latency_seconds",
			Help:      "Latency of NLU resolve calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		actionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "pipeline",
			Name:      "action_attempts_total",
			Help:      "Total action endpoint attempts",
		}, []string{"action", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "pipeline",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn processing latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		logWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "convlog",
			Name:      "write_failures_total",
			Help:      "Total failed conversation-turn log writes",
		}),
		logDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "convlog",
			Name:      "dropped_total",
			Help:      "Total conversation turns dropped after log retries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.fallbackTotal, m.nluLatency, m.actionAttempts, m.turnLatency, m.logWriteFailures, m.logDropped)
	return m
}

func (m *PipelineMetrics) ObserveTurn(channel, generator, status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, generator, status).Inc()
}

func (m *PipelineMetrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveNLULatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.nluLatency.WithLabelValues(status).Observe(seconds)
}

func (m *PipelineMetrics) ObserveActionAttempt(action, status string) {
	if m == nil {
		return
	}
	m.actionAttempts.WithLabelValues(action, status).Inc()
}

func (m *PipelineMetrics) ObserveTurnLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *PipelineMetrics) ObserveLogWriteFailure() {
	if m == nil {
		return
	}
	m.logWriteFailures.Inc()
}

func (m *PipelineMetrics) ObserveLogDropped() {
	if m == nil {
		return
	}
	m.logDropped.Inc()
}
