package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "medibot"

// PipelineMetrics exposes counters and histograms for chat turns.
type PipelineMetrics struct {
	turnsTotal          *prometheus.CounterVec
	suppressionTotal    *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	retrievalConfidence prometheus.Histogram
	replyLatency        *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Chat turns processed, by risk level and conversation phase",
		}, []string{"risk_level", "phase"}),
		suppressionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "suppression_total",
			Help:      "Replies whose citations were withheld, by reason",
		}, []string{"reason"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Doctor escalations created, by reason",
		}, []string{"reason"}),
		retrievalConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "confidence",
			Help:      "Retrieval confidence per turn that ran retrieval",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		replyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reply",
			Name:      "latency_seconds",
			Help:      "Latency of reply provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.suppressionTotal, m.escalationsTotal, m.retrievalConfidence, m.replyLatency)
	return m
}

func (m *PipelineMetrics) ObserveTurn(riskLevel, phase string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(riskLevel, phase).Inc()
}

func (m *PipelineMetrics) ObserveSuppression(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.suppressionTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveEscalation(reason string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveRetrievalConfidence(v float64) {
	if m == nil {
		return
	}
	m.retrievalConfidence.Observe(v)
}

// ObserveReplyLatency satisfies llm.LatencyObserver.
func (m *PipelineMetrics) ObserveReplyLatency(tier, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.replyLatency.WithLabelValues(tier, status).Observe(d.Seconds())
}
