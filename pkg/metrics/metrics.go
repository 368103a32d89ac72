// Package metrics exposes prometheus collectors for the push and delivery
// paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloudbackend"

// Drop reasons reported by PushDropped.
const (
	ReasonMalformed    = "malformed"
	ReasonUnknownType  = "unknown_type"
	ReasonUnknownQuery = "unknown_query"
	ReasonClosed       = "closed"
)

type Metrics struct {
	pushReceived      *prometheus.CounterVec
	pushDropped       *prometheus.CounterVec
	reexecutions      prometheus.Counter
	callErrors        *prometheus.CounterVec
	deliveredBatches  prometheus.Counter
	deliveredMessages prometheus.Counter
	watermarkAdvances prometheus.Counter
	continuousQueries prometheus.Gauge
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "received_total",
			Help:      "Push notifications received, by type id.",
		}, []string{"type"}),
		pushDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "dropped_total",
			Help:      "Push notifications dropped without re-executing a query, by reason.",
		}, []string{"reason"}),
		reexecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "reexecutions_total",
			Help:      "Continuous queries re-executed after a push notification.",
		}),
		callErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_errors_total",
			Help:      "Failed backend calls, by operation.",
		}, []string{"op"}),
		deliveredBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "delivered_batches_total",
			Help:      "Non-empty message batches handed to topic handlers.",
		}),
		deliveredMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "delivered_messages_total",
			Help:      "Messages handed to topic handlers.",
		}),
		watermarkAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "watermark_advances_total",
			Help:      "Times a topic watermark moved forward.",
		}),
		continuousQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "continuous",
			Help:      "Continuous queries currently registered.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.pushReceived,
			m.pushDropped,
			m.reexecutions,
			m.callErrors,
			m.deliveredBatches,
			m.deliveredMessages,
			m.watermarkAdvances,
			m.continuousQueries,
		)
	}
	return m
}

func (m *Metrics) PushReceived(typeID string) {
	if m == nil {
		return
	}
	m.pushReceived.WithLabelValues(typeID).Inc()
}

func (m *Metrics) PushDropped(reason string) {
	if m == nil {
		return
	}
	m.pushDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reexecuted() {
	if m == nil {
		return
	}
	m.reexecutions.Inc()
}

func (m *Metrics) CallFailed(op string) {
	if m == nil {
		return
	}
	m.callErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Delivered(messages int) {
	if m == nil {
		return
	}
	m.deliveredBatches.Inc()
	m.deliveredMessages.Add(float64(messages))
}

func (m *Metrics) WatermarkAdvanced() {
	if m == nil {
		return
	}
	m.watermarkAdvances.Inc()
}

func (m *Metrics) SetContinuousQueries(n int) {
	if m == nil {
		return
	}
	m.continuousQueries.Set(float64(n))
}
