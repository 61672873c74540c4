package metrics

import "github.com/prometheus/client_golang/prometheus"

// PublisherMetrics tracks outbox dispatch results per topic.
type PublisherMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dead      *prometheus.CounterVec
}

func NewPublisherMetrics(reg prometheus.Registerer) *PublisherMetrics {
	if reg == nil {
		return &PublisherMetrics{}
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "outbox", Name: name, Help: help}
	}
	m := &PublisherMetrics{
		published: prometheus.NewCounterVec(opts("published_total", "Outbox events delivered to the broker."), []string{"topic"}),
		failed:    prometheus.NewCounterVec(opts("publish_failures_total", "Retryable outbox publish failures."), []string{"topic"}),
		dead:      prometheus.NewCounterVec(opts("dead_lettered_total", "Outbox events moved to the DLQ."), []string{"reason"}),
	}
	reg.MustRegister(m.published, m.failed, m.dead)
	return m
}

func (m *PublisherMetrics) Published(topic string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *PublisherMetrics) Failed(topic string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *PublisherMetrics) DeadLettered(reason string) {
	if m == nil || m.dead == nil {
		return
	}
	m.dead.WithLabelValues(normalizeLabel(reason)).Inc()
}
