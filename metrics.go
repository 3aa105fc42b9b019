package bridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics count transport activity per topic. A nil *Metrics disables
// counting, so the transport can call the helpers unconditionally.
type Metrics struct {
	Published       *prometheus.CounterVec
	Consumed        *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	DecodeFailures  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_published_total",
			Help: "Messages accepted by the broker, by topic.",
		}, []string{"topic"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_consumed_total",
			Help: "Messages decoded and recorded, by topic.",
		}, []string{"topic"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_handler_failures_total",
			Help: "Subscriber handler errors, by topic.",
		}, []string{"topic"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_decode_failures_total",
			Help: "Payloads that failed to decode, by topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.Published, m.Consumed, m.HandlerFailures, m.DecodeFailures)
	return m
}

func (m *Metrics) published(topic string) {
	if m != nil {
		m.Published.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) consumed(topic string) {
	if m != nil {
		m.Consumed.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) handlerFailed(topic string) {
	if m != nil {
		m.HandlerFailures.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) decodeFailed(topic string) {
	if m != nil {
		m.DecodeFailures.WithLabelValues(topic).Inc()
	}
}
