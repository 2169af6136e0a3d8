package mqtt

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "homie"
	subsystem = "mqtt"
)

// Metrics are the adapter's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	connected       prometheus.Gauge
	connectAttempts *prometheus.CounterVec
	published       *prometheus.CounterVec
	received        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected",
			Help:      "1 while the broker connection is up.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "published_total",
			Help:      "Publishes by result.",
		}, []string{"result"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "received_total",
			Help:      "Inbound messages.",
		}),
	}
	reg.MustRegister(m.connected, m.connectAttempts, m.published, m.received)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) connectAttempt(ok bool) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) publish(ok bool) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) receive() {
	if m == nil {
		return
	}
	m.received.Inc()
}
