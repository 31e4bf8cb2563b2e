package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/browsermesh/protocol"
)

// Message handling outcomes used as the label of messagesTotal.
const (
	outcomeForwarded = "forwarded"
	outcomeLocal     = "local"
	outcomeError     = "error"
)

type metrics struct {
	connections   *prometheus.GaugeVec
	messagesTotal *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "browsermesh",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Live connections by assigned role.",
		}, []string{"role"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsermesh",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Handled inbound envelopes by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.messagesTotal)
	}
	return m
}

func roleLabel(role protocol.Role) string {
	if role == protocol.RoleUnassigned {
		return "unassigned"
	}
	return string(role)
}

func (m *metrics) connOpened(role protocol.Role) { m.connections.WithLabelValues(roleLabel(role)).Inc() }

func (m *metrics) connClosed(role protocol.Role) { m.connections.WithLabelValues(roleLabel(role)).Dec() }

func (m *metrics) message(outcome string) { m.messagesTotal.WithLabelValues(outcome).Inc() }

func (m *metrics) roleChanged(from, to protocol.Role) {
	m.connClosed(from)
	m.connOpened(to)
}
