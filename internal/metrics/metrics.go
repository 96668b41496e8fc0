package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "umsg"

// Metrics holds the client's collectors. A nil *Metrics is valid and
// records nothing, so components can take it unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	connected         prometheus.Gauge
	reconnectAttempts prometheus.Counter
	transportErrors   prometheus.Counter
	pendingDepth      prometheus.Gauge
	incomingDepth     prometheus.Gauge
	messagesSent      prometheus.Counter
	messagesQueued    *prometheus.CounterVec
	messagesReceived  prometheus.Counter
	messagesDrained   prometheus.Counter
	hooksDispatched   *prometheus.CounterVec
	archiveRows       prometheus.Counter
	archiveErrors     prometheus.Counter
}

// New creates the collectors and registers them, with Go runtime and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "connected",
			Help:      "1 while the server connection is open",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of redial attempts",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "errors_total",
			Help:      "Total transport errors reported",
		}),
		pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_depth",
			Help:      "Outgoing messages waiting for a connection",
		}),
		incomingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "incoming_depth",
			Help:      "Received envelopes waiting to be published",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Messages handed to the transport",
		}),
		messagesQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "queued_total",
			Help:      "Messages placed on the pending queue, by reason",
		}, []string{"reason"}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Envelopes received from the transport",
		}),
		messagesDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "drained_total",
			Help:      "Envelopes published from the incoming queue",
		}),
		hooksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "dispatched_total",
			Help:      "Messages dispatched to hooks, by type",
		}, []string{"type"}),
		archiveRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_total",
			Help:      "Envelopes written to the archive",
		}),
		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Failed archive batch inserts",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connected,
		m.reconnectAttempts,
		m.transportErrors,
		m.pendingDepth,
		m.incomingDepth,
		m.messagesSent,
		m.messagesQueued,
		m.messagesReceived,
		m.messagesDrained,
		m.hooksDispatched,
		m.archiveRows,
		m.archiveErrors,
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) ReconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) TransportError() {
	if m != nil {
		m.transportErrors.Inc()
	}
}

func (m *Metrics) SetQueueDepths(pending, incoming int) {
	if m == nil {
		return
	}
	m.pendingDepth.Set(float64(pending))
	m.incomingDepth.Set(float64(incoming))
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) MessageQueued(reason string) {
	if m != nil {
		m.messagesQueued.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) MessageDrained() {
	if m != nil {
		m.messagesDrained.Inc()
	}
}

func (m *Metrics) HookDispatched(msgType string) {
	if m != nil {
		m.hooksDispatched.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) ArchiveWritten(n int) {
	if m != nil {
		m.archiveRows.Add(float64(n))
	}
}

func (m *Metrics) ArchiveFailed() {
	if m != nil {
		m.archiveErrors.Inc()
	}
}
