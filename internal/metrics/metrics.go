package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Connection metrics
	ClientConnected()
	ClientDisconnected()

	// Room metrics
	RoomJoined(room string)

	// Call metrics
	CallStarted()
	CallEnded()

	// Relay metrics
	MessageReceived(messageType string, sizeBytes int)
	MessageSent(messageType string, sizeBytes int)
	MessageDropped(messageType, reason string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	activeConnections prometheus.Gauge
	connections       prometheus.Counter
	disconnects       prometheus.Counter

	roomJoins *prometheus.CounterVec

	callsStarted prometheus.Counter
	callsEnded   prometheus.Counter

	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new PrometheusCollector
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of live WebSocket connections",
		}),

		connections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total number of accepted WebSocket connections",
		}),

		disconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_disconnects_total",
			Help: "Total number of WebSocket disconnections",
		}),

		roomJoins: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_room_joins_total",
				Help: "Total number of room join operations",
			},
			[]string{"room"},
		),

		callsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_calls_started_total",
			Help: "Total number of call invites forwarded",
		}),

		callsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_calls_ended_total",
			Help: "Total number of call-ended notices delivered",
		}),

		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_received_total",
				Help: "Total number of messages received from clients",
			},
			[]string{"message_type"},
		),

		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_sent_total",
				Help: "Total number of messages pushed to clients",
			},
			[]string{"message_type"},
		),

		messagesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_dropped_total",
				Help: "Total number of messages dropped by the relay",
			},
			[]string{"message_type", "reason"},
		),

		messageSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_message_size_bytes",
				Help:    "Size of relayed messages in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B to 32KB
			},
			[]string{"message_type", "direction"},
		),
	}
}

// ClientConnected records an accepted connection
func (c *PrometheusCollector) ClientConnected() {
	c.connections.Inc()
	c.activeConnections.Inc()
}

// ClientDisconnected records a disconnection
func (c *PrometheusCollector) ClientDisconnected() {
	c.disconnects.Inc()
	c.activeConnections.Dec()
}

// RoomJoined records a room join
func (c *PrometheusCollector) RoomJoined(room string) {
	c.roomJoins.WithLabelValues(room).Inc()
}

// CallStarted records a forwarded call invite
func (c *PrometheusCollector) CallStarted() {
	c.callsStarted.Inc()
}

// CallEnded records a delivered call-ended notice
func (c *PrometheusCollector) CallEnded() {
	c.callsEnded.Inc()
}

// MessageReceived records a message received from a client
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "received").Observe(float64(sizeBytes))
}

// MessageSent records a message pushed to a client
func (c *PrometheusCollector) MessageSent(messageType string, sizeBytes int) {
	c.messagesSent.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "sent").Observe(float64(sizeBytes))
}

// MessageDropped records a dropped message
func (c *PrometheusCollector) MessageDropped(messageType, reason string) {
	c.messagesDropped.WithLabelValues(messageType, reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.Handler()
}
