package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles the Prometheus metrics exported at /metrics,
// grounded on the teacher's use of client_golang for connection and
// message counters.
type Collectors struct {
	ConnectionsTotal      prometheus.Counter
	ConnectionsCurrent    prometheus.Gauge
	MessagesSentTotal     prometheus.Counter
	MessagesReceivedTotal prometheus.Counter
	ChannelsCurrent       prometheus.Gauge
	SlowClientsDropped    prometheus.Counter
	BroadcastDuration     prometheus.Histogram
}

// NewCollectors registers a fresh set of collectors against reg. Passing a
// dedicated *prometheus.Registry (rather than the global default) keeps
// repeated test construction free of "duplicate metrics collector
// registration" panics.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "courier_connections_total",
			Help: "Total WebSocket connections accepted since start.",
		}),
		ConnectionsCurrent: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "courier_connections_current",
			Help: "Currently live WebSocket connections.",
		}),
		MessagesSentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "courier_messages_sent_total",
			Help: "Total messages successfully delivered to subscribers.",
		}),
		MessagesReceivedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "courier_messages_received_total",
			Help: "Total inbound frames received from subscribers.",
		}),
		ChannelsCurrent: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "courier_channels_current",
			Help: "Currently registered channels.",
		}),
		SlowClientsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "courier_slow_clients_dropped_total",
			Help: "Subscribers dropped for failing a heartbeat send.",
		}),
		BroadcastDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_broadcast_duration_seconds",
			Help:    "Wall-clock time to fan a single publish out to all subscribers.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return c
}
