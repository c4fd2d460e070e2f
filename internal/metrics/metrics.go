// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's collectors on a private registry so tests can
// construct isolated instances.
type Metrics struct {
	reg *prometheus.Registry

	Connections    prometheus.Counter
	Joins          prometheus.Counter
	Leaves         prometheus.Counter
	SignalsRelayed prometheus.Counter
	SignalsDropped prometheus.Counter
	ChatMessages   prometheus.Counter
	OpenRooms      prometheus.Gauge
	ConnectedPeers prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_connections_total",
			Help: "WebSocket connections accepted.",
		}),
		Joins: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_room_joins_total",
			Help: "Successful join-room requests.",
		}),
		Leaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_room_leaves_total",
			Help: "Room departures, including transport disconnects.",
		}),
		SignalsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_signals_relayed_total",
			Help: "Signaling payloads delivered to their target.",
		}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_signals_dropped_total",
			Help: "Signaling payloads dropped because the target was not connected or its queue was full.",
		}),
		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "video_call_relay_chat_messages_total",
			Help: "Chat messages broadcast to rooms.",
		}),
		OpenRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "video_call_relay_open_rooms",
			Help: "Rooms with at least one member.",
		}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "video_call_relay_connected_participants",
			Help: "Currently connected participants.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
