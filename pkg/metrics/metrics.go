package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveRooms tracks watch-party rooms currently alive.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_active_rooms",
		Help: "Number of active watch-party rooms.",
	})

	// ConnectedClients tracks connections that completed the handshake.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_connected_clients",
		Help: "Number of connected clients bound to a room.",
	})

	// EventsDelivered counts frames fanned out to recipients, by event.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_events_delivered_total",
		Help: "Events delivered to clients, per event name.",
	}, []string{"event"})

	// HandshakesRejected counts connections refused during the handshake.
	HandshakesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_handshakes_rejected_total",
		Help: "Handshakes rejected with an error event.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
