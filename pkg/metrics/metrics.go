package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_rooms_created_total",
		Help: "Rooms created since process start.",
	})
	RoomsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_rooms_deleted_total",
		Help: "Rooms removed after their last member left.",
	})
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trivia_ws_events_total",
		Help: "Inbound websocket events by name.",
	}, []string{"event"})
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_ws_broadcast_frames_total",
		Help: "Frames written by room fanout.",
	})
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trivia_ws_open_connections",
		Help: "Currently open websocket connections.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
