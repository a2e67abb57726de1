package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchchat_ws_connections_active",
		Help: "Open WebSocket connections.",
	})

	RoomsJoined = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchchat_room_subscriptions_active",
		Help: "Room subscriptions currently held by WebSocket connections.",
	})

	MessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchchat_messages_published_total",
		Help: "Messages accepted from clients, stored and published to the broker.",
	})

	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchchat_messages_delivered_total",
		Help: "Messages forwarded from the broker to a WebSocket client.",
	})

	EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_events_rejected_total",
		Help: "Client events rejected by the server, by reason.",
	}, []string{"reason"})

	HistoryRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchchat_history_requests_total",
		Help: "History endpoint requests, by HTTP status code class.",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		RoomsJoined,
		MessagesPublished,
		MessagesDelivered,
		EventsRejected,
		HistoryRequests,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
