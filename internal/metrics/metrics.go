package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages persisted and fanned out, by scope and kind",
	}, []string{"scope", "kind"})
	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_sent_total",
		Help: "Push notifications accepted by the gateway",
	})
	NotificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_failed_total",
		Help: "Push notifications the gateway rejected",
	})
	NotificationsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_skipped_total",
		Help: "Push notifications skipped for lack of a token",
	})
)

func Init() {
	prometheus.MustRegister(
		ActiveConnections,
		MessagesSent,
		NotificationsSent,
		NotificationsFailed,
		NotificationsSkipped,
	)
}

// Serve exposes the prometheus handler on its own listener.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
