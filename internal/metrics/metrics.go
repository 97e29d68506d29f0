// Package metrics exposes the gateway's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Requests counts routed HTTP requests by action and outcome (success, error, not_ready).
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonosgw_requests_total",
			Help: "Routed action requests by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// Notifications counts forwarded domain events by kind and sink (socket, webhook).
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonosgw_notifications_total",
			Help: "Domain notifications forwarded by kind and sink.",
		},
		[]string{"kind", "sink"},
	)

	WebhookFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sonosgw_webhook_failures_total",
			Help: "Webhook deliveries that failed.",
		},
	)

	SocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonosgw_socket_clients",
			Help: "Currently connected push-socket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(Requests, Notifications, WebhookFailures, SocketClients)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
