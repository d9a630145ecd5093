// Package metrics exposes Prometheus instrumentation for the
// admission engine and the /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveSlots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "que_room_active_slots",
		Help: "Connections currently holding a slot, per room.",
	}, []string{"room"})

	WaitingClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "que_room_waiting_clients",
		Help: "Connections queued for a slot, per room.",
	}, []string{"room"})

	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "que_joins_total",
		Help: "join_room events that admitted or queued a new client.",
	}, []string{"room"})

	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "que_promotions_total",
		Help: "Waiters promoted to an active slot.",
	}, []string{"room"})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
