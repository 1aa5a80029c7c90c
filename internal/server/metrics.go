package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry           *prometheus.Registry
	verificationsTotal *prometheus.CounterVec
	escrowsTotal       *prometheus.CounterVec
	completionsTotal   *prometheus.CounterVec
	replaysTotal       *prometheus.CounterVec
}

func newMetricsRegistry() *metricsRegistry {
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreex_verifications_total",
		Help: "Verification messages processed",
	}, []string{"status"})

	escrows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreex_escrows_created_total",
		Help: "Escrow creation attempts",
	}, []string{"status"})

	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreex_milestone_completions_total",
		Help: "Milestone completion checks by outcome",
	}, []string{"result"})

	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreex_idempotent_replays_total",
		Help: "Responses served from the idempotency store",
	}, []string{"route"})

	r := prometheus.NewRegistry()
	r.MustRegister(verifications, escrows, completions, replays)

	return &metricsRegistry{
		registry:           r,
		verificationsTotal: verifications,
		escrowsTotal:       escrows,
		completionsTotal:   completions,
		replaysTotal:       replays,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incVerification(status string) {
	m.verificationsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incEscrow(status string) {
	m.escrowsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incCompletion(result string) {
	m.completionsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incReplay(route string) {
	m.replaysTotal.WithLabelValues(route).Inc()
}
