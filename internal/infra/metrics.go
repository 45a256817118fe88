package infra

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const metricsNamespace = "webmon"

// PrometheusMetrics implements domain.Metrics with Prometheus counters.
type PrometheusMetrics struct {
	ticks    *prometheus.CounterVec
	blocks   *prometheus.CounterVec
	sessions *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the engine counters.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks by outcome (counted or skipped).",
		}, []string{"outcome"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_total",
			Help:      "Blocked navigations by the tier that succeeded, or failed.",
		}, []string{"tier"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_archived_total",
			Help:      "Archived sessions by completion.",
		}, []string{"completed"}),
	}
	reg.MustRegister(m.ticks, m.blocks, m.sessions)
	return m
}

func (m *PrometheusMetrics) TickCounted() {
	m.ticks.WithLabelValues("counted").Inc()
}

func (m *PrometheusMetrics) TickSkipped() {
	m.ticks.WithLabelValues("skipped").Inc()
}

func (m *PrometheusMetrics) BlockDelivered(tier domain.Tier) {
	m.blocks.WithLabelValues(tier.String()).Inc()
}

func (m *PrometheusMetrics) BlockFailed() {
	m.blocks.WithLabelValues("failed").Inc()
}

func (m *PrometheusMetrics) SessionArchived(completed bool) {
	label := "false"
	if completed {
		label = "true"
	}
	m.sessions.WithLabelValues(label).Inc()
}

// Ensure PrometheusMetrics implements domain.Metrics.
var _ domain.Metrics = (*PrometheusMetrics)(nil)
