package pipeline

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderflow/internal"
)

// Metrics counts routing outcomes. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	linesRouted   *prometheus.CounterVec
	rulesApplied  *prometheus.CounterVec
	batchDuration prometheus.Histogram
	documents     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		linesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_lines_routed_total",
			Help: "Order lines routed, by final lane.",
		}, []string{"lane"}),
		rulesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_rule_applied_total",
			Help: "Policy rules and default markers applied to lines.",
		}, []string{"rule_id"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderflow_batch_duration_seconds",
			Help:    "Wall time to route one batch.",
			Buckets: prometheus.DefBuckets,
		}),
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_documents_total",
			Help: "Inbox documents handled, by resulting status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) observeLine(l internal.RoutedOrderLine) {
	if m == nil {
		return
	}
	m.linesRouted.WithLabelValues(string(l.Lane)).Inc()
	for _, id := range l.AppliedRuleIDs {
		m.rulesApplied.WithLabelValues(id).Inc()
	}
}

func (m *Metrics) observeBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) observeDocument(status internal.DocumentStatus) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
