package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MetricNamespace = "ruledefs"

// Rejection reasons used as the "reason" label
const (
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
	ReasonCondition = "condition"
)

// Metrics holds the collectors of the rule catalog. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	rulesImported     *prometheus.CounterVec
	documentsRejected *prometheus.CounterVec
	ruleSets          prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rulesImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Name:      "rules_imported_total",
			Help:      "Number of rule definitions imported into a rule set",
		}, []string{"rule_set"}),
		documentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Name:      "documents_rejected_total",
			Help:      "Number of rule documents rejected, by reason",
		}, []string{"reason"}),
		ruleSets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricNamespace,
			Name:      "rule_sets",
			Help:      "Number of rule sets currently loaded",
		}),
	}

	m.registry.MustRegister(
		m.rulesImported,
		m.documentsRejected,
		m.ruleSets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RulesImported adds n imported rules to ruleSet
func (m *Metrics) RulesImported(ruleSet string, n int) {
	if m == nil {
		return
	}
	m.rulesImported.WithLabelValues(ruleSet).Add(float64(n))
}

// DocumentRejected counts one rejected document
func (m *Metrics) DocumentRejected(reason string) {
	if m == nil {
		return
	}
	m.documentsRejected.WithLabelValues(reason).Inc()
}

// SetRuleSets records the number of loaded rule sets
func (m *Metrics) SetRuleSets(n int) {
	if m == nil {
		return
	}
	m.ruleSets.Set(float64(n))
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
