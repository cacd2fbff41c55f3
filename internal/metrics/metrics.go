package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

// Metrics holds the counters of one run. Each run uses its own registry
// and dumps it to a node-exporter textfile when it ends.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts *prometheus.CounterVec
	sites         *prometheus.CounterVec
	rules         *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates and registers the run metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vodrules_fetch_attempts_total",
				Help: "Fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		sites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vodrules_sites_total",
				Help: "Harvested sites by result",
			},
			[]string{"result"},
		),
		rules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vodrules_rules",
				Help: "Rules in the written rule file by kind",
			},
			[]string{"kind"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vodrules_run_duration_seconds",
			Help: "Duration of the last run in seconds",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vodrules_last_success_timestamp_seconds",
			Help: "Unix time of the last run that wrote the rule file",
		}),
	}

	m.registry.MustRegister(m.fetchAttempts, m.sites, m.rules, m.runDuration, m.lastSuccess)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReports counts attempts and sites of a harvest
func (m *Metrics) ObserveReports(reports []domain.SiteReport) {
	for _, r := range reports {
		m.fetchAttempts.WithLabelValues("ok").Add(float64(r.Attempts - r.Failures))
		m.fetchAttempts.WithLabelValues("failed").Add(float64(r.Failures))

		if r.Productive {
			m.sites.WithLabelValues("productive").Inc()
		} else {
			m.sites.WithLabelValues("unproductive").Inc()
		}
	}
}

// ObserveUnfinished counts sites the run deadline cut short
func (m *Metrics) ObserveUnfinished(n int) {
	if n > 0 {
		m.sites.WithLabelValues("unfinished").Add(float64(n))
	}
}

// ObserveRules records the size of the written rule set
func (m *Metrics) ObserveRules(rs domain.RuleSet, at time.Time) {
	m.rules.WithLabelValues("keyword").Set(float64(rs.Keywords.Len()))
	m.rules.WithLabelValues("suffix").Set(float64(rs.Suffixes.Len()))
	m.lastSuccess.Set(float64(at.Unix()))
}

// ObserveDuration records the run duration
func (m *Metrics) ObserveDuration(d time.Duration) {
	m.runDuration.Set(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format. The
// file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
