package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects core counters for a resolution pass.
type Metrics struct {
	batches        *prometheus.CounterVec
	builds         *prometheus.CounterVec
	summaryFetches *prometheus.CounterVec
	triggered      *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trystat_rpc_batches_total",
		Help: "Total Buildbucket batch calls by outcome.",
	}, []string{"outcome"})
	builds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trystat_builds_resolved_total",
		Help: "Total builds resolved by final status code.",
	}, []string{"status"})
	summaryFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trystat_summary_fetches_total",
		Help: "Total swarming summary fetches by result.",
	}, []string{"result"})
	triggered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trystat_builds_triggered_total",
		Help: "Total try builds triggered by builder.",
	}, []string{"builder"})

	batches = registerCounterVec(registerer, batches)
	builds = registerCounterVec(registerer, builds)
	summaryFetches = registerCounterVec(registerer, summaryFetches)
	triggered = registerCounterVec(registerer, triggered)

	return &Metrics{
		batches:        batches,
		builds:         builds,
		summaryFetches: summaryFetches,
		triggered:      triggered,
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncBatch(outcome string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncBuildResolved(status string) {
	if m == nil || m.builds == nil {
		return
	}
	m.builds.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSummaryFetch(result string) {
	if m == nil || m.summaryFetches == nil {
		return
	}
	m.summaryFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTriggered(builder string) {
	if m == nil || m.triggered == nil {
		return
	}
	m.triggered.WithLabelValues(builder).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
