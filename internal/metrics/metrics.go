// Package metrics holds the Prometheus collectors of the prover API. Every
// process (and every test) gets its own registry so collectors never clash.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prover_api"

type Metrics struct {
	registry *prometheus.Registry

	// Submissions counts POST /prove outcomes: "accepted", "cached" or a
	// rejection code.
	Submissions *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	Timeouts      prometheus.Counter

	// DetachedFinished counts computations that returned after their job had
	// already timed out.
	DetachedFinished prometheus.Counter

	ProofDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Proof submissions by outcome",
		}, []string{"outcome"}),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Submissions answered from the proof cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Submissions not found in the proof cache",
		}),

		JobsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs that produced a proof",
		}),
		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Jobs that failed, by error code",
		}, []string{"code"}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_timeouts_total",
			Help:      "Proof computations that exceeded the configured timeout",
		}),
		DetachedFinished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detached_finished_total",
			Help:      "Timed out computations that eventually returned",
		}),

		ProofDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_duration_seconds",
			Help:      "Wall time of successful proof computations",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

// RegisterGauge exposes fn as a gauge sampled at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func (m *Metrics) ObserveProof(d time.Duration) {
	m.ProofDuration.Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
