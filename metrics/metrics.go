// Package metrics exposes Prometheus counters for the generation pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the generation pipeline.
type Metrics interface {
	IncAdmitted(identityKind string)
	IncRejected(identityKind string)
	IncValidationFailed()
	IncEnqueued()
	IncCompleted(provider, status string)
	IncTagging(status string)
	IncOrphansSwept(count int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncAdmitted(string)          {}
func (Noop) IncRejected(string)          {}
func (Noop) IncValidationFailed()        {}
func (Noop) IncEnqueued()                {}
func (Noop) IncCompleted(string, string) {}
func (Noop) IncTagging(string)           {}
func (Noop) IncOrphansSwept(int)         {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	admitted         *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	validationFailed prometheus.Counter
	enqueued         prometheus.Counter
	completed        *prometheus.CounterVec
	tagging          *prometheus.CounterVec
	orphansSwept     prometheus.Counter
	once             sync.Once
}

// NewProm creates and registers pipeline counters under the given namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_admitted_total",
			Help:      "Requests admitted past the rate limiter by identity kind",
		}, []string{"identity"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests rejected by the rate limiter by identity kind",
		}, []string{"identity"}),
		validationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_invalid_total",
			Help:      "Requests rejected by input validation",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Generation jobs accepted into the work queue",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Generation jobs completed by provider and status",
		}, []string{"provider", "status"}),
		tagging: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tagging_total",
			Help:      "Tagging attempts by status",
		}, []string{"status"}),
		orphansSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_blobs_swept_total",
			Help:      "Orphaned image blobs removed by the janitor",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.admitted, p.rejected, p.validationFailed,
			p.enqueued, p.completed, p.tagging, p.orphansSwept,
		)
	})
}

func (p *Prom) IncAdmitted(identityKind string) { p.admitted.WithLabelValues(identityKind).Inc() }
func (p *Prom) IncRejected(identityKind string) { p.rejected.WithLabelValues(identityKind).Inc() }
func (p *Prom) IncValidationFailed()            { p.validationFailed.Inc() }
func (p *Prom) IncEnqueued()                    { p.enqueued.Inc() }
func (p *Prom) IncCompleted(provider, status string) {
	p.completed.WithLabelValues(provider, status).Inc()
}
func (p *Prom) IncTagging(status string) { p.tagging.WithLabelValues(status).Inc() }
func (p *Prom) IncOrphansSwept(count int) {
	p.orphansSwept.Add(float64(count))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
