package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OpAcquire    = "acquire"
	OpRelease    = "release"
	OpWriteCheck = "write_check"

	OutcomeOK        = "ok"
	OutcomeConflict  = "conflict"
	OutcomeForbidden = "forbidden"
)

// Registry holds the service collectors. A private registry keeps tests from
// colliding on the global default one.
type Registry struct {
	reg            *prometheus.Registry
	httpRequests   *prometheus.CounterVec
	lockOperations *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docshare",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template and status code.",
		}, []string{"method", "route", "status"}),
		lockOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docshare",
			Name:      "lock_operations_total",
			Help:      "Document lock operations by kind and outcome.",
		}, []string{"op", "outcome"}),
	}
	reg.MustRegister(
		r.httpRequests,
		r.lockOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) ObserveRequest(method, route, status string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, status).Inc()
}

func (r *Registry) ObserveLock(op, outcome string) {
	if r == nil {
		return
	}
	r.lockOperations.WithLabelValues(op, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
