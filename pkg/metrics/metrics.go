// Package metrics defines the Prometheus metrics exposed by the SCIP client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scip_client"

// Metrics holds the collectors for one client instance. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	pending      prometheus.GaugeFunc
}

// PendingFunc reports the number of pending correlation entries.
type PendingFunc func() int

// New creates a Metrics instance on its own registry. pending may be nil.
func New(pending PendingFunc) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "JSON-RPC calls sent to gateways",
		}, []string{"method", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Time spent on the synchronous part of a JSON-RPC call",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_outcomes_total",
			Help:      "Settled operations by kind and result",
		}, []string{"operation", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_dispatches_total",
			Help:      "Inbound callbacks by ingress and whether a pending entry matched",
		}, []string{"ingress", "matched"}),
	}
	reg.MustRegister(m.calls, m.callDuration, m.outcomes, m.dispatches)

	if pending != nil {
		m.pending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_correlations",
			Help:      "Correlation entries awaiting a callback",
		}, func() float64 { return float64(pending()) })
		reg.MustRegister(m.pending)
	}
	return m
}

// ObserveCall records one JSON-RPC call and how long it took.
func (m *Metrics) ObserveCall(method string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.calls.WithLabelValues(method, status).Inc()
	m.callDuration.WithLabelValues(method).Observe(seconds)
}

// ObserveOutcome records how an operation settled, e.g. ("invoke", "timeout").
func (m *Metrics) ObserveOutcome(operation, result string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, result).Inc()
}

// ObserveDispatch records one inbound callback.
func (m *Metrics) ObserveDispatch(ingress string, matched bool) {
	if m == nil {
		return
	}
	label := "false"
	if matched {
		label = "true"
	}
	m.dispatches.WithLabelValues(ingress, label).Inc()
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
