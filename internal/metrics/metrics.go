// Package metrics exposes monitoring activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkmonitor"

// Tick results.
const (
	TickOK           = "ok"
	TickStale        = "stale"
	TickStorageError = "storage_error"
	TickInterrupted  = "interrupted"
)

type Recorder struct {
	reg           *prometheus.Registry
	connected     *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	ticks         *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder on its own registry, which also carries the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_connected",
			Help:      "1 while the target is connected, 0 otherwise.",
		}, []string{"target"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Connection state transitions by target and new state.",
		}, []string{"target", "to"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Monitoring cycles by target and outcome.",
		}, []string{"target", "result"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed persistence operations by operation.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_ms",
			Help:      "Latency of successful probes in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"target"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.connected, r.transitions, r.ticks, r.storageErrors, r.latency,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) Tick(target, result string) {
	r.ticks.WithLabelValues(target, result).Inc()
}

func (r *Recorder) Transition(target, to string) {
	r.transitions.WithLabelValues(target, to).Inc()
}

func (r *Recorder) SetConnected(target string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	r.connected.WithLabelValues(target).Set(v)
}

func (r *Recorder) StorageError(op string) {
	r.storageErrors.WithLabelValues(op).Inc()
}

func (r *Recorder) ProbeLatency(target string, ms float64) {
	r.latency.WithLabelValues(target).Observe(ms)
}
