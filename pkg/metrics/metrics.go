// Package metrics exports worker pool and queue events to Prometheus
package metrics

import (
	"net/http"

	"github.com/jzx17/wtpool/pkg/queue"
	"github.com/jzx17/wtpool/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wtp"

// Observer implements types.Observer on Prometheus metrics. One Observer can
// serve several pools, each pool is a label value.
type Observer struct {
	registerer prometheus.Registerer

	WorkersStarted      *prometheus.CounterVec
	WorkersStopped      *prometheus.CounterVec
	WorkersCancelled    *prometheus.CounterVec
	WorkFailures        *prometheus.CounterVec
	ShutdownEscalations *prometheus.CounterVec
	Workers             *prometheus.GaugeVec
	State               *prometheus.GaugeVec
}

var _ types.Observer = (*Observer)(nil)

// NewObserver creates the pool metrics on registerer; nil uses the default registerer
func NewObserver(registerer prometheus.Registerer) *Observer {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Observer{
		registerer: registerer,
		WorkersStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_started_total",
				Help:      "Total number of worker goroutines started",
			},
			[]string{"pool"},
		),
		WorkersStopped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_stopped_total",
				Help:      "Total number of worker goroutines that terminated",
			},
			[]string{"pool"},
		),
		WorkersCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workers_cancelled_total",
				Help:      "Total number of workers forcibly cancelled",
			},
			[]string{"pool"},
		),
		WorkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_failed_total",
				Help:      "Total number of DoWork calls that returned an error or panicked",
			},
			[]string{"pool"},
		),
		ShutdownEscalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shutdown_escalations_total",
				Help:      "Total number of graceful shutdowns that timed out and escalated",
			},
			[]string{"pool"},
		),
		Workers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers",
				Help:      "Number of occupied worker slots",
			},
			[]string{"pool"},
		),
		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Pool state: 0 running, 1 shutting down gracefully, 2 shutting down immediately",
			},
			[]string{"pool"},
		),
	}
}

// WorkerStarted implements types.Observer
func (o *Observer) WorkerStarted(label string) {
	o.WorkersStarted.WithLabelValues(label).Inc()
	o.Workers.WithLabelValues(label).Inc()
}

// WorkerStopped implements types.Observer
func (o *Observer) WorkerStopped(label string) {
	o.WorkersStopped.WithLabelValues(label).Inc()
	o.Workers.WithLabelValues(label).Dec()
}

// WorkerCancelled implements types.Observer
func (o *Observer) WorkerCancelled(label string) {
	o.WorkersCancelled.WithLabelValues(label).Inc()
}

// WorkFailed implements types.Observer
func (o *Observer) WorkFailed(label string) {
	o.WorkFailures.WithLabelValues(label).Inc()
}

// StateChanged implements types.Observer
func (o *Observer) StateChanged(label string, state types.PoolState) {
	o.State.WithLabelValues(label).Set(float64(state))
	if state == types.StateRunning {
		// a fresh pool exports its worker gauge before the first worker starts
		o.Workers.WithLabelValues(label)
	}
}

// ShutdownEscalated implements types.Observer
func (o *Observer) ShutdownEscalated(label string) {
	o.ShutdownEscalations.WithLabelValues(label).Inc()
}

// WatchQueue exports the counters of a queue under the given name. stats is
// called on every scrape.
func (o *Observer) WatchQueue(name string, stats func() queue.Stats) error {
	labels := prometheus.Labels{"queue": name}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "pending",
			Help:        "Number of items waiting in the queue",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Pending) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "enqueued_total",
			Help:        "Total number of items enqueued",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Enqueued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "processed_total",
			Help:        "Total number of items consumed successfully",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Processed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "failed_total",
			Help:        "Total number of items whose consumer failed",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Failed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "requeued_total",
			Help:        "Total number of in-flight items put back by cancelled workers",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Requeued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "retried_total",
			Help:        "Total number of consumer retries",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Retried) }),
	}

	for _, c := range collectors {
		if err := o.registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the metrics of gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
