// Package metrics exposes prometheus instrumentation for the reminder
// scheduler and push dispatcher.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registry *prometheus.Registry

	SweepsTotal      prometheus.Counter
	SweepDuration    prometheus.Histogram
	RemindersDue     prometheus.Counter
	PushSent         prometheus.Counter
	PushFailed       prometheus.Counter
	PushPruned       prometheus.Counter
	DedupeSuppressed prometheus.Counter
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a Metrics set on its own registry, so test instances do not
// collide with the process-wide one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_scheduler_sweeps_total",
			Help: "Number of reminder sweeps executed.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inrcare_scheduler_sweep_duration_seconds",
			Help:    "Wall time of one reminder sweep.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		RemindersDue: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_scheduler_reminders_due_total",
			Help: "Reminders found inside their lead-time window.",
		}),
		PushSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_push_sent_total",
			Help: "Push notifications accepted by a push service.",
		}),
		PushFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_push_failed_total",
			Help: "Push deliveries that failed, transient and permanent.",
		}),
		PushPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_push_subscriptions_pruned_total",
			Help: "Subscriptions deleted after a 404/410 from the push service.",
		}),
		DedupeSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "inrcare_scheduler_dedupe_suppressed_total",
			Help: "Due reminders suppressed by the once-per-day dedup window.",
		}),
	}
}

// Registry returns the underlying prometheus registry for the /metrics
// handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSweep records one completed sweep.
func (m *Metrics) ObserveSweep(d time.Duration) {
	m.SweepsTotal.Inc()
	m.SweepDuration.Observe(d.Seconds())
}

// RecordDispatch records the outcome of one SendToUser fanout.
func (m *Metrics) RecordDispatch(sent, failed int) {
	m.PushSent.Add(float64(sent))
	m.PushFailed.Add(float64(failed))
}
