// Package metrics exposes the worker's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters and histograms updated by the handlers.
type Metrics struct {
	handled      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	redeliveries *prometheus.CounterVec
	deadLetters  *prometheus.CounterVec
	tags         prometheus.Counter
	transitions  *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amenagements",
			Name:      "handler_total",
			Help:      "Messages handled per task type, handler and outcome.",
		}, []string{"task", "handler", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amenagements",
			Name:      "handler_duration_seconds",
			Help:      "Handler duration per task type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		redeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amenagements",
			Name:      "redeliveries_total",
			Help:      "Messages scheduled for delayed redelivery.",
		}, []string{"task"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amenagements",
			Name:      "dead_letters_total",
			Help:      "Messages routed to the dead-letter queue.",
		}, []string{"task"}),
		tags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amenagements",
			Name:      "cache_tags_invalidated_total",
			Help:      "Cache tags invalidated.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amenagements",
			Name:      "demande_transitions_total",
			Help:      "Logged demande transitions per target state.",
		}, []string{"etat"}),
	}
	reg.MustRegister(m.handled, m.duration, m.redeliveries, m.deadLetters, m.tags, m.transitions)
	return m
}

// ObserveHandler records one subscriber run.
func (m *Metrics) ObserveHandler(task, handler string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.handled.WithLabelValues(task, handler, outcome).Inc()
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

// Redelivered counts a scheduled redelivery.
func (m *Metrics) Redelivered(task string) {
	if m == nil {
		return
	}
	m.redeliveries.WithLabelValues(task).Inc()
}

// DeadLettered counts a message given up on.
func (m *Metrics) DeadLettered(task string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(task).Inc()
}

// TagsInvalidated counts invalidated cache tags.
func (m *Metrics) TagsInvalidated(n int) {
	if m == nil {
		return
	}
	m.tags.Add(float64(n))
}

// Transition counts a logged transition.
func (m *Metrics) Transition(etat string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(etat).Inc()
}
