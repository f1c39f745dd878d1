// Package metrics exports goal and lifecycle counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/duet/internal/goals"
	"github.com/roach88/duet/internal/procedure"
	"github.com/roach88/duet/internal/topology"
)

const namespace = "duet"

// Collector implements goals.Observer and topology.Listener.
type Collector struct {
	goals.NopObserver

	activations   *prometheus.CounterVec
	queued        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	completions   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	pending       prometheus.Gauge
	duration      *prometheus.HistogramVec
	transitions   *prometheus.CounterVec

	now     func() time.Time
	started map[string]time.Time
	waiting map[string]bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithNow replaces time.Now for duration measurements.
func WithNow(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	c := &Collector{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_activations_total",
			Help:      "Goals admitted and started.",
		}, []string{"goal"}),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_queued_total",
			Help:      "Goal requests deferred to the pending queue.",
		}, []string{"goal"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_dropped_total",
			Help:      "Goal requests dropped because the goal was already active or queued.",
		}, []string{"goal"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_completions_total",
			Help:      "Goal terminal results.",
		}, []string{"goal", "result"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_cancellations_total",
			Help:      "Goals cleared by a confirmed cancellation.",
		}, []string{"goal"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goals_pending",
			Help:      "Goal requests waiting in the pending queue.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "goal_duration_seconds",
			Help:      "Time from goal start to its terminal outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"goal"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_transitions_total",
			Help:      "Lifecycle state transitions.",
		}, []string{"from", "to"}),
		now:     time.Now,
		started: map[string]time.Time{},
		waiting: map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, m := range []prometheus.Collector{
		c.activations, c.queued, c.dropped, c.completions,
		c.cancellations, c.pending, c.duration, c.transitions,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) GoalActivated(a goals.Activation) {
	c.activations.WithLabelValues(a.Name).Inc()
	if c.waiting[a.ID] {
		delete(c.waiting, a.ID)
		c.pending.Dec()
	}
	c.started[a.ID] = c.now()
}

func (c *Collector) GoalQueued(a goals.Activation, _ string) {
	c.queued.WithLabelValues(a.Name).Inc()
	c.waiting[a.ID] = true
	c.pending.Inc()
}

func (c *Collector) GoalDropped(a goals.Activation, _ string) {
	c.dropped.WithLabelValues(a.Name).Inc()
}

func (c *Collector) GoalCompleted(a goals.Activation, r procedure.Result) {
	c.completions.WithLabelValues(a.Name, r.String()).Inc()
	c.observeDuration(a)
}

func (c *Collector) GoalCancelled(a goals.Activation) {
	c.cancellations.WithLabelValues(a.Name).Inc()
	c.observeDuration(a)
}

func (c *Collector) observeDuration(a goals.Activation) {
	if t, ok := c.started[a.ID]; ok {
		c.duration.WithLabelValues(a.Name).Observe(c.now().Sub(t).Seconds())
		delete(c.started, a.ID)
	}
}

// StateChanged implements topology.Listener.
func (c *Collector) StateChanged(from, to topology.State) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}
