// Package telemetry exports run-loop and score metrics to Prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/floats"

	"Scorekeeper/internal/validator"
)

// Namespace prefixes every metric.
const Namespace = "scorekeeper"

// Collector implements validator.Observer and validator.SubmissionObserver.
type Collector struct {
	steps        *prometheus.CounterVec
	stepDuration prometheus.Histogram
	step         prometheus.Gauge
	block        prometheus.Gauge
	replaced     prometheus.Counter
	growth       prometheus.Counter
	submissions  *prometheus.CounterVec
	size         prometheus.Gauge
	scoreSum     prometheus.Gauge
	scoreMax     prometheus.Gauge
	scored       prometheus.Gauge

	scores func() []float64
}

// New registers the collectors with reg. scores supplies the score vector
// sampled after each step; it may be nil.
func New(reg prometheus.Registerer, scores func() []float64) *Collector {
	f := promauto.With(reg)

	return &Collector{
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "loop", Name: "steps_total",
			Help: "Completed steps by result.",
		}, []string{"result"}),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "loop", Name: "step_duration_seconds",
			Help:    "Wall time of one step.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		step: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "loop", Name: "step",
			Help: "Current step counter.",
		}),
		block: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "topology", Name: "block",
			Help: "Block of the last applied topology snapshot.",
		}),
		replaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "topology", Name: "replaced_uids_total",
			Help: "Uids whose occupant changed.",
		}),
		growth: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "topology", Name: "growth_total",
			Help: "Resyncs that grew the topology.",
		}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "ledger", Name: "submissions_total",
			Help: "Weight submissions by result.",
		}, []string{"result"}),
		size: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "scores", Name: "size",
			Help: "Length of the score vector.",
		}),
		scoreSum: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "scores", Name: "sum",
			Help: "Sum of all scores.",
		}),
		scoreMax: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "scores", Name: "max",
			Help: "Largest score.",
		}),
		scored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "scores", Name: "nonzero",
			Help: "Uids with a non-zero score.",
		}),
		scores: scores,
	}
}

// ObserveStep records one step report.
func (c *Collector) ObserveStep(r validator.StepReport) {
	c.stepDuration.Observe(r.Duration.Seconds())

	if r.Err != nil {
		c.steps.WithLabelValues("error").Inc()
		return
	}

	c.steps.WithLabelValues("ok").Inc()
	c.step.Set(float64(r.Step))
	c.block.Set(float64(r.Block))
	c.replaced.Add(float64(len(r.Changes.ReplacedUIDs)))

	if r.Changes.Grew {
		c.growth.Inc()
	}

	if c.scores != nil {
		c.observeScores(c.scores())
	}
}

// ObserveSubmission records the outcome of a ledger submission.
func (c *Collector) ObserveSubmission(err error) {
	if err != nil {
		c.submissions.WithLabelValues("error").Inc()
		return
	}

	c.submissions.WithLabelValues("ok").Inc()
}

func (c *Collector) observeScores(s []float64) {
	c.size.Set(float64(len(s)))

	if len(s) == 0 {
		c.scoreSum.Set(0)
		c.scoreMax.Set(0)
		c.scored.Set(0)
		return
	}

	nonzero := 0
	for _, v := range s {
		if v != 0 {
			nonzero++
		}
	}

	c.scoreSum.Set(floats.Sum(s))
	c.scoreMax.Set(floats.Max(s))
	c.scored.Set(float64(nonzero))
}
