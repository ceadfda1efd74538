package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/validator"
)

func TestObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, func() []float64 { return []float64{0, 0.25, 0.5} })

	c.ObserveStep(validator.StepReport{
		Step:     4,
		Block:    120,
		Duration: 30 * time.Millisecond,
		Changes:  topology.ChangeSet{ReplacedUIDs: []int{1, 2}, Grew: true, NewSize: 3},
	})
	c.ObserveStep(validator.StepReport{Err: errors.New("evaluate")})

	if got := testutil.ToFloat64(c.steps.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok steps = %v, want 1", got)
	}

	if got := testutil.ToFloat64(c.steps.WithLabelValues("error")); got != 1 {
		t.Errorf("error steps = %v, want 1", got)
	}

	if got := testutil.ToFloat64(c.step); got != 4 {
		t.Errorf("step = %v, want 4", got)
	}

	if got := testutil.ToFloat64(c.replaced); got != 2 {
		t.Errorf("replaced = %v, want 2", got)
	}

	if got := testutil.ToFloat64(c.scoreSum); got != 0.75 {
		t.Errorf("score sum = %v, want 0.75", got)
	}

	if got := testutil.ToFloat64(c.scored); got != 2 {
		t.Errorf("nonzero = %v, want 2", got)
	}
}

func TestObserveSubmission(t *testing.T) {
	c := New(prometheus.NewRegistry(), nil)

	c.ObserveSubmission(nil)
	c.ObserveSubmission(errors.New("rejected"))
	c.ObserveSubmission(nil)

	if got := testutil.ToFloat64(c.submissions.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok submissions = %v, want 2", got)
	}
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, nil)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()

	New(reg, nil)
}
