package integration

import (
	"testing"
	"time"

	"Scorekeeper/internal/validator"
	"Scorekeeper/internal/weights"
)

func fastConfig() validator.Config {
	return validator.Config{
		NumConcurrentForwards: 2,
		StepInterval:          10 * time.Millisecond,
		EpochLength:           3,
		CheckpointEvery:       5,
	}
}

// TestValidatorCommitsWeights runs the full loop against the development
// chain: reward batches raise scores and a signed weight vector lands on chain.
func TestValidatorCommitsWeights(t *testing.T) {
	h := NewHarness(t, WithMiners(8))
	node := h.StartValidator(fastConfig())
	api := node.Client()

	if ok, err := api.Healthy(); err != nil || !ok {
		t.Fatalf("healthy = %v, %v", ok, err)
	}

	st, err := api.WaitForStep(5, 10*time.Second)
	if err != nil {
		t.Fatalf("wait for steps: %v", err)
	}

	if st.Size != 9 {
		t.Errorf("size = %d, want 9", st.Size)
	}

	var committed weights.Vector
	waitFor(t, 10*time.Second, "weight commit", func() bool {
		var ok bool
		committed, ok = h.Chain.Committed(h.Hotkey())
		return ok
	})

	if committed.Len() == 0 || committed.Sum() > weights.MaxWeight {
		t.Errorf("committed vector: len %d sum %d", committed.Len(), committed.Sum())
	}

	scores, err := api.Scores()
	if err != nil {
		t.Fatalf("scores: %v", err)
	}

	positive := 0
	for _, s := range scores {
		if s > 0 {
			positive++
		}
	}

	if positive == 0 {
		t.Error("no uid earned a score")
	}
}

// TestValidatorResumesFromCheckpoint stops a validator and starts another on
// the same data directory: the step counter and scores carry over.
func TestValidatorResumesFromCheckpoint(t *testing.T) {
	h := NewHarness(t, WithMiners(4))

	first := h.StartValidator(fastConfig())
	if _, err := first.Client().WaitForStep(6, 10*time.Second); err != nil {
		t.Fatalf("first run: %v", err)
	}

	first.Stop()
	step := first.Validator.Step()
	before := first.Validator.Scores()

	second := h.NewValidator(fastConfig())

	if got := second.Validator.Step(); got != step {
		t.Errorf("restored step = %d, want %d", got, step)
	}

	after := second.Validator.Scores()
	for i := range before {
		if i < len(after) && after[i] != before[i] {
			t.Errorf("score[%d] = %v, want %v", i, after[i], before[i])
		}
	}
}

// TestTopologyGrowthReachesValidator registers a new identity mid-run and
// waits for the score vector to grow.
func TestTopologyGrowthReachesValidator(t *testing.T) {
	h := NewHarness(t, WithMiners(3))
	node := h.StartValidator(fastConfig())
	api := node.Client()

	if _, err := api.WaitForStep(2, 10*time.Second); err != nil {
		t.Fatalf("wait for steps: %v", err)
	}

	h.Chain.Register("late-joiner", 5)

	waitFor(t, 10*time.Second, "topology growth", func() bool {
		st, err := api.Status()
		return err == nil && st.Size == 5
	})
}
