package validator

import (
	"context"

	"Scorekeeper/internal/checkpoint"
	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/weights"
)

// TopologySource returns the topology at the ledger head.
type TopologySource interface {
	CurrentSnapshot(ctx context.Context) (topology.Snapshot, error)
}

// Evaluator runs one evaluation task and returns rewards parallel to uids.
type Evaluator interface {
	Evaluate(ctx context.Context) (rewards []float64, uids []int, err error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context) ([]float64, []int, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context) ([]float64, []int, error) {
	return f(ctx)
}

// Ledger admits and commits weight vectors.
type Ledger interface {
	weights.Admitter
	Submit(ctx context.Context, v weights.Vector) error
}

// Checkpointer persists validator state.
type Checkpointer interface {
	Save(s checkpoint.State) error
}

// Observer receives a report after every completed step.
type Observer interface {
	ObserveStep(r StepReport)
}

// SubmissionObserver is optionally implemented by an Observer to learn the
// outcome of each background submission.
type SubmissionObserver interface {
	ObserveSubmission(err error)
}
