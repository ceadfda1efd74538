// Package validator drives the evaluate, score, resync and commit cycle.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"Scorekeeper/internal/checkpoint"
	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/score"
	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/weights"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultHistorySize   = 32
)

var (
	// ErrAlreadyRunning is returned by Run when a worker is active.
	ErrAlreadyRunning = errors.New("validator already running")

	// ErrPanic wraps a panic recovered from a step or an evaluation task.
	ErrPanic = errors.New("recovered panic")

	// ErrStepInProgress is returned when a step still holds the state past a deadline.
	ErrStepInProgress = errors.New("step in progress")
)

// Config tunes the run loop.
type Config struct {
	NumConcurrentForwards int           // NumConcurrentForwards is the number of evaluation tasks per step
	StepInterval          time.Duration // StepInterval is the pause between steps
	EpochLength           uint64        // EpochLength is the minimum block distance between commits
	CheckpointEvery       uint64        // CheckpointEvery saves state every N steps; 0 disables
	SubmitTimeout         time.Duration // SubmitTimeout bounds one ledger submission
	HistorySize           int           // HistorySize is the per-uid reward lookback
	Hotkey                string        // Hotkey is the validator's identity in the topology
}

// Deps are the collaborators of a Validator. Ledger, Checkpoints, Observer
// and OnDeregister are optional.
type Deps struct {
	Scores       *score.Store
	Source       TopologySource
	Evaluator    Evaluator
	Ledger       Ledger
	Checkpoints  Checkpointer
	Observer     Observer
	OnDeregister topology.DeregisterFunc
}

// StepReport describes one completed or failed step.
type StepReport struct {
	Step       uint64             // Step is the counter after the step
	Block      uint64             // Block is the topology block seen by the step
	Duration   time.Duration      // Duration is the wall time of the step
	Tasks      int                // Tasks is the number of evaluation tasks fanned out
	Changes    topology.ChangeSet // Changes is the resync outcome
	Dispatched bool               // Dispatched is set when a weight submission was started
	Err        error              // Err is the step failure, if any
}

// Status is a point-in-time view for operators.
type Status struct {
	State        RunState
	Step         uint64
	Block        uint64
	Size         int
	LastDispatch uint64
	Submitting   bool
	LastError    string
}

// Validator owns the score store and runs the step loop.
type Validator struct {
	cfg          Config
	scores       *score.Store
	source       TopologySource
	evaluator    Evaluator
	ledger       Ledger
	checkpoints  Checkpointer
	observer     Observer
	onDeregister topology.DeregisterFunc
	history      *History

	mu     sync.Mutex // mu guards state, cancel and done
	state  RunState
	cancel context.CancelFunc
	done   chan struct{}

	stepMu   sync.Mutex // stepMu serializes steps and guards baseline and schedule
	baseline topology.Snapshot
	schedule CommitSchedule

	step  atomic.Uint64
	block atomic.Uint64

	errMu   sync.Mutex
	lastErr string

	submitting atomic.Bool
	submitWG   sync.WaitGroup

	log *slog.Logger
}

// New creates a stopped validator whose baseline is initial. The score
// store is grown to the initial topology size.
func New(cfg Config, deps Deps, initial topology.Snapshot) (*Validator, error) {
	if deps.Scores == nil || deps.Source == nil || deps.Evaluator == nil {
		return nil, fmt.Errorf("scores, topology source and evaluator are required")
	}

	if cfg.NumConcurrentForwards <= 0 {
		cfg.NumConcurrentForwards = 1
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	deps.Scores.Resize(initial.Len())

	v := &Validator{
		cfg:          cfg,
		scores:       deps.Scores,
		source:       deps.Source,
		evaluator:    deps.Evaluator,
		ledger:       deps.Ledger,
		checkpoints:  deps.Checkpoints,
		observer:     deps.Observer,
		onDeregister: deps.OnDeregister,
		history:      NewHistory(deps.Scores.Len(), cfg.HistorySize),
		baseline:     initial.Clone(),
		schedule:     CommitSchedule{EpochLength: cfg.EpochLength, Hotkey: cfg.Hotkey},
		log:          logger.With("component", "validator"),
	}

	v.block.Store(initial.Block)

	return v, nil
}

// Restore loads checkpointed state. Scores shorter than the checkpointed
// identity list are zero-extended. The checkpointed identities become the
// baseline, so the next resync zeroes every uid replaced while offline.
// Call before Start.
func (v *Validator) Restore(st checkpoint.State) {
	v.stepMu.Lock()
	defer v.stepMu.Unlock()

	scores := st.Scores
	if len(scores) < len(st.Identities) {
		scores = append(slices.Clone(scores), make([]float64, len(st.Identities)-len(scores))...)
	}

	v.scores.Restore(scores)
	v.history.Resize(len(scores))
	v.baseline = topology.Snapshot{Identities: slices.Clone(st.Identities)}
	v.step.Store(st.Step)

	v.log.Info("state restored", "step", st.Step, "size", len(scores))
}

// Start spawns the background worker. Calling Start while a worker is
// active or stopping is a no-op.
func (v *Validator) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Stopped {
		return
	}

	v.state = Starting

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	v.cancel, v.done = cancel, done

	go func() {
		defer close(done)
		v.loop(ctx)
	}()

	v.state = Running
	v.log.Info("validator started", "step", v.step.Load())
}

// Stop cancels the worker and waits up to timeout for it to exit. The state
// is Stopped on return either way; false means the worker outlived timeout.
// Stopping a stopped validator is a no-op.
func (v *Validator) Stop(timeout time.Duration) bool {
	v.mu.Lock()
	if v.state != Running {
		v.mu.Unlock()
		return true
	}

	v.state = Stopping
	cancel, done := v.cancel, v.done
	v.mu.Unlock()

	cancel()

	clean := true
	select {
	case <-done:
	case <-time.After(timeout):
		clean = false
		v.log.Warn("worker did not stop in time", "timeout", timeout)
	}

	v.mu.Lock()
	if v.done == done {
		v.state, v.cancel, v.done = Stopped, nil, nil
	}
	v.mu.Unlock()

	v.log.Info("validator stopped", "step", v.step.Load(), "clean", clean)

	return clean
}

// Run executes the loop in the calling goroutine until ctx is cancelled or
// Stop is called.
func (v *Validator) Run(ctx context.Context) error {
	v.mu.Lock()
	if v.state != Stopped {
		v.mu.Unlock()
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.state, v.cancel, v.done = Running, cancel, done
	v.mu.Unlock()

	defer func() {
		cancel()
		close(done)

		v.mu.Lock()
		if v.done == done {
			v.state, v.cancel, v.done = Stopped, nil, nil
		}
		v.mu.Unlock()
	}()

	v.loop(ctx)

	return nil
}

// IsRunning reports whether a worker is active.
func (v *Validator) IsRunning() bool {
	return v.State() == Running
}

// State returns the lifecycle state.
func (v *Validator) State() RunState {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.state
}

// Step returns the number of completed steps.
func (v *Validator) Step() uint64 {
	return v.step.Load()
}

// Scores returns a copy of the score vector.
func (v *Validator) Scores() []float64 {
	return v.scores.Snapshot()
}

// History returns the per-uid reward history.
func (v *Validator) History() *History {
	return v.history
}

// Status returns an operator view of the validator.
func (v *Validator) Status() Status {
	v.errMu.Lock()
	lastErr := v.lastErr
	v.errMu.Unlock()

	v.stepMu.Lock()
	lastDispatch := v.schedule.LastDispatch()
	v.stepMu.Unlock()

	return Status{
		State:        v.State(),
		Step:         v.step.Load(),
		Block:        v.block.Load(),
		Size:         v.scores.Len(),
		LastDispatch: lastDispatch,
		Submitting:   v.submitting.Load(),
		LastError:    lastErr,
	}
}

// Wait blocks until in-flight submissions finish.
func (v *Validator) Wait() {
	v.submitWG.Wait()
}

// Checkpoint saves the current state if a checkpointer is configured.
func (v *Validator) Checkpoint() error {
	if v.checkpoints == nil {
		return nil
	}

	v.stepMu.Lock()
	st := v.stateLocked()
	v.stepMu.Unlock()

	return v.checkpoints.Save(st)
}

// TryCheckpoint is Checkpoint bounded by timeout. It returns
// ErrStepInProgress when a running step keeps the state locked past it.
func (v *Validator) TryCheckpoint(timeout time.Duration) error {
	if v.checkpoints == nil {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for !v.stepMu.TryLock() {
		if !time.Now().Before(deadline) {
			return ErrStepInProgress
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := v.stateLocked()
	v.stepMu.Unlock()

	return v.checkpoints.Save(st)
}

func (v *Validator) stateLocked() checkpoint.State {
	return checkpoint.State{
		Step:       v.step.Load(),
		Scores:     v.scores.Snapshot(),
		Identities: slices.Clone(v.baseline.Identities),
	}
}

// loop resyncs once, then steps until ctx ends.
func (v *Validator) loop(ctx context.Context) {
	v.initialResync(ctx)

	for ctx.Err() == nil {
		if err := v.RunStep(ctx); err != nil && ctx.Err() == nil {
			v.log.Error("step failed", "step", v.step.Load(), "error", err)
		}

		if v.cfg.StepInterval <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(v.cfg.StepInterval):
		}
	}
}

func (v *Validator) initialResync(ctx context.Context) {
	v.stepMu.Lock()
	defer v.stepMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, r)
			v.recordError(err)
			v.log.Error("initial resync failed", "error", err)
		}
	}()

	if _, _, err := v.resync(ctx); err != nil {
		v.log.Warn("initial resync failed", "error", err)
	}
}

type evaluation struct {
	rewards []float64
	uids    []int
}

// RunStep performs one step: fan out the evaluation tasks, apply every result
// in task order, resync against the topology, advance the step counter,
// checkpoint and commit weights when due. If any task fails nothing is applied.
func (v *Validator) RunStep(ctx context.Context) (err error) {
	v.stepMu.Lock()
	defer v.stepMu.Unlock()

	start := time.Now()
	report := StepReport{Tasks: v.cfg.NumConcurrentForwards}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		report.Step = v.step.Load()
		report.Block = v.block.Load()
		report.Duration = time.Since(start)
		report.Err = err

		v.recordError(err)

		if v.observer != nil {
			v.observer.ObserveStep(report)
		}
	}()

	results, err := v.evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluate:\n%w", err)
	}

	for i, r := range results {
		if err := v.scores.Check(r.rewards, r.uids); err != nil {
			// A batch may reference uids the baseline has not seen yet.
			if _, _, serr := v.resync(ctx); serr != nil {
				v.log.Warn("resync after rejected batch", "error", serr)
			}
			return fmt.Errorf("task %d:\n%w", i, err)
		}
	}

	for _, r := range results {
		if err := v.scores.Update(r.rewards, r.uids); err != nil {
			return fmt.Errorf("apply rewards:\n%w", err)
		}
		v.history.Record(r.rewards, r.uids)
	}

	if ctx.Err() != nil {
		v.log.Debug("stop requested, skipping resync", "step", v.step.Load())
		return nil
	}

	snap, changes, serr := v.resync(ctx)
	if serr != nil {
		v.log.Warn("topology unavailable, resync skipped", "error", serr)
	}
	report.Changes = changes

	step := v.step.Add(1)

	if v.cfg.CheckpointEvery > 0 && step%v.cfg.CheckpointEvery == 0 && v.checkpoints != nil {
		if err := v.checkpoints.Save(v.stateLocked()); err != nil {
			v.log.Error("save checkpoint", "step", step, "error", err)
		}
	}

	if serr == nil && v.ledger != nil && v.schedule.Due(snap) {
		report.Dispatched = v.dispatch(snap)
	}

	v.log.Debug("step done", "step", step, "block", snap.Block, "elapsed", time.Since(start))

	return nil
}

// evaluate runs the evaluation tasks concurrently and joins them. Stopping
// the loop does not cancel tasks already running; only a failing sibling does.
func (v *Validator) evaluate(ctx context.Context) ([]evaluation, error) {
	results := make([]evaluation, v.cfg.NumConcurrentForwards)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))

	for i := range results {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: task %d: %v", ErrPanic, i, r)
				}
			}()

			rewards, uids, evalErr := v.evaluator.Evaluate(gctx)
			if evalErr != nil {
				return fmt.Errorf("task %d:\n%w", i, evalErr)
			}

			results[i] = evaluation{rewards: rewards, uids: uids}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// resync fetches the topology and applies it on top of the baseline.
// Must be called with stepMu held.
func (v *Validator) resync(ctx context.Context) (topology.Snapshot, topology.ChangeSet, error) {
	snap, err := v.source.CurrentSnapshot(ctx)
	if err != nil {
		return topology.Snapshot{}, topology.ChangeSet{}, fmt.Errorf("fetch topology:\n%w", err)
	}

	changes := topology.Sync(v.baseline, snap, v.scores, v.deregister)
	if changes.Grew {
		v.history.Resize(changes.NewSize)
	}

	v.baseline = snap.Clone()
	v.block.Store(snap.Block)

	return snap, changes, nil
}

// deregister clears per-uid state of a replaced occupant.
func (v *Validator) deregister(uid int) error {
	v.history.Clear(uid)

	if v.onDeregister != nil {
		return v.onDeregister(uid)
	}

	return nil
}

// dispatch prepares weights and submits them in the background.
// At most one submission is in flight; returns whether one was started.
func (v *Validator) dispatch(snap topology.Snapshot) bool {
	if !v.submitting.CompareAndSwap(false, true) {
		v.log.Debug("submission in flight, skipping commit", "block", snap.Block)
		return false
	}

	scores := v.scores.Snapshot()
	n := min(len(scores), snap.Len())

	uids := make([]int, n)
	for i := range uids {
		uids[i] = i
	}

	vec, err := weights.Prepare(scores[:n], uids, v.ledger)
	if err != nil {
		v.submitting.Store(false)

		if errors.Is(err, weights.ErrDegenerateDistribution) {
			v.log.Warn("no weights to commit", "block", snap.Block, "error", err)
		} else {
			v.log.Error("prepare weights", "block", snap.Block, "error", err)
		}

		return false
	}

	v.schedule.MarkDispatched(snap.Block)

	v.submitWG.Add(1)
	go v.submit(vec, snap.Block)

	return true
}

func (v *Validator) submit(vec weights.Vector, block uint64) {
	defer v.submitWG.Done()
	defer v.submitting.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.SubmitTimeout)
	defer cancel()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			v.log.Error("submit weights", "block", block, "error", err)
		}

		if so, ok := v.observer.(SubmissionObserver); ok {
			so.ObserveSubmission(err)
		}
	}()

	start := time.Now()

	if err = v.ledger.Submit(ctx, vec); err != nil {
		v.log.Warn("submit weights", "block", block, "error", err)
		return
	}

	v.log.Info("weights submitted", "block", block, "entries", vec.Len(), logger.Timed(start))
}

func (v *Validator) recordError(err error) {
	v.errMu.Lock()
	defer v.errMu.Unlock()

	if err == nil {
		v.lastErr = ""
		return
	}

	v.lastErr = err.Error()
}
