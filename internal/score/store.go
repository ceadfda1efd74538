// Package score maintains the exponentially smoothed per-uid score vector.
package score

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"Scorekeeper/internal/logger"
)

var (
	// ErrLengthMismatch is returned when rewards and uids differ in length.
	ErrLengthMismatch = errors.New("rewards and uids length mismatch")

	// ErrUIDOutOfRange is returned when a reward targets a uid outside the vector.
	ErrUIDOutOfRange = errors.New("uid out of range")
)

// Store owns the score vector. Every mutation builds a new vector and
// publishes it atomically, so Snapshot never observes a half-applied update.
// Mutations are serialized by writeMu; reads take no lock.
type Store struct {
	alpha   float64
	writeMu sync.Mutex
	current atomic.Pointer[[]float64]
	log     *slog.Logger
}

// New creates a store of n zero scores smoothed with the given alpha.
// alpha must lie in (0, 1].
func New(n int, alpha float64) (*Store, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %v", alpha)
	}

	if n < 0 {
		return nil, fmt.Errorf("negative size %d", n)
	}

	s := &Store{
		alpha: alpha,
		log:   logger.With("component", "scores"),
	}

	s.publish(make([]float64, n))

	return s, nil
}

// Alpha returns the smoothing factor.
func (s *Store) Alpha() float64 {
	return s.alpha
}

// Len returns the current vector length.
func (s *Store) Len() int {
	return len(s.load())
}

// Snapshot returns a copy of the current scores.
func (s *Store) Snapshot() []float64 {
	cur := s.load()
	out := make([]float64, len(cur))
	copy(out, cur)
	return out
}

// Check reports whether Update would accept the batch at the current size.
func (s *Store) Check(rewards []float64, uids []int) error {
	if len(rewards) != len(uids) {
		return fmt.Errorf("%w: %d rewards, %d uids", ErrLengthMismatch, len(rewards), len(uids))
	}

	n := s.Len()
	for _, uid := range uids {
		if uid < 0 || uid >= n {
			return fmt.Errorf("%w: uid %d, size %d", ErrUIDOutOfRange, uid, n)
		}
	}

	return nil
}

// Update folds one batch of rewards into the moving average.
//
// The batch is scattered into a zero vector (duplicate uids: last wins) and
// blended into every entry, so uids absent from the batch decay by (1-alpha).
// Non-finite rewards are replaced with 0. On error nothing is mutated.
func (s *Store) Update(rewards []float64, uids []int) error {
	if len(rewards) != len(uids) {
		return fmt.Errorf("%w: %d rewards, %d uids", ErrLengthMismatch, len(rewards), len(uids))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()

	scattered := make([]float64, len(cur))
	invalid := 0

	for i, uid := range uids {
		if uid < 0 || uid >= len(cur) {
			return fmt.Errorf("%w: uid %d, size %d", ErrUIDOutOfRange, uid, len(cur))
		}

		r := rewards[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
			invalid++
		}

		scattered[uid] = r
	}

	if invalid > 0 {
		s.log.Warn("non-finite rewards replaced with zero", "count", invalid, "batch", len(rewards))
	}

	next := make([]float64, len(cur))
	copy(next, cur)
	floats.Scale(1-s.alpha, next)
	floats.AddScaled(next, s.alpha, scattered)

	s.publish(next)

	return nil
}

// Resize grows the vector to n entries, zero-filling the tail.
// Shrinking is not a supported transition; n <= Len() is a no-op.
func (s *Store) Resize(n int) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	if n <= len(cur) {
		if n < len(cur) {
			s.log.Warn("ignoring shrink request", "size", len(cur), "requested", n)
		}
		return
	}

	next := make([]float64, n)
	copy(next, cur)

	s.publish(next)
}

// Zero resets a single uid's score. Out-of-range uids are ignored.
func (s *Store) Zero(uid int) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	if uid < 0 || uid >= len(cur) {
		s.log.Warn("zero: uid out of range", "uid", uid, "size", len(cur))
		return
	}

	if cur[uid] == 0 {
		return
	}

	next := make([]float64, len(cur))
	copy(next, cur)
	next[uid] = 0

	s.publish(next)
}

// Restore replaces the whole vector, typically from a checkpoint.
// Non-finite entries are replaced with 0.
func (s *Store) Restore(scores []float64) {
	next := make([]float64, len(scores))
	invalid := 0

	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			invalid++
			continue
		}
		next[i] = v
	}

	if invalid > 0 {
		s.log.Warn("non-finite restored scores replaced with zero", "count", invalid)
	}

	s.writeMu.Lock()
	s.publish(next)
	s.writeMu.Unlock()
}

func (s *Store) load() []float64 {
	return *s.current.Load()
}

func (s *Store) publish(v []float64) {
	s.current.Store(&v)
}
