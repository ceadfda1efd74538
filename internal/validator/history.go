package validator

import (
	"math"
	"sync"
)

// History keeps the most recent rewards of every uid in fixed-size rings.
type History struct {
	mu    sync.RWMutex
	size  int
	rings []ring
}

type ring struct {
	buf  []float64
	next int
	full bool
}

// NewHistory creates a history for n uids keeping size rewards each.
func NewHistory(n, size int) *History {
	if size <= 0 {
		size = 1
	}

	return &History{size: size, rings: make([]ring, n)}
}

// Record appends rewards[i] to the ring of uids[i]. Unknown uids are skipped
// and non-finite rewards are stored as 0, as the score store applies them.
func (h *History) Record(rewards []float64, uids []int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, uid := range uids {
		if uid < 0 || uid >= len(h.rings) || i >= len(rewards) {
			continue
		}

		r := &h.rings[uid]
		if r.buf == nil {
			r.buf = make([]float64, h.size)
		}

		reward := rewards[i]
		if math.IsNaN(reward) || math.IsInf(reward, 0) {
			reward = 0
		}

		r.buf[r.next] = reward
		r.next = (r.next + 1) % h.size
		if r.next == 0 {
			r.full = true
		}
	}
}

// Recent returns the rewards of uid, oldest first.
func (h *History) Recent(uid int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if uid < 0 || uid >= len(h.rings) {
		return nil
	}

	r := h.rings[uid]
	if !r.full {
		return append([]float64(nil), r.buf[:r.next]...)
	}

	out := make([]float64, 0, h.size)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)

	return out
}

// Clear forgets everything recorded for uid.
func (h *History) Clear(uid int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if uid >= 0 && uid < len(h.rings) {
		h.rings[uid] = ring{}
	}
}

// Resize grows the history to n uids. Shrinking is ignored.
func (h *History) Resize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > len(h.rings) {
		h.rings = append(h.rings, make([]ring, n-len(h.rings))...)
	}
}

// Len returns the number of tracked uids.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rings)
}
