package network

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// defaultDedupTTL is how long a pushed message hash is remembered.
	defaultDedupTTL = 30 * time.Second

	// cleanupInterval is the interval between expiry sweeps.
	cleanupInterval = time.Second
)

// Dedup remembers blake3 hashes of recently pushed messages so that a batch
// replayed after a redial is delivered once.
type Dedup struct {
	seen map[[32]byte]int64 // seen maps message hash to first-seen unix nanos
	mu   sync.Mutex
	ttl  int64
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDedup creates a tracker. ttl <= 0 selects defaultDedupTTL.
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	d := &Dedup{
		seen: make(map[[32]byte]int64),
		ttl:  int64(ttl),
		stop: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.cleanupLoop()

	return d
}

// Check returns true the first time data is seen within the TTL.
func (d *Dedup) Check(data []byte) bool {
	hash := blake3.Sum256(data)
	now := time.Now().UnixNano()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.seen[hash]; ok && now-ts < d.ttl {
		return false
	}

	d.seen[hash] = now

	return true
}

// Len returns the number of remembered hashes.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}

// Close stops the sweeper.
func (d *Dedup) Close() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dedup) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.expire(time.Now().UnixNano())
		case <-d.stop:
			return
		}
	}
}

// expire drops hashes older than the TTL relative to now.
func (d *Dedup) expire(now int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for hash, ts := range d.seen {
		if now-ts >= d.ttl {
			delete(d.seen, hash)
		}
	}
}
