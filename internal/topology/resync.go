package topology

import (
	"encoding/hex"
	"fmt"
	"slices"

	"Scorekeeper/internal/logger"
)

// Mutator is the part of the score store the resynchronizer drives.
type Mutator interface {
	Zero(uid int)
	Resize(n int)
}

// DeregisterFunc cleans up per-uid state of a replaced occupant.
// It runs synchronously during Sync; errors and panics are logged only.
type DeregisterFunc func(uid int) error

// ChangeSet summarizes what one Sync call did.
type ChangeSet struct {
	ReplacedUIDs []int // ReplacedUIDs are the uids whose occupant changed, ascending
	Grew         bool  // Grew is set when the topology gained slots
	NewSize      int   // NewSize is the size of the applied snapshot
}

// Empty reports whether the sync changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.ReplacedUIDs) == 0 && !c.Grew
}

// Sync applies cur on top of prev. Replaced uids are zeroed in store and
// handed to onDeregister; growth resizes store. The caller keeps cur as the
// new baseline. Identical snapshots return an empty ChangeSet without
// touching store.
func Sync(prev, cur Snapshot, store Mutator, onDeregister DeregisterFunc) ChangeSet {
	log := logger.With("component", "resync")

	cs := ChangeSet{NewSize: cur.Len()}

	if slices.Equal(prev.Identities, cur.Identities) {
		log.Debug("topology unchanged", "size", cur.Len(), "block", cur.Block)
		return cs
	}

	if cur.Len() < prev.Len() {
		log.Warn("topology shrank, ignoring lost tail",
			"previous", prev.Len(),
			"current", cur.Len(),
		)
	}

	digest := cur.Digest()
	log.Info("topology changed",
		"previous", prev.Len(),
		"current", cur.Len(),
		"block", cur.Block,
		"digest", hex.EncodeToString(digest[:8]),
	)

	for _, t := range Diff(prev.Identities, cur.Identities) {
		switch t := t.(type) {
		case Replaced:
			store.Zero(t.UID)
			deregister(onDeregister, t.UID)
			cs.ReplacedUIDs = append(cs.ReplacedUIDs, t.UID)

			log.Info("uid replaced", "uid", t.UID)

		case Grown:
			store.Resize(t.To)
			cs.Grew = true

			log.Info("topology grew", "from", t.From, "to", t.To)

		case Unchanged:
		}
	}

	return cs
}

// deregister runs the handler for uid, containing any failure to this uid.
func deregister(fn DeregisterFunc, uid int) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("deregistration handler panicked", "uid", uid, "panic", fmt.Sprint(r))
		}
	}()

	if err := fn(uid); err != nil {
		logger.Warn("deregistration handler failed", "uid", uid, "error", err)
	}
}
