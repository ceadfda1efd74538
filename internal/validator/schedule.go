package validator

import "Scorekeeper/internal/topology"

// CommitSchedule decides when weights are due. Weights are due once more
// than EpochLength blocks have passed since the last commit.
type CommitSchedule struct {
	EpochLength uint64 // EpochLength is the minimum block distance between commits
	Hotkey      string // Hotkey is the validator's own identity in the topology

	lastDispatch uint64
}

// Due reports whether a commit should be made at snap.Block. The ledger's
// last-update figure for the validator's uid takes precedence over the local
// dispatch record. Unregistered validators never commit.
func (c *CommitSchedule) Due(snap topology.Snapshot) bool {
	uid, ok := snap.IndexOf(c.Hotkey)
	if !ok {
		return false
	}

	last := c.lastDispatch
	if lu, ok := snap.LastUpdate(uid); ok {
		last = lu
	}

	return snap.Block > last && snap.Block-last > c.EpochLength
}

// MarkDispatched records a commit sent at block.
func (c *CommitSchedule) MarkDispatched(block uint64) {
	c.lastDispatch = block
}

// LastDispatch returns the block of the last recorded dispatch.
func (c *CommitSchedule) LastDispatch() uint64 {
	return c.lastDispatch
}
