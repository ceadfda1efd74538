package topology

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/blake3"
)

// Metrics are per-uid network figures reported alongside a snapshot.
// Slices are indexed by uid and may be shorter than the identity list.
type Metrics struct {
	Stake      []float64 // Stake is the stake backing each uid
	Trust      []float64 // Trust is the ledger's trust figure per uid
	LastUpdate []uint64  // LastUpdate is the block of each uid's last weight commit
}

// Snapshot is the ordered participant list observed at one block.
// Index i holds the identity occupying uid i.
type Snapshot struct {
	Block      uint64   // Block is the ledger height the snapshot was taken at
	Identities []string // Identities are the opaque participant keys, one per uid
	Metrics    Metrics  // Metrics are the per-uid figures for the same block
}

// Len returns the topology size.
func (s Snapshot) Len() int {
	return len(s.Identities)
}

// UIDs returns [0, Len()).
func (s Snapshot) UIDs() []int {
	uids := make([]int, len(s.Identities))
	for i := range uids {
		uids[i] = i
	}
	return uids
}

// IndexOf returns the uid currently held by identity.
func (s Snapshot) IndexOf(identity string) (int, bool) {
	i := slices.Index(s.Identities, identity)
	return i, i >= 0
}

// LastUpdate returns the last commit block reported for uid, if any.
func (s Snapshot) LastUpdate(uid int) (uint64, bool) {
	if uid < 0 || uid >= len(s.Metrics.LastUpdate) {
		return 0, false
	}
	return s.Metrics.LastUpdate[uid], true
}

// Clone returns a deep copy so the caller can keep it as a baseline.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Block:      s.Block,
		Identities: slices.Clone(s.Identities),
		Metrics: Metrics{
			Stake:      slices.Clone(s.Metrics.Stake),
			Trust:      slices.Clone(s.Metrics.Trust),
			LastUpdate: slices.Clone(s.Metrics.LastUpdate),
		},
	}
}

// Digest hashes the ordered identity list.
// Two snapshots with the same digest have the same occupant at every uid.
func (s Snapshot) Digest() [32]byte {
	h := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(s.Identities)))
	h.Write(buf[:])

	for _, id := range s.Identities {
		binary.BigEndian.PutUint32(buf[:], uint32(len(id)))
		h.Write(buf[:])
		h.Write([]byte(id))
	}

	var out [32]byte
	h.Sum(out[:0])

	return out
}
