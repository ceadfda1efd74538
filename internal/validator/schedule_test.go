package validator

import (
	"testing"

	"Scorekeeper/internal/topology"
)

func TestCommitScheduleDue(t *testing.T) {
	tests := []struct {
		name       string
		block      uint64
		ids        []string
		lastUpdate []uint64
		dispatched uint64
		want       bool
	}{
		{"unregistered", 100, []string{"a"}, []uint64{0}, 0, false},
		{"ledger fresh", 100, []string{"self"}, []uint64{96}, 0, false},
		{"ledger boundary", 100, []string{"self"}, []uint64{95}, 0, false},
		{"ledger stale", 100, []string{"self"}, []uint64{94}, 0, true},
		{"local record used without ledger figure", 100, []string{"self"}, nil, 99, false},
		{"local record stale", 100, []string{"self"}, nil, 90, true},
		{"ledger wins over local", 100, []string{"self"}, []uint64{10}, 99, true},
		{"last update ahead of block", 5, []string{"self"}, []uint64{9}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CommitSchedule{EpochLength: 5, Hotkey: "self"}
			c.MarkDispatched(tt.dispatched)

			snap := topology.Snapshot{
				Block:      tt.block,
				Identities: tt.ids,
				Metrics:    topology.Metrics{LastUpdate: tt.lastUpdate},
			}

			if got := c.Due(snap); got != tt.want {
				t.Errorf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}
