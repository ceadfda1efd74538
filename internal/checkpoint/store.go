package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/storage"
)

// ErrNotFound is returned by Load when no checkpoint has been saved.
var ErrNotFound = errors.New("no checkpoint")

// defaultRetain is the number of checkpoints kept when Retain is unset.
const defaultRetain = 3

var keyPrefix = []byte("ckpt:")

// Store persists checkpoints in Pebble, keyed by step.
type Store struct {
	db     *storage.Storage
	retain int
}

// NewStore wraps db. retain <= 0 keeps the default number of checkpoints.
func NewStore(db *storage.Storage, retain int) *Store {
	if retain <= 0 {
		retain = defaultRetain
	}

	return &Store{db: db, retain: retain}
}

// Save writes s durably and prunes checkpoints older than the retained window.
// Saving a step that already exists overwrites it.
func (c *Store) Save(s State) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	if err := c.db.SetSync(stepKey(s.Step), data); err != nil {
		return fmt.Errorf("write checkpoint %d:\n%w", s.Step, err)
	}

	if err := c.prune(); err != nil {
		logger.Warn("prune checkpoints", "error", err)
	}

	return nil
}

// Load returns the newest checkpoint, or ErrNotFound.
func (c *Store) Load() (State, error) {
	key, value, err := c.db.LastWithPrefix(keyPrefix)
	if err != nil {
		return State{}, fmt.Errorf("read checkpoint:\n%w", err)
	}

	if key == nil {
		return State{}, ErrNotFound
	}

	s, err := Decode(value)
	if err != nil {
		return State{}, fmt.Errorf("decode checkpoint %x:\n%w", key[len(keyPrefix):], err)
	}

	return s, nil
}

// Steps returns the steps of all stored checkpoints in ascending order.
func (c *Store) Steps() ([]uint64, error) {
	var steps []uint64

	err := c.db.IteratePrefix(keyPrefix, func(key, _ []byte) error {
		if len(key) != len(keyPrefix)+8 {
			return nil
		}

		steps = append(steps, binary.BigEndian.Uint64(key[len(keyPrefix):]))

		return nil
	})

	return steps, err
}

// prune deletes all but the newest c.retain checkpoints.
func (c *Store) prune() error {
	steps, err := c.Steps()
	if err != nil {
		return err
	}

	if len(steps) <= c.retain {
		return nil
	}

	stale := steps[:len(steps)-c.retain]
	keys := make([][]byte, len(stale))

	for i, step := range stale {
		keys[i] = stepKey(step)
	}

	return c.db.DeleteKeys(keys)
}

// stepKey encodes step big-endian so keys sort by step.
func stepKey(step uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], step)

	return key
}
