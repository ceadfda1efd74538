package storage

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"
)

// newTestStorage opens a store in a per-test temporary directory.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

// stepKey builds a prefixed big-endian key so lexicographic order follows n.
func stepKey(prefix string, n uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], n)
	return key
}

func TestDeleteKeys(t *testing.T) {
	s := newTestStorage(t)

	for n := range uint64(4) {
		if err := s.SetSync(stepKey("ckpt:", n), []byte{byte(n)}); err != nil {
			t.Fatalf("SetSync failed: %v", err)
		}
	}

	if err := s.DeleteKeys([][]byte{stepKey("ckpt:", 0), stepKey("ckpt:", 2)}); err != nil {
		t.Fatalf("DeleteKeys failed: %v", err)
	}

	if err := s.DeleteKeys(nil); err != nil {
		t.Fatalf("DeleteKeys on empty set: %v", err)
	}

	var got []byte
	err := s.IteratePrefix([]byte("ckpt:"), func(_, value []byte) error {
		got = append(got, value...)
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if !bytes.Equal(got, []byte{1, 3}) {
		t.Errorf("remaining values = %v, want [1 3]", got)
	}
}

func TestOpenWithOptionsPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	opts := Options{CacheSize: 1 << 20, SyncInterval: 5 * time.Millisecond}

	s, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if s.interval != opts.SyncInterval {
		t.Errorf("sync interval = %v, want %v", s.interval, opts.SyncInterval)
	}

	if err := s.SetSync([]byte("ckpt:a"), []byte("v")); err != nil {
		t.Fatalf("SetSync failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(path, opts)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, value, err := s.LastWithPrefix([]byte("ckpt:"))
	if err != nil || !bytes.Equal(value, []byte("v")) {
		t.Errorf("after reopen got %q, %v", value, err)
	}
}

func TestOpenDefaultsOptions(t *testing.T) {
	s := newTestStorage(t)

	if s.interval != defaultSyncInterval {
		t.Errorf("sync interval = %v, want %v", s.interval, defaultSyncInterval)
	}
}

func TestIteratePrefixOrder(t *testing.T) {
	s := newTestStorage(t)

	for _, n := range []uint64{300, 2, 70000} {
		if err := s.SetSync(stepKey("ckpt:", n), []byte{byte(n)}); err != nil {
			t.Fatalf("SetSync failed: %v", err)
		}
	}

	if err := s.SetSync([]byte("other"), []byte("x")); err != nil {
		t.Fatalf("SetSync failed: %v", err)
	}

	var got []uint64
	err := s.IteratePrefix([]byte("ckpt:"), func(key, _ []byte) error {
		got = append(got, binary.BigEndian.Uint64(key[len("ckpt:"):]))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	want := []uint64{2, 300, 70000}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLastWithPrefix(t *testing.T) {
	s := newTestStorage(t)

	key, value, err := s.LastWithPrefix([]byte("ckpt:"))
	if err != nil {
		t.Fatalf("LastWithPrefix on empty store: %v", err)
	}

	if key != nil || value != nil {
		t.Fatalf("expected no match, got %q=%q", key, value)
	}

	for _, n := range []uint64{5, 9, 7} {
		if err := s.SetSync(stepKey("ckpt:", n), []byte{byte(n)}); err != nil {
			t.Fatalf("SetSync failed: %v", err)
		}
	}

	// A key sorting after the prefix range must not be picked up.
	if err := s.SetSync([]byte("ckpu"), []byte("z")); err != nil {
		t.Fatalf("SetSync failed: %v", err)
	}

	key, value, err = s.LastWithPrefix([]byte("ckpt:"))
	if err != nil {
		t.Fatalf("LastWithPrefix failed: %v", err)
	}

	if !bytes.Equal(key, stepKey("ckpt:", 9)) || !bytes.Equal(value, []byte{9}) {
		t.Errorf("got %x=%x, want step 9", key, value)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tt.prefix, got, tt.want)
		}
	}
}
