package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"slices"
	"testing"
	"time"

	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/weights"
)

func generateTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

func startTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()

	cfg.PrivateKey = generateTestKey(t)
	cfg.ListenAddr = "127.0.0.1:0"

	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func dialTestClient(t *testing.T, s *Server, netuid uint16) *Client {
	t.Helper()

	c, err := Dial(context.Background(), ClientConfig{
		PrivateKey: generateTestKey(t),
		ChainAddr:  s.Addr(),
		NetUID:     netuid,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func TestCurrentSnapshot(t *testing.T) {
	s := startTestServer(t, ServerConfig{Params: Params{MinAllowedWeights: 2, MaxWeightLimit: 0.5, VersionKey: 3}})
	for i, id := range []string{"a", "b", "c"} {
		s.Register(id, float64(i+1))
	}
	s.AdvanceBlock()

	c := dialTestClient(t, s, 0)

	if _, ok := c.Params(); ok {
		t.Error("params known before the first snapshot")
	}

	snap, err := c.CurrentSnapshot(context.Background())
	if err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}

	if snap.Block != 1 || !slices.Equal(snap.Identities, []string{"a", "b", "c"}) {
		t.Errorf("snapshot = %+v", snap)
	}

	if !slices.Equal(snap.Metrics.Stake, []float64{1, 2, 3}) {
		t.Errorf("stake = %v", snap.Metrics.Stake)
	}

	p, ok := c.Params()
	if !ok || p != (Params{MinAllowedWeights: 2, MaxWeightLimit: 0.5, VersionKey: 3}) {
		t.Errorf("params = %+v, %v", p, ok)
	}
}

func TestRegisterReplacesLowestStakeWhenFull(t *testing.T) {
	s := startTestServer(t, ServerConfig{MaxSize: 3})

	s.Register("a", 5)
	s.Register("b", 1)
	s.Register("c", 9)

	uid, replaced := s.Register("d", 4)
	if !replaced || uid != 1 {
		t.Fatalf("Register = %d, %v; want 1, true", uid, replaced)
	}

	if got := s.Snapshot().Identities; !slices.Equal(got, []string{"a", "d", "c"}) {
		t.Errorf("identities = %v", got)
	}

	prev := topology.Snapshot{Identities: []string{"a", "b", "c"}}
	if diff := topology.Diff(prev.Identities, s.Snapshot().Identities); len(diff) != 1 {
		t.Errorf("diff = %v, want one replacement", diff)
	}
}

func TestSubmitCommitsWeights(t *testing.T) {
	s := startTestServer(t, ServerConfig{NetUID: 7, Params: Params{VersionKey: 2}})
	c := dialTestClient(t, s, 7)

	s.Register("other", 1)
	s.Register(c.Hotkey(), 1)
	for range 5 {
		s.AdvanceBlock()
	}

	if _, err := c.CurrentSnapshot(context.Background()); err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}

	v := weights.Vector{UIDs: []uint16{0, 1}, Weights: []uint16{40000, 25535}}
	if err := c.Submit(context.Background(), v); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, ok := s.Committed(c.Hotkey())
	if !ok || !slices.Equal(got.UIDs, v.UIDs) || !slices.Equal(got.Weights, v.Weights) {
		t.Errorf("committed = %+v, %v", got, ok)
	}

	if last, _ := s.Snapshot().LastUpdate(1); last != 5 {
		t.Errorf("last update = %d, want 5", last)
	}
}

func TestSubmitRejections(t *testing.T) {
	s := startTestServer(t, ServerConfig{NetUID: 1, Params: Params{VersionKey: 4}})
	c := dialTestClient(t, s, 1)
	ctx := context.Background()
	v := weights.Vector{UIDs: []uint16{0}, Weights: []uint16{65535}}

	if err := c.Submit(ctx, v); !errors.Is(err, ErrRejected) {
		t.Errorf("unregistered hotkey: error = %v, want ErrRejected", err)
	}

	s.Register(c.Hotkey(), 1)

	// No snapshot fetched yet, so the submission carries version 0.
	if err := c.Submit(ctx, v); !errors.Is(err, ErrRejected) {
		t.Errorf("stale version: error = %v, want ErrRejected", err)
	}

	if _, err := c.CurrentSnapshot(ctx); err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}

	if err := c.Submit(ctx, weights.Vector{UIDs: []uint16{3}, Weights: []uint16{1}}); !errors.Is(err, ErrRejected) {
		t.Errorf("uid out of range: error = %v, want ErrRejected", err)
	}

	if err := c.Submit(ctx, v); err != nil {
		t.Errorf("valid submission: %v", err)
	}

	other := dialTestClient(t, s, 2)
	s.Register(other.Hotkey(), 1)

	if err := other.Submit(ctx, v); !errors.Is(err, ErrRejected) {
		t.Errorf("wrong netuid: error = %v, want ErrRejected", err)
	}
}

func TestEvaluateRequestsWhenQueueEmpty(t *testing.T) {
	s := startTestServer(t, ServerConfig{BatchSize: 3, Seed: 1})
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Register(id, 1)
	}

	c := dialTestClient(t, s, 0)

	rewards, uids, err := c.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(rewards) != 3 || len(uids) != 3 {
		t.Fatalf("got %d rewards, %d uids; want 3", len(rewards), len(uids))
	}

	seen := map[int]bool{}
	for i, uid := range uids {
		if uid < 0 || uid >= 4 || seen[uid] {
			t.Errorf("bad uid set %v", uids)
		}
		seen[uid] = true

		if rewards[i] < 0 || rewards[i] >= 1 {
			t.Errorf("reward %v out of [0,1)", rewards[i])
		}
	}
}

func TestEvaluateDrainsPushedBatches(t *testing.T) {
	s := startTestServer(t, ServerConfig{BatchSize: 2, Seed: 2})
	s.Register("a", 1)
	s.Register("b", 1)

	c := dialTestClient(t, s, 0)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.node.Peers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.PushRewards(); err != nil {
		t.Fatalf("PushRewards: %v", err)
	}

	for c.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}

	if _, uids, err := c.Evaluate(context.Background()); err != nil || len(uids) != 2 {
		t.Fatalf("Evaluate = %v, %v", uids, err)
	}

	if c.Pending() != 0 {
		t.Errorf("pending = %d after Evaluate, want 0", c.Pending())
	}
}

func TestAdmitFollowsParams(t *testing.T) {
	s := startTestServer(t, ServerConfig{Params: Params{MinAllowedWeights: 1, MaxWeightLimit: 0.5}})
	for _, id := range []string{"a", "b", "c"} {
		s.Register(id, 1)
	}

	c := dialTestClient(t, s, 0)
	in := []float64{0.8, 0.1, 0.1}

	_, out, err := c.Admit([]int{0, 1, 2}, in)
	if err != nil || !slices.Equal(out, in) {
		t.Fatalf("admit before snapshot = %v, %v; want pass-through", out, err)
	}

	if _, err := c.CurrentSnapshot(context.Background()); err != nil {
		t.Fatalf("CurrentSnapshot: %v", err)
	}

	_, out, err = c.Admit([]int{0, 1, 2}, in)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	for _, w := range out {
		if w > 0.5+1e-9 {
			t.Errorf("weight %v above limit: %v", w, out)
		}
	}
}

func TestSignerVerify(t *testing.T) {
	key := generateTestKey(t)

	a, err := NewSigner(key)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	b, _ := NewSigner(key)
	if !slices.Equal(a.PublicKey(), b.PublicKey()) {
		t.Error("BLS key derivation is not deterministic")
	}

	digest := SubmissionDigest(1, 2, []uint16{0, 1}, []uint16{100, 200})
	sig := a.Sign(digest[:])

	if !Verify(sig, digest[:], a.PublicKey()) {
		t.Error("valid signature rejected")
	}

	other := SubmissionDigest(1, 2, []uint16{0, 1}, []uint16{200, 100})
	if Verify(sig, other[:], a.PublicKey()) {
		t.Error("signature verified over different weights")
	}

	c, _ := NewSigner(generateTestKey(t))
	if Verify(sig, digest[:], c.PublicKey()) {
		t.Error("signature verified under another key")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	garbage := []byte{0xff, 0xff, 0xff, 0x7f, 1, 2, 3, 4}

	if _, err := decodeEnvelope(garbage); !errors.Is(err, ErrMalformed) {
		t.Errorf("envelope error = %v, want ErrMalformed", err)
	}

	if _, _, err := decodeTopology([]byte{1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("topology error = %v, want ErrMalformed", err)
	}

	if _, err := encodeRewards(rewardBatch{uids: []int{70000}, rewards: []float64{1}}); err == nil {
		t.Error("expected error encoding wide uid")
	}
}
