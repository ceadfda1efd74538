package integration

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"Scorekeeper/client"
	"Scorekeeper/internal/api"
	"Scorekeeper/internal/chain"
	"Scorekeeper/internal/checkpoint"
	"Scorekeeper/internal/score"
	"Scorekeeper/internal/storage"
	"Scorekeeper/internal/validator"
)

// Harness runs a development chain and validators against it in-process.
type Harness struct {
	t       *testing.T
	Chain   *chain.Server      // Chain is the development ledger
	hotkey  ed25519.PrivateKey // hotkey is the validator identity registered on the chain
	dataDir string             // dataDir holds the validator's checkpoints
}

// harnessOpts configures a Harness.
type harnessOpts struct {
	miners    int
	blockTime time.Duration
	params    chain.Params
}

// HarnessOption configures a Harness.
type HarnessOption func(*harnessOpts)

// WithMiners sets the number of synthetic identities.
func WithMiners(n int) HarnessOption { return func(o *harnessOpts) { o.miners = n } }

// WithBlockTime sets the chain block period.
func WithBlockTime(d time.Duration) HarnessOption { return func(o *harnessOpts) { o.blockTime = d } }

// WithParams sets the published hyperparameters.
func WithParams(p chain.Params) HarnessOption { return func(o *harnessOpts) { o.params = p } }

// NewHarness starts a chain with synthetic miners and registers a fresh
// validator hotkey after them.
func NewHarness(t *testing.T, options ...HarnessOption) *Harness {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	opts := harnessOpts{
		miners:    8,
		blockTime: 20 * time.Millisecond,
		params:    chain.Params{MinAllowedWeights: 1, MaxWeightLimit: 1},
	}
	for _, o := range options {
		o(&opts)
	}

	chainKey := newKey(t)
	hotkey := newKey(t)

	srv, err := chain.NewServer(chain.ServerConfig{
		PrivateKey: chainKey,
		ListenAddr: "127.0.0.1:0",
		NetUID:     1,
		BatchSize:  4,
		Params:     opts.params,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}

	for i := range opts.miners {
		srv.Register(fmt.Sprintf("%064x", i+1), float64(i+1))
	}
	srv.Register(hex.EncodeToString(hotkey.Public().(ed25519.PublicKey)), 1000)

	if err := srv.Start(); err != nil {
		t.Fatalf("start chain: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		srv.Run(ctx, opts.blockTime)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return &Harness{t: t, Chain: srv, hotkey: hotkey, dataDir: t.TempDir()}
}

// Hotkey returns the registered validator identity.
func (h *Harness) Hotkey() string {
	return hex.EncodeToString(h.hotkey.Public().(ed25519.PublicKey))
}

// Node is one running validator with its status API.
type Node struct {
	Validator *validator.Validator // Validator is the run loop
	api       *api.Server          // api serves the status endpoints
	link      *chain.Client        // link is the chain connection
	db        *storage.Storage     // db holds checkpoints
	stopped   bool                 // stopped is set once Stop ran
}

// StartValidator wires a validator and starts its run loop.
func (h *Harness) StartValidator(cfg validator.Config) *Node {
	h.t.Helper()

	n := h.NewValidator(cfg)
	n.Validator.Start()

	return n
}

// NewValidator wires a stopped validator the way cmd/validator does,
// restoring the newest checkpoint. Validators of one harness share a data
// directory.
func (h *Harness) NewValidator(cfg validator.Config) *Node {
	h.t.Helper()

	db, err := storage.New(h.dataDir)
	if err != nil {
		h.t.Fatalf("open storage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	link, err := chain.Dial(ctx, chain.ClientConfig{
		PrivateKey: h.hotkey,
		ChainAddr:  h.Chain.Addr(),
		NetUID:     1,
	})
	if err != nil {
		db.Close()
		h.t.Fatalf("dial chain: %v", err)
	}

	initial, err := link.CurrentSnapshot(ctx)
	if err != nil {
		h.t.Fatalf("fetch topology: %v", err)
	}

	scores, err := score.New(initial.Len(), 0.2)
	if err != nil {
		h.t.Fatalf("score store: %v", err)
	}

	ckpt := checkpoint.NewStore(db, 3)
	cfg.Hotkey = link.Hotkey()

	v, err := validator.New(cfg, validator.Deps{
		Scores:      scores,
		Source:      link,
		Evaluator:   link,
		Ledger:      link,
		Checkpoints: ckpt,
	}, initial)
	if err != nil {
		h.t.Fatalf("create validator: %v", err)
	}

	if st, err := ckpt.Load(); err == nil {
		v.Restore(st)
	}

	srv := api.New("127.0.0.1:0", v, nil)
	if err := srv.Start(); err != nil {
		h.t.Fatalf("start api: %v", err)
	}

	n := &Node{Validator: v, api: srv, link: link, db: db}
	h.t.Cleanup(n.Stop)

	return n
}

// Client returns an HTTP client for the node's status API.
func (n *Node) Client() *client.Client {
	return client.NewClient(n.api.Addr())
}

// Stop halts the loop, saves a final checkpoint and releases resources.
// Later calls are no-ops.
func (n *Node) Stop() {
	if n.stopped {
		return
	}
	n.stopped = true

	n.api.Stop()
	n.Validator.Stop(5 * time.Second)
	n.Validator.Wait()
	n.Validator.TryCheckpoint(5 * time.Second)
	n.link.Close()
	n.db.Close()
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
