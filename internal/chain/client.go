// Package chain connects the validator to the ledger: topology snapshots,
// the reward feed and signed weight submissions, all over a QUIC link.
package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/network"
	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/types"
	"Scorekeeper/internal/weights"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRewardBuffer   = 64
)

var (
	// ErrDisconnected is returned while the chain link is down.
	ErrDisconnected = errors.New("chain link down")

	// ErrRemote wraps an error reported by the chain endpoint.
	ErrRemote = errors.New("chain error")

	// ErrRejected is returned when the ledger refuses a submission.
	ErrRejected = errors.New("submission rejected")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	PrivateKey     ed25519.PrivateKey // PrivateKey is the validator hotkey
	ChainAddr      string             // ChainAddr is the QUIC address of the chain endpoint
	NetUID         uint16             // NetUID selects the subnet weights are submitted to
	RequestTimeout time.Duration      // RequestTimeout bounds each request without its own deadline
	RewardBuffer   int                // RewardBuffer is how many pushed reward batches are queued
	RedialDelay    time.Duration      // RedialDelay is the initial backoff when the link drops
}

// Client is the validator side of the chain link. It serves as the
// TopologySource, the reward-feed evaluator and the Ledger of the run loop.
type Client struct {
	node    *network.Node
	netuid  uint16
	hotkey  ed25519.PublicKey
	signer  *Signer
	timeout time.Duration

	peer   atomic.Pointer[network.Peer]
	nextID atomic.Uint64
	params atomic.Pointer[Params]

	rewardsMu sync.Mutex
	rewards   []rewardBatch // rewards is the FIFO of pushed batches
	bufSize   int

	log *slog.Logger
}

// Dial connects to the chain endpoint.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	signer, err := NewSigner(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create signer:\n%w", err)
	}

	node, err := network.NewNode(network.Config{
		PrivateKey:  cfg.PrivateKey,
		RedialDelay: cfg.RedialDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("create node:\n%w", err)
	}

	c := &Client{
		node:    node,
		netuid:  cfg.NetUID,
		hotkey:  cfg.PrivateKey.Public().(ed25519.PublicKey),
		signer:  signer,
		timeout: cfg.RequestTimeout,
		bufSize: cfg.RewardBuffer,
		log:     logger.With("component", "chain"),
	}

	if c.timeout <= 0 {
		c.timeout = defaultRequestTimeout
	}
	if c.bufSize <= 0 {
		c.bufSize = defaultRewardBuffer
	}

	node.OnConnect(func(p *network.Peer) {
		c.peer.Store(p)
		c.log.Info("chain link restored", "addr", p.Address())
	})
	node.OnDisconnect(func(p *network.Peer) {
		c.log.Warn("chain link lost", "addr", p.Address())
	})
	node.OnMessage(c.handlePush)

	peer, err := node.Connect(ctx, cfg.ChainAddr)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("connect chain:\n%w", err)
	}

	c.peer.Store(peer)
	c.log.Info("chain link up", "addr", cfg.ChainAddr, "hotkey", c.Hotkey())

	return c, nil
}

// Hotkey returns the validator's identity as it appears in topology snapshots.
func (c *Client) Hotkey() string {
	return hex.EncodeToString(c.hotkey)
}

// Params returns the hyperparameters from the latest snapshot.
func (c *Client) Params() (Params, bool) {
	p := c.params.Load()
	if p == nil {
		return Params{}, false
	}
	return *p, true
}

// Close tears down the link.
func (c *Client) Close() error {
	return c.node.Close()
}

// CurrentSnapshot fetches the topology at the chain head.
func (c *Client) CurrentSnapshot(ctx context.Context) (topology.Snapshot, error) {
	payload, err := c.request(ctx, types.MessageKindTopologyRequest, nil, types.MessageKindTopologyResponse)
	if err != nil {
		return topology.Snapshot{}, err
	}

	snap, params, err := decodeTopology(payload)
	if err != nil {
		return topology.Snapshot{}, err
	}

	c.params.Store(&params)

	return snap, nil
}

// Evaluate returns the next reward batch: the oldest pushed batch if one is
// queued, otherwise one requested from the chain.
func (c *Client) Evaluate(ctx context.Context) ([]float64, []int, error) {
	if b, ok := c.popReward(); ok {
		return b.rewards, b.uids, nil
	}

	payload, err := c.request(ctx, types.MessageKindRewardsRequest, nil, types.MessageKindRewardsResponse)
	if err != nil {
		return nil, nil, err
	}

	b, err := decodeRewards(payload)
	if err != nil {
		return nil, nil, err
	}

	return b.rewards, b.uids, nil
}

// Admit applies the ledger's weight limits from the latest snapshot.
// Before any snapshot has been seen every weight is admitted.
func (c *Client) Admit(uids []int, w []float64) ([]int, []float64, error) {
	p, ok := c.Params()
	if !ok {
		return uids, w, nil
	}

	return weights.LimitFilter{
		MinAllowedWeights: p.MinAllowedWeights,
		MaxWeightLimit:    p.MaxWeightLimit,
	}.Admit(uids, w)
}

// Submit signs v and commits it to the ledger.
func (c *Client) Submit(ctx context.Context, v weights.Vector) error {
	p, _ := c.Params()

	digest := SubmissionDigest(c.netuid, p.VersionKey, v.UIDs, v.Weights)

	req := encodeSubmission(submission{
		netuid:    c.netuid,
		version:   p.VersionKey,
		uids:      v.UIDs,
		weights:   v.Weights,
		hotkey:    c.hotkey,
		blsPubkey: c.signer.PublicKey(),
		signature: c.signer.Sign(digest[:]),
	})

	payload, err := c.request(ctx, types.MessageKindSubmitWeights, req, types.MessageKindSubmitResult)
	if err != nil {
		return err
	}

	res, err := decodeSubmitResult(payload)
	if err != nil {
		return err
	}

	if !res.success {
		return fmt.Errorf("%w: %s", ErrRejected, res.message)
	}

	c.log.Debug("weights committed", "block", res.block, "entries", v.Len())

	return nil
}

// request performs one round trip and returns the response payload.
func (c *Client) request(ctx context.Context, kind types.MessageKind, payload []byte, want types.MessageKind) ([]byte, error) {
	peer := c.peer.Load()
	if peer == nil || peer.Closed() {
		return nil, ErrDisconnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.nextID.Add(1)

	raw, err := peer.Request(ctx, encodeEnvelope(envelope{id: id, kind: kind, payload: payload}))
	if err != nil {
		return nil, fmt.Errorf("%s:\n%w", kind, err)
	}

	resp, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	if resp.id != id {
		return nil, fmt.Errorf("%w: response id %d for request %d", ErrMalformed, resp.id, id)
	}

	if resp.kind == types.MessageKindError {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.err)
	}

	if resp.kind != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrMalformed, resp.kind, want)
	}

	return resp.payload, nil
}

// handlePush queues reward batches pushed by the chain. When the queue is
// full the oldest batch is dropped.
func (c *Client) handlePush(_ *network.Peer, data []byte) {
	msg, err := decodeEnvelope(data)
	if err != nil {
		c.log.Warn("drop pushed message", "error", err)
		return
	}

	if msg.kind != types.MessageKindRewardsResponse {
		c.log.Debug("ignore pushed message", "kind", msg.kind)
		return
	}

	b, err := decodeRewards(msg.payload)
	if err != nil {
		c.log.Warn("drop pushed rewards", "error", err)
		return
	}

	c.rewardsMu.Lock()
	defer c.rewardsMu.Unlock()

	if len(c.rewards) >= c.bufSize {
		c.rewards = c.rewards[1:]
		c.log.Debug("reward queue full, dropped oldest batch")
	}

	c.rewards = append(c.rewards, b)
}

func (c *Client) popReward() (rewardBatch, bool) {
	c.rewardsMu.Lock()
	defer c.rewardsMu.Unlock()

	if len(c.rewards) == 0 {
		return rewardBatch{}, false
	}

	b := c.rewards[0]
	c.rewards = c.rewards[1:]

	return b, true
}

// Pending returns the number of queued reward batches.
func (c *Client) Pending() int {
	c.rewardsMu.Lock()
	defer c.rewardsMu.Unlock()

	return len(c.rewards)
}
