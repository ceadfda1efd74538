package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/network"
	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/types"
	"Scorekeeper/internal/weights"
)

// ServerConfig configures a simulated chain endpoint.
type ServerConfig struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the endpoint's QUIC identity
	ListenAddr string             // ListenAddr is the QUIC listen address
	NetUID     uint16             // NetUID is the only subnet accepted
	MaxSize    int                // MaxSize caps the topology; later registrations replace the lowest-stake uid
	BatchSize  int                // BatchSize is the number of uids rewarded per batch
	Params     Params             // Params are the published hyperparameters
	Seed       uint64             // Seed makes reward batches reproducible
}

// Server is a development ledger: it serves topology snapshots and reward
// batches and records verified weight submissions.
type Server struct {
	node   *network.Node
	netuid uint16
	max    int
	batch  int

	mu         sync.Mutex
	params     Params
	block      uint64
	identities []string
	stake      []float64
	trust      []float64
	lastUpdate []uint64
	committed  map[string]weights.Vector // committed maps hotkey hex to its latest weights
	blsKeys    map[string][]byte         // blsKeys pins the first BLS key seen per hotkey
	rng        *rand.Rand
	seq        uint64

	log *slog.Logger
}

// NewServer creates an endpoint with an empty topology.
func NewServer(cfg ServerConfig) (*Server, error) {
	node, err := network.NewNode(network.Config{
		PrivateKey: cfg.PrivateKey,
		ListenAddr: cfg.ListenAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("create node:\n%w", err)
	}

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}

	s := &Server{
		node:      node,
		netuid:    cfg.NetUID,
		max:       cfg.MaxSize,
		batch:     cfg.BatchSize,
		params:    cfg.Params,
		committed: make(map[string]weights.Vector),
		blsKeys:   make(map[string][]byte),
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		log:       logger.With("component", "chainsim"),
	}

	node.OnRequest(s.handleRequest)

	return s, nil
}

// Start begins serving.
func (s *Server) Start() error {
	return s.node.Start()
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.node.Addr()
}

// Close stops serving.
func (s *Server) Close() error {
	return s.node.Close()
}

// Register adds identity to the topology and returns its uid. When the
// topology is full the lowest-stake uid is replaced and replaced is true.
func (s *Server) Register(identity string, stake float64) (uid int, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.identities, identity); i >= 0 {
		return i, false
	}

	if len(s.identities) < s.max {
		s.identities = append(s.identities, identity)
		s.stake = append(s.stake, stake)
		s.trust = append(s.trust, 0)
		s.lastUpdate = append(s.lastUpdate, 0)

		return len(s.identities) - 1, false
	}

	uid = 0
	for i, v := range s.stake {
		if v < s.stake[uid] {
			uid = i
		}
	}

	delete(s.committed, s.identities[uid])

	s.identities[uid] = identity
	s.stake[uid] = stake
	s.trust[uid] = 0
	s.lastUpdate[uid] = s.block

	s.log.Info("uid replaced", "uid", uid, "block", s.block)

	return uid, true
}

// SetParams replaces the published hyperparameters.
func (s *Server) SetParams(p Params) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// Snapshot returns the topology at the current block.
func (s *Server) Snapshot() topology.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() topology.Snapshot {
	return topology.Snapshot{
		Block:      s.block,
		Identities: slices.Clone(s.identities),
		Metrics: topology.Metrics{
			Stake:      slices.Clone(s.stake),
			Trust:      slices.Clone(s.trust),
			LastUpdate: slices.Clone(s.lastUpdate),
		},
	}
}

// AdvanceBlock moves the chain head forward by one block.
func (s *Server) AdvanceBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.block++

	return s.block
}

// Committed returns the latest weights committed by hotkey.
func (s *Server) Committed(hotkey string) (weights.Vector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.committed[hotkey]
	return v, ok
}

// PushRewards broadcasts one reward batch to every connected validator.
func (s *Server) PushRewards() error {
	s.mu.Lock()
	b := s.nextBatchLocked()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if len(b.uids) == 0 {
		return nil
	}

	payload, err := encodeRewards(b)
	if err != nil {
		return err
	}

	return s.node.Broadcast(encodeEnvelope(envelope{
		id:      seq,
		kind:    types.MessageKindRewardsResponse,
		payload: payload,
	}))
}

// Run advances a block and pushes a reward batch every blockTime until ctx ends.
func (s *Server) Run(ctx context.Context, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			block := s.AdvanceBlock()

			if err := s.PushRewards(); err != nil {
				s.log.Debug("push rewards", "block", block, "error", err)
			}
		}
	}
}

// nextBatchLocked samples distinct uids and rewards them uniformly in [0, 1).
func (s *Server) nextBatchLocked() rewardBatch {
	n := len(s.identities)
	k := min(s.batch, n)

	uids := s.rng.Perm(n)[:k]
	rewards := make([]float64, k)

	for i, uid := range uids {
		rewards[i] = s.rng.Float64()
		s.trust[uid] = 0.9*s.trust[uid] + 0.1*rewards[i]
	}

	return rewardBatch{uids: uids, rewards: rewards}
}

// handleRequest answers one envelope. Failures are reported in-band.
func (s *Server) handleRequest(peer *network.Peer, data []byte) ([]byte, error) {
	req, err := decodeEnvelope(data)
	if err != nil {
		return encodeEnvelope(envelope{kind: types.MessageKindError, err: err.Error()}), nil
	}

	kind, payload, err := s.dispatch(peer, req)
	if err != nil {
		s.log.Debug("request failed", "kind", req.kind, "error", err)
		return encodeEnvelope(envelope{id: req.id, kind: types.MessageKindError, err: err.Error()}), nil
	}

	return encodeEnvelope(envelope{id: req.id, kind: kind, payload: payload}), nil
}

func (s *Server) dispatch(peer *network.Peer, req envelope) (types.MessageKind, []byte, error) {
	switch req.kind {
	case types.MessageKindTopologyRequest:
		s.mu.Lock()
		snap, params := s.snapshotLocked(), s.params
		s.mu.Unlock()

		return types.MessageKindTopologyResponse, encodeTopology(snap, params), nil

	case types.MessageKindRewardsRequest:
		s.mu.Lock()
		b := s.nextBatchLocked()
		s.mu.Unlock()

		payload, err := encodeRewards(b)
		return types.MessageKindRewardsResponse, payload, err

	case types.MessageKindSubmitWeights:
		sub, err := decodeSubmission(req.payload)
		if err != nil {
			return 0, nil, err
		}

		return types.MessageKindSubmitResult, encodeSubmitResult(s.commit(peer.PublicKey(), sub)), nil

	default:
		return 0, nil, fmt.Errorf("unsupported request %s", req.kind)
	}
}

// commit validates and records a submission.
func (s *Server) commit(sender ed25519.PublicKey, sub submission) submitResult {
	reject := func(format string, args ...any) submitResult {
		return submitResult{message: fmt.Sprintf(format, args...)}
	}

	if !bytes.Equal(sub.hotkey, sender) {
		return reject("hotkey does not match connection identity")
	}

	if sub.netuid != s.netuid {
		return reject("unknown netuid %d", sub.netuid)
	}

	if len(sub.uids) != len(sub.weights) {
		return reject("%d uids, %d weights", len(sub.uids), len(sub.weights))
	}

	digest := SubmissionDigest(sub.netuid, sub.version, sub.uids, sub.weights)
	if !Verify(sub.signature, digest[:], sub.blsPubkey) {
		return reject("invalid signature")
	}

	hotkey := hex.EncodeToString(sub.hotkey)

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := slices.Index(s.identities, hotkey)
	if uid < 0 {
		return reject("hotkey not registered")
	}

	if pinned, ok := s.blsKeys[hotkey]; ok && !bytes.Equal(pinned, sub.blsPubkey) {
		return reject("BLS key changed")
	}

	if sub.version < s.params.VersionKey {
		return reject("version %d below %d", sub.version, s.params.VersionKey)
	}

	total := 0
	for i, u := range sub.uids {
		if int(u) >= len(s.identities) {
			return reject("uid %d out of range", u)
		}
		total += int(sub.weights[i])
	}

	if total > weights.MaxWeight {
		return reject("weights sum to %d", total)
	}

	if need := min(s.params.MinAllowedWeights, len(s.identities)); len(sub.uids) < need {
		return reject("%d weights, need %d", len(sub.uids), need)
	}

	s.blsKeys[hotkey] = bytes.Clone(sub.blsPubkey)
	s.committed[hotkey] = weights.Vector{UIDs: slices.Clone(sub.uids), Weights: slices.Clone(sub.weights)}
	s.lastUpdate[uid] = s.block

	s.log.Info("weights committed", "uid", uid, "block", s.block, "entries", len(sub.uids))

	return submitResult{success: true, block: s.block}
}
