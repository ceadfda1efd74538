package chain

import (
	"errors"
	"fmt"
	"math"

	flatbuffers "github.com/google/flatbuffers/go"

	"Scorekeeper/internal/topology"
	"Scorekeeper/internal/types"
)

// ErrMalformed is returned when a message cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Params are the ledger hyperparameters published with each topology.
type Params struct {
	MinAllowedWeights int     // MinAllowedWeights is the fewest non-zero weights a submission may carry
	MaxWeightLimit    float64 // MaxWeightLimit caps any single normalized weight
	VersionKey        uint64  // VersionKey is the minimum submission version the ledger accepts
}

// envelope frames every request, response and pushed message.
type envelope struct {
	id      uint64
	kind    types.MessageKind
	payload []byte
	err     string
}

// rewardBatch is one evaluation result pushed or served by the chain.
type rewardBatch struct {
	uids    []int
	rewards []float64
}

// submission is a signed weight vector.
type submission struct {
	netuid    uint16
	version   uint64
	uids      []uint16
	weights   []uint16
	hotkey    []byte
	blsPubkey []byte
	signature []byte
}

type submitResult struct {
	success bool
	message string
	block   uint64
}

// guard turns an accessor panic on a corrupt buffer into an error.
func guard(what string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrMalformed, what, r)
	}
}

func checkRoot(what string, data []byte) error {
	if len(data) < flatbuffers.SizeUOffsetT {
		return fmt.Errorf("%w: %s: %d bytes", ErrMalformed, what, len(data))
	}
	return nil
}

func encodeEnvelope(e envelope) []byte {
	builder := flatbuffers.NewBuilder(64 + len(e.payload))

	var payload, errMsg flatbuffers.UOffsetT
	if e.payload != nil {
		payload = builder.CreateByteVector(e.payload)
	}
	if e.err != "" {
		errMsg = builder.CreateString(e.err)
	}

	types.EnvelopeStart(builder)
	types.EnvelopeAddRequestId(builder, e.id)
	types.EnvelopeAddKind(builder, e.kind)
	if e.payload != nil {
		types.EnvelopeAddPayload(builder, payload)
	}
	if e.err != "" {
		types.EnvelopeAddError(builder, errMsg)
	}
	builder.Finish(types.EnvelopeEnd(builder))

	return builder.FinishedBytes()
}

func decodeEnvelope(data []byte) (e envelope, err error) {
	if err := checkRoot("envelope", data); err != nil {
		return envelope{}, err
	}
	defer guard("envelope", &err)

	msg := types.GetRootAsEnvelope(data, 0)

	return envelope{
		id:      msg.RequestId(),
		kind:    msg.Kind(),
		payload: msg.PayloadBytes(),
		err:     string(msg.Error()),
	}, nil
}

func encodeTopology(s topology.Snapshot, p Params) []byte {
	builder := flatbuffers.NewBuilder(256 + 64*len(s.Identities))

	ids := make([]flatbuffers.UOffsetT, len(s.Identities))
	for i, id := range s.Identities {
		ids[i] = builder.CreateString(id)
	}

	types.TopologyStartIdentitiesVector(builder, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(ids[i])
	}
	identities := builder.EndVector(len(ids))

	stake := float64Vector(builder, s.Metrics.Stake)
	trust := float64Vector(builder, s.Metrics.Trust)

	types.TopologyStartLastUpdateVector(builder, len(s.Metrics.LastUpdate))
	for i := len(s.Metrics.LastUpdate) - 1; i >= 0; i-- {
		builder.PrependUint64(s.Metrics.LastUpdate[i])
	}
	lastUpdate := builder.EndVector(len(s.Metrics.LastUpdate))

	minAllowed := p.MinAllowedWeights
	if minAllowed > math.MaxUint16 {
		minAllowed = math.MaxUint16
	}

	types.TopologyStart(builder)
	types.TopologyAddBlock(builder, s.Block)
	types.TopologyAddIdentities(builder, identities)
	types.TopologyAddStake(builder, stake)
	types.TopologyAddTrust(builder, trust)
	types.TopologyAddLastUpdate(builder, lastUpdate)
	types.TopologyAddMinAllowedWeights(builder, uint16(max(minAllowed, 0)))
	types.TopologyAddMaxWeightLimit(builder, p.MaxWeightLimit)
	types.TopologyAddVersionKey(builder, p.VersionKey)
	builder.Finish(types.TopologyEnd(builder))

	return builder.FinishedBytes()
}

func decodeTopology(data []byte) (s topology.Snapshot, p Params, err error) {
	if err := checkRoot("topology", data); err != nil {
		return topology.Snapshot{}, Params{}, err
	}
	defer guard("topology", &err)

	msg := types.GetRootAsTopology(data, 0)

	s.Block = msg.Block()

	s.Identities = make([]string, msg.IdentitiesLength())
	for i := range s.Identities {
		s.Identities[i] = string(msg.Identities(i))
	}

	s.Metrics.Stake = make([]float64, msg.StakeLength())
	for i := range s.Metrics.Stake {
		s.Metrics.Stake[i] = msg.Stake(i)
	}

	s.Metrics.Trust = make([]float64, msg.TrustLength())
	for i := range s.Metrics.Trust {
		s.Metrics.Trust[i] = msg.Trust(i)
	}

	s.Metrics.LastUpdate = make([]uint64, msg.LastUpdateLength())
	for i := range s.Metrics.LastUpdate {
		s.Metrics.LastUpdate[i] = msg.LastUpdate(i)
	}

	p = Params{
		MinAllowedWeights: int(msg.MinAllowedWeights()),
		MaxWeightLimit:    msg.MaxWeightLimit(),
		VersionKey:        msg.VersionKey(),
	}

	return s, p, nil
}

func encodeRewards(b rewardBatch) ([]byte, error) {
	if len(b.uids) != len(b.rewards) {
		return nil, fmt.Errorf("reward batch: %d uids, %d rewards", len(b.uids), len(b.rewards))
	}

	builder := flatbuffers.NewBuilder(32 + 10*len(b.uids))

	types.RewardBatchStartUidsVector(builder, len(b.uids))
	for i := len(b.uids) - 1; i >= 0; i-- {
		if b.uids[i] < 0 || b.uids[i] > math.MaxUint16 {
			return nil, fmt.Errorf("reward batch: uid %d does not fit the wire format", b.uids[i])
		}
		builder.PrependUint16(uint16(b.uids[i]))
	}
	uids := builder.EndVector(len(b.uids))

	rewards := float64Vector(builder, b.rewards)

	types.RewardBatchStart(builder)
	types.RewardBatchAddUids(builder, uids)
	types.RewardBatchAddRewards(builder, rewards)
	builder.Finish(types.RewardBatchEnd(builder))

	return builder.FinishedBytes(), nil
}

func decodeRewards(data []byte) (b rewardBatch, err error) {
	if err := checkRoot("reward batch", data); err != nil {
		return rewardBatch{}, err
	}
	defer guard("reward batch", &err)

	msg := types.GetRootAsRewardBatch(data, 0)

	b.uids = make([]int, msg.UidsLength())
	for i := range b.uids {
		b.uids[i] = int(msg.Uids(i))
	}

	b.rewards = make([]float64, msg.RewardsLength())
	for i := range b.rewards {
		b.rewards[i] = msg.Rewards(i)
	}

	return b, nil
}

func encodeSubmission(s submission) []byte {
	builder := flatbuffers.NewBuilder(256 + 4*len(s.uids))

	uids := uint16Vector(builder, s.uids)
	weights := uint16Vector(builder, s.weights)
	hotkey := builder.CreateByteVector(s.hotkey)
	blsPubkey := builder.CreateByteVector(s.blsPubkey)
	signature := builder.CreateByteVector(s.signature)

	types.WeightSubmissionStart(builder)
	types.WeightSubmissionAddNetuid(builder, s.netuid)
	types.WeightSubmissionAddVersionKey(builder, s.version)
	types.WeightSubmissionAddUids(builder, uids)
	types.WeightSubmissionAddWeights(builder, weights)
	types.WeightSubmissionAddHotkey(builder, hotkey)
	types.WeightSubmissionAddBlsPubkey(builder, blsPubkey)
	types.WeightSubmissionAddSignature(builder, signature)
	builder.Finish(types.WeightSubmissionEnd(builder))

	return builder.FinishedBytes()
}

func decodeSubmission(data []byte) (s submission, err error) {
	if err := checkRoot("submission", data); err != nil {
		return submission{}, err
	}
	defer guard("submission", &err)

	msg := types.GetRootAsWeightSubmission(data, 0)

	s.netuid = msg.Netuid()
	s.version = msg.VersionKey()

	s.uids = make([]uint16, msg.UidsLength())
	for i := range s.uids {
		s.uids[i] = msg.Uids(i)
	}

	s.weights = make([]uint16, msg.WeightsLength())
	for i := range s.weights {
		s.weights[i] = msg.Weights(i)
	}

	s.hotkey = msg.HotkeyBytes()
	s.blsPubkey = msg.BlsPubkeyBytes()
	s.signature = msg.SignatureBytes()

	return s, nil
}

func encodeSubmitResult(r submitResult) []byte {
	builder := flatbuffers.NewBuilder(64 + len(r.message))

	message := builder.CreateString(r.message)

	types.SubmitResultStart(builder)
	types.SubmitResultAddSuccess(builder, r.success)
	types.SubmitResultAddMessage(builder, message)
	types.SubmitResultAddBlock(builder, r.block)
	builder.Finish(types.SubmitResultEnd(builder))

	return builder.FinishedBytes()
}

func decodeSubmitResult(data []byte) (r submitResult, err error) {
	if err := checkRoot("submit result", data); err != nil {
		return submitResult{}, err
	}
	defer guard("submit result", &err)

	msg := types.GetRootAsSubmitResult(data, 0)

	return submitResult{
		success: msg.Success(),
		message: string(msg.Message()),
		block:   msg.Block(),
	}, nil
}

func float64Vector(builder *flatbuffers.Builder, v []float64) flatbuffers.UOffsetT {
	builder.StartVector(8, len(v), 8)
	for i := len(v) - 1; i >= 0; i-- {
		builder.PrependFloat64(v[i])
	}
	return builder.EndVector(len(v))
}

func uint16Vector(builder *flatbuffers.Builder, v []uint16) flatbuffers.UOffsetT {
	builder.StartVector(2, len(v), 2)
	for i := len(v) - 1; i >= 0; i-- {
		builder.PrependUint16(v[i])
	}
	return builder.EndVector(len(v))
}
