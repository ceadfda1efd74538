package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Scorekeeper/internal/types"
)

const (
	// formatVersion is the current checkpoint format version.
	formatVersion = 1

	checksumSize = 32
)

var (
	// ErrChecksum is returned when a decoded checkpoint does not match its checksum.
	ErrChecksum = errors.New("checkpoint checksum mismatch")

	// ErrVersion is returned for checkpoints written by an unknown format version.
	ErrVersion = errors.New("unsupported checkpoint version")
)

// State is the persisted validator state.
type State struct {
	Step       uint64    // Step is the number of completed loop steps
	Scores     []float64 // Scores is the score vector indexed by uid
	Identities []string  // Identities is the topology baseline the scores refer to
}

// Encode serializes s into a compressed, checksummed checkpoint.
func Encode(s State) ([]byte, error) {
	raw := build(s)

	compressed, err := compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress checkpoint:\n%w", err)
	}

	return compressed, nil
}

// Decode reverses Encode. Corrupt or tampered data returns an error.
func Decode(data []byte) (State, error) {
	raw, err := decompress(data)
	if err != nil {
		return State{}, fmt.Errorf("decompress checkpoint:\n%w", err)
	}

	return parse(raw)
}

// build creates the FlatBuffers table with its checksum.
func build(s State) []byte {
	checksum := computeChecksum(formatVersion, s)

	builder := flatbuffers.NewBuilder(64 + 8*len(s.Scores) + 16*len(s.Identities))

	idOffsets := make([]flatbuffers.UOffsetT, len(s.Identities))
	for i, id := range s.Identities {
		idOffsets[i] = builder.CreateString(id)
	}

	types.CheckpointStartIdentitiesVector(builder, len(idOffsets))
	for i := len(idOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(idOffsets[i])
	}
	identities := builder.EndVector(len(idOffsets))

	types.CheckpointStartScoresVector(builder, len(s.Scores))
	for i := len(s.Scores) - 1; i >= 0; i-- {
		builder.PrependFloat64(s.Scores[i])
	}
	scores := builder.EndVector(len(s.Scores))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.CheckpointStart(builder)
	types.CheckpointAddVersion(builder, formatVersion)
	types.CheckpointAddStep(builder, s.Step)
	types.CheckpointAddScores(builder, scores)
	types.CheckpointAddIdentities(builder, identities)
	types.CheckpointAddChecksum(builder, checksumOffset)
	offset := types.CheckpointEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// parse reads a checkpoint table and verifies its checksum.
func parse(raw []byte) (s State, err error) {
	if len(raw) < flatbuffers.SizeUOffsetT {
		return State{}, fmt.Errorf("checkpoint too short: %d bytes", len(raw))
	}

	// Out-of-bounds offsets in a corrupt buffer panic inside the accessors.
	defer func() {
		if r := recover(); r != nil {
			s, err = State{}, fmt.Errorf("malformed checkpoint: %v", r)
		}
	}()

	cp := types.GetRootAsCheckpoint(raw, 0)

	if v := cp.Version(); v != formatVersion {
		return State{}, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	s.Step = cp.Step()

	s.Scores = make([]float64, cp.ScoresLength())
	for i := range s.Scores {
		s.Scores[i] = cp.Scores(i)
	}

	s.Identities = make([]string, cp.IdentitiesLength())
	for i := range s.Identities {
		s.Identities[i] = string(cp.Identities(i))
	}

	stored := cp.ChecksumBytes()
	if len(stored) != checksumSize {
		return State{}, fmt.Errorf("%w: checksum length %d", ErrChecksum, len(stored))
	}

	computed := computeChecksum(cp.Version(), s)
	if !bytes.Equal(stored, computed[:]) {
		return State{}, ErrChecksum
	}

	return s, nil
}

// computeChecksum hashes the canonical fields.
// Format: version (4) + step (8) + n scores (4) + scores as IEEE bits (8 each)
// + n identities (4) + each identity as u32 len + bytes.
func computeChecksum(version uint32, s State) [checksumSize]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], s.Step)
	hasher.Write(buf[:])

	binary.BigEndian.PutUint32(buf[:4], uint32(len(s.Scores)))
	hasher.Write(buf[:4])

	for _, v := range s.Scores {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		hasher.Write(buf[:])
	}

	binary.BigEndian.PutUint32(buf[:4], uint32(len(s.Identities)))
	hasher.Write(buf[:4])

	for _, id := range s.Identities {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(id)))
		hasher.Write(buf[:4])
		hasher.Write([]byte(id))
	}

	var sum [checksumSize]byte
	hasher.Sum(sum[:0])

	return sum
}

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
