package chain

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// BLSPublicKeySize is the size of a compressed BLS public key in bytes.
	BLSPublicKeySize = 48

	// BLSSignatureSize is the size of a compressed BLS signature in bytes.
	BLSSignatureSize = 96
)

var (
	// blsDST is the domain separation tag for BLS signatures.
	blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

	keygenContext = []byte("scorekeeper-bls-keygen")
	digestContext = []byte("scorekeeper-weights-v1")
)

// Signer signs weight submissions with a BLS key bound to the hotkey.
type Signer struct {
	secret *blst.SecretKey
	public *blst.P1Affine
}

// NewSigner derives a deterministic BLS key from an ed25519 hotkey via
// BLAKE3(context || seed).
func NewSigner(hotkey ed25519.PrivateKey) (*Signer, error) {
	h := blake3.New()
	h.Write(keygenContext)
	h.Write(hotkey.Seed())

	var ikm [32]byte
	h.Sum(ikm[:0])

	secret := blst.KeyGen(ikm[:])
	if secret == nil {
		return nil, fmt.Errorf("derive BLS key")
	}

	return &Signer{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// PublicKey returns the compressed public key.
func (s *Signer) PublicKey() []byte {
	return s.public.Compress()
}

// Sign signs message.
func (s *Signer) Sign(message []byte) []byte {
	return new(blst.P2Affine).Sign(s.secret, message, blsDST).Compress()
}

// Verify checks a compressed signature over message against a compressed public key.
func Verify(signature, message, publicKey []byte) bool {
	if len(signature) != BLSSignatureSize || len(publicKey) != BLSPublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, blsDST)
}

// SubmissionDigest is the message signed for a weight submission.
// Format: context + netuid (2) + version (8) + n (4) + n uids (2 each) + n weights (2 each).
func SubmissionDigest(netuid uint16, version uint64, uids, weights []uint16) [32]byte {
	h := blake3.New()
	h.Write(digestContext)

	var buf [8]byte
	binary.BigEndian.PutUint16(buf[:2], netuid)
	h.Write(buf[:2])

	binary.BigEndian.PutUint64(buf[:], version)
	h.Write(buf[:])

	binary.BigEndian.PutUint32(buf[:4], uint32(len(uids)))
	h.Write(buf[:4])

	for _, u := range uids {
		binary.BigEndian.PutUint16(buf[:2], u)
		h.Write(buf[:2])
	}

	for _, w := range weights {
		binary.BigEndian.PutUint16(buf[:2], w)
		h.Write(buf[:2])
	}

	var out [32]byte
	h.Sum(out[:0])

	return out
}
