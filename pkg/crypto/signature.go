package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize is the length of a recoverable ECDSA signature: R(32) ||
// S(32) || V(1), where V is the recovery id in {0,1,2,3}.
const SignatureSize = 65

// Signer signs a 32-byte digest with a secp256k1 private key, producing a
// recoverable ECDSA signature.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key for ECDSA signing over the
// request digest.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// Sign produces a 65-byte recoverable ECDSA signature over a 32-byte
// Keccak-256 digest: R(32) || S(32) || V(1).
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	// SignCompact returns [recoveryID+27][R(32)][S(32)]; reorder to the
	// R || S || V convention the wire format expects.
	compact := ecdsa.SignCompact(pk.key, hash, false)
	sig := make([]byte, SignatureSize)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = compact[0] - 27
	return sig, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// PublicKeyUncompressed returns the uncompressed 65-byte public key
// (0x04 || X || Y), the form addresses are derived from.
func (pk *PrivateKey) PublicKeyUncompressed() []byte {
	return pk.key.PubKey().SerializeUncompressed()
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// RecoverPublicKey recovers the compressed public key that produced sig
// over hash.
func RecoverPublicKey(hash, sig []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + 27
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}
	return pub.SerializeCompressed(), nil
}

// VerifySignature checks that sig (R || S || V) was produced by the holder
// of publicKey (compressed, 33 bytes) over hash. Returns false on any
// malformed input instead of an error, matching how the response matcher
// treats a failed verification as "not valid", not a hard error.
func VerifySignature(hash, sig, publicKey []byte) bool {
	recovered, err := RecoverPublicKey(hash, sig)
	if err != nil {
		return false
	}
	if len(recovered) != len(publicKey) {
		return false
	}
	for i := range recovered {
		if recovered[i] != publicKey[i] {
			return false
		}
	}
	return true
}
