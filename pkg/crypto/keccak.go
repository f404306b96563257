// Package crypto provides the cryptographic primitives the client needs:
// a streaming Keccak-256 digest for the request-signing hash, ECDSA
// recoverable signatures over that digest, and a BLAKE3 helper for
// short correlation ids (TraceID).
package crypto

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// KeccakSize is the length of a Keccak-256 digest in bytes.
const KeccakSize = 32

// Keccak256 hashes data with Keccak-256 (the original, non-NIST padding —
// not SHA3-256).
func Keccak256(data ...[]byte) [KeccakSize]byte {
	h := NewKeccakState()
	for _, d := range data {
		h.Write(d)
	}
	var out [KeccakSize]byte
	h.Sum(out[:0])
	return out
}

// NewKeccakState returns a fresh streaming Keccak-256 hash. The payload
// composer feeds it the id, method, and params of every request in a batch
// in document order before the signer signs the resulting digest.
func NewKeccakState() hash.Hash {
	return sha3.NewLegacyKeccak256()
}
