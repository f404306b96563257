package crypto

import (
	"encoding/hex"

	"github.com/Klingon-tech/in3go/pkg/types"
	"github.com/zeebo/blake3"
)

// TraceIDSize is the length, in bytes, of a log correlation id.
const TraceIDSize = 8

// TraceID derives a short, non-cryptographic correlation id from payload
// bytes so a single Execute wave (payload -> transport -> verify) can be
// tied together across log lines without carrying a counter through every
// layer.
func TraceID(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:TraceIDSize])
}

// AddressFromPubKey derives an address from an uncompressed public key
// (the 0x04-prefixed 65-byte form). Address = last 20 bytes of
// Keccak256(pubkey[1:]).
func AddressFromPubKey(uncompressedPubKey []byte) (addr types.Address, ok bool) {
	if len(uncompressedPubKey) != 65 || uncompressedPubKey[0] != 0x04 {
		return addr, false
	}
	h := Keccak256(uncompressedPubKey[1:])
	copy(addr[:], h[len(h)-types.AddressSize:])
	return addr, true
}
