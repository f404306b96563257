// Package signer implements the Signer Driver: producing the recoverable
// ECDSA signature the payload composer attaches to a request, and the
// encrypted on-disk keystore that protects the underlying key at rest.
package signer

import (
	"github.com/Klingon-tech/in3go/internal/errs"
	"github.com/Klingon-tech/in3go/pkg/crypto"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// Signer is the interface internal/payload.Compose consumes.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
	Address() types.Address
}

// LocalSigner signs with a secp256k1 key held in process memory.
type LocalSigner struct {
	key *crypto.PrivateKey
}

// NewLocalSigner wraps an already-loaded private key.
func NewLocalSigner(key *crypto.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// Sign produces a 65-byte recoverable signature over digest.
func (s *LocalSigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errs.New(errs.InvalidArg, "signer: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := s.key.Sign(digest)
	if err != nil {
		return nil, errs.Wrap(errs.RPC, err, "signer: sign digest")
	}
	return sig, nil
}

// Address derives the signer's address from its public key.
func (s *LocalSigner) Address() types.Address {
	addr, ok := crypto.AddressFromPubKey(s.key.PublicKeyUncompressed())
	if !ok {
		return types.Address{}
	}
	return addr
}

// PublicKey returns the signer's compressed public key.
func (s *LocalSigner) PublicKey() []byte {
	return s.key.PublicKey()
}
