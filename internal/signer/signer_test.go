package signer

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/in3go/pkg/crypto"
)

func TestLocalSigner_SignVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	s := NewLocalSigner(key)

	digest := bytes.Repeat([]byte{0xab}, 32)
	sig, err := s.Sign(digest)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(digest, sig, s.PublicKey()) {
		t.Error("signature should verify against signer's public key")
	}
}

func TestLocalSigner_Sign_WrongDigestLength(t *testing.T) {
	key, _ := crypto.GenerateKey()
	s := NewLocalSigner(key)

	if _, err := s.Sign([]byte{1, 2, 3}); err == nil {
		t.Error("Sign() with a non-32-byte digest should fail")
	}
}

func TestLocalSigner_Address_Deterministic(t *testing.T) {
	key, _ := crypto.GenerateKey()
	s := NewLocalSigner(key)

	a1 := s.Address()
	a2 := s.Address()
	if a1 != a2 {
		t.Error("Address() should be deterministic")
	}
	if a1.IsZero() {
		t.Error("derived address should not be zero")
	}
}

func TestLocalSigner_ImplementsInterface(t *testing.T) {
	var _ Signer = (*LocalSigner)(nil)
}
