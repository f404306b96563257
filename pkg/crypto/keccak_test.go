package crypto

import (
	"bytes"
	"testing"
)

func TestKeccak256_Deterministic(t *testing.T) {
	data := []byte("deterministic test input")
	h1 := Keccak256(data)
	h2 := Keccak256(data)
	if h1 != h2 {
		t.Errorf("Keccak256 is not deterministic: %x != %x", h1, h2)
	}
}

func TestKeccak256_DifferentInputs(t *testing.T) {
	h1 := Keccak256([]byte("input A"))
	h2 := Keccak256([]byte("input B"))
	if h1 == h2 {
		t.Error("different inputs produced the same hash")
	}
}

func TestKeccak256_MultiArgMatchesConcat(t *testing.T) {
	a, b := []byte("hello "), []byte("world")
	multi := Keccak256(a, b)
	concat := Keccak256(append(append([]byte{}, a...), b...))
	if multi != concat {
		t.Error("Keccak256(a, b) should equal Keccak256(concat(a, b))")
	}
}

func TestNewKeccakState_StreamingMatchesOneShot(t *testing.T) {
	parts := [][]byte{[]byte("id:1"), []byte("method:eth_call"), []byte("params:[]")}

	h := NewKeccakState()
	for _, p := range parts {
		h.Write(p)
	}
	var streamed [KeccakSize]byte
	h.Sum(streamed[:0])

	oneShot := Keccak256(parts...)
	if !bytes.Equal(streamed[:], oneShot[:]) {
		t.Error("streaming digest should match one-shot Keccak256 over the same parts")
	}
}
