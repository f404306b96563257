package types

import (
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}

	nonZero := Hash{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_String(t *testing.T) {
	var h Hash
	s := h.String()
	if !strings.HasPrefix(s, "0x") {
		t.Errorf("String() should start with 0x, got %s", s)
	}
	if s != "0x"+strings.Repeat("0", 64) {
		t.Errorf("zero hash String() = %s, want all zeros", s)
	}

	h[0] = 0xab
	h[31] = 0xcd
	s = h.String()
	if !strings.HasPrefix(s, "0xab") {
		t.Errorf("String() should start with '0xab', got %s", s[:4])
	}
	if !strings.HasSuffix(s, "cd") {
		t.Errorf("String() should end with 'cd', got %s", s[len(s)-2:])
	}
}

func TestHash_Bytes(t *testing.T) {
	h := Hash{0x01, 0x02, 0x03}
	b := h.Bytes()

	if len(b) != HashSize {
		t.Errorf("Bytes() length = %d, want %d", len(b), HashSize)
	}
	if b[0] != 0x01 || b[1] != 0x02 || b[2] != 0x03 {
		t.Errorf("Bytes() content mismatch")
	}

	b[0] = 0xFF
	if h[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestHexToHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "0x-prefixed", input: "0x" + strings.Repeat("a", 64)},
		{name: "bare hex", input: strings.Repeat("a", 64)},
		{name: "all zeros", input: "0x" + strings.Repeat("0", 64)},
		{name: "too short", input: "0xabcd", wantErr: true},
		{name: "too long", input: "0x" + strings.Repeat("a", 66), wantErr: true},
		{name: "invalid hex character", input: "0x" + strings.Repeat("g", 64), wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := HexToHash(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("HexToHash(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("HexToHash(%q) unexpected error: %v", tt.input, err)
			}
			if !strings.HasSuffix(tt.input, h.String()[2:]) {
				t.Errorf("roundtrip: got %s", h.String())
			}
		})
	}
}

func TestChainID_IsZero(t *testing.T) {
	var zero ChainID
	if !zero.IsZero() {
		t.Error("zero-value ChainID should be zero")
	}

	nonZero := ChainID{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero ChainID should not be zero")
	}
}

func TestChainID_String(t *testing.T) {
	c := ChainID{0xff}
	s := c.String()
	if !strings.HasPrefix(s, "0xff") {
		t.Errorf("ChainID.String() = %s, expected to start with '0xff'", s)
	}
}

func TestHexToChainID(t *testing.T) {
	c, err := HexToChainID("0x" + strings.Repeat("1", 64))
	if err != nil {
		t.Fatalf("HexToChainID: %v", err)
	}
	if c.IsZero() {
		t.Error("expected non-zero chain id")
	}
}
