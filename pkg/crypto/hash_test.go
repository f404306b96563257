package crypto

import "testing"

func TestTraceID_Deterministic(t *testing.T) {
	payload := []byte(`[{"id":1,"method":"eth_call"}]`)
	if TraceID(payload) != TraceID(payload) {
		t.Error("TraceID should be deterministic for identical payloads")
	}
}

func TestTraceID_DifferentPayloads(t *testing.T) {
	a := TraceID([]byte(`[{"id":1}]`))
	b := TraceID([]byte(`[{"id":2}]`))
	if a == b {
		t.Error("different payloads produced the same trace id")
	}
}

func TestTraceID_Length(t *testing.T) {
	id := TraceID([]byte("x"))
	if len(id) != TraceIDSize*2 {
		t.Errorf("TraceID length = %d, want %d hex chars", len(id), TraceIDSize*2)
	}
}

func TestAddressFromPubKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr, ok := AddressFromPubKey(key.PublicKeyUncompressed())
	if !ok {
		t.Fatal("AddressFromPubKey rejected a valid uncompressed public key")
	}
	if addr.IsZero() {
		t.Error("derived address should not be zero")
	}
}

func TestAddressFromPubKey_RejectsCompressed(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, ok := AddressFromPubKey(key.PublicKey()); ok {
		t.Error("AddressFromPubKey should reject a compressed (33-byte) public key")
	}
}
