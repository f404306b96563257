package verify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

func testNodes(n int) []*nodelist.ChainNode {
	out := make([]*nodelist.ChainNode, n)
	for i := range out {
		var addr types.Address
		addr[0] = byte(i + 1)
		out[i] = &nodelist.ChainNode{
			Node:   nodelist.Node{Address: addr, URL: "http://node"},
			Weight: &nodelist.Weight{Weight: 1},
		}
	}
	return out
}

func oneRequest() []rpc.Request {
	return []rpc.Request{{ID: json.RawMessage(`1`), JSONRPC: rpc.Version, Method: "eth_blockNumber"}}
}

func okResponseBody() []byte {
	return []byte(`{"id":1,"jsonrpc":"2.0","result":"0x1"}`)
}

func TestMatch_FirstNodeSucceeds(t *testing.T) {
	nodes := testNodes(2)
	results := []NodeResult{
		{Body: okResponseBody()},
		{Pending: true},
	}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, time.Now())
	if res.Status != StatusOK {
		t.Fatalf("Status = %v, want StatusOK", res.Status)
	}
	if len(res.Responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(res.Responses))
	}
	if nodes[0].Weight.IsBlacklisted(time.Now()) {
		t.Error("successful node should not be blacklisted")
	}
}

func TestMatch_FirstNodeErrorsThenSecondSucceeds(t *testing.T) {
	now := time.Now()
	nodes := testNodes(2)
	results := []NodeResult{
		{Err: errBoom},
		{Body: okResponseBody()},
	}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, now)
	if res.Status != StatusOK {
		t.Fatalf("Status = %v, want StatusOK", res.Status)
	}
	if !nodes[0].Weight.IsBlacklisted(now) {
		t.Error("errored node should be blacklisted")
	}
	if nodes[1].Weight.IsBlacklisted(now) {
		t.Error("succeeding node should not be blacklisted")
	}
}

func TestMatch_AllPendingReturnsWaiting(t *testing.T) {
	nodes := testNodes(2)
	results := []NodeResult{{Pending: true}, {Pending: true}}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, time.Now())
	if res.Status != StatusWaiting {
		t.Fatalf("Status = %v, want StatusWaiting", res.Status)
	}
}

func TestMatch_AllFailInvalid(t *testing.T) {
	nodes := testNodes(2)
	results := []NodeResult{{Err: errBoom}, {Err: errBoom}}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, time.Now())
	if res.Status != StatusInvalid {
		t.Fatalf("Status = %v, want StatusInvalid", res.Status)
	}
}

func TestMatch_UserErrorDoesNotBlacklist(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	body := []byte(`{"id":1,"jsonrpc":"2.0","error":{"code":-32602,"message":"invalid params: bad address"}}`)
	results := []NodeResult{{Body: body}}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, now)
	if res.Status != StatusInvalid {
		t.Fatalf("Status = %v, want StatusInvalid", res.Status)
	}
	if nodes[0].Weight.IsBlacklisted(now) {
		t.Error("user-fault error response should not blacklist the node")
	}
}

func TestMatch_ServerFaultBlacklists(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	body := []byte(`{"id":1,"jsonrpc":"2.0","error":{"code":-32000,"message":"Error: internal node failure"}}`)
	results := []NodeResult{{Body: body}}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, now)
	if res.Status != StatusInvalid {
		t.Fatalf("Status = %v, want StatusInvalid", res.Status)
	}
	if !nodes[0].Weight.IsBlacklisted(now) {
		t.Error("server-fault error response should blacklist the node")
	}
}

func TestMatch_ShapeMismatchBlacklists(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	// Two-element array response for a single-request batch: wrong shape.
	results := []NodeResult{{Body: []byte(`[{"id":1,"jsonrpc":"2.0","result":"0x1"},{"id":2,"jsonrpc":"2.0","result":"0x2"}]`)}}

	res := Match(nodes, results, oneRequest(), NoopVerifier{}, nil, now)
	if res.Status != StatusInvalid {
		t.Fatalf("Status = %v, want StatusInvalid", res.Status)
	}
	if !nodes[0].Weight.IsBlacklisted(now) {
		t.Error("shape-mismatched response should blacklist the node")
	}
}

func TestMatch_VerifierRejectionBlacklists(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	results := []NodeResult{{Body: okResponseBody()}}

	res := Match(nodes, results, oneRequest(), alwaysRejectVerifier{}, nil, now)
	if res.Status != StatusInvalid {
		t.Fatalf("Status = %v, want StatusInvalid", res.Status)
	}
	if !nodes[0].Weight.IsBlacklisted(now) {
		t.Error("verifier rejection should blacklist the node")
	}
}

func TestMatch_VerifierWaitingBubblesUp(t *testing.T) {
	nodes := testNodes(1)
	results := []NodeResult{{Body: okResponseBody()}}

	res := Match(nodes, results, oneRequest(), alwaysWaitVerifier{}, nil, time.Now())
	if res.Status != StatusWaiting {
		t.Fatalf("Status = %v, want StatusWaiting", res.Status)
	}
}

func TestMatch_LengthMismatchIsInvalid(t *testing.T) {
	res := Match(testNodes(1), []NodeResult{{}, {}}, oneRequest(), NoopVerifier{}, nil, time.Now())
	if res.Status != StatusInvalid || res.Err == nil {
		t.Error("mismatched nodes/results length should be rejected")
	}
}

func TestMatch_RecordsLatency(t *testing.T) {
	nodes := testNodes(1)
	results := []NodeResult{{Body: okResponseBody(), Latency: 50 * time.Millisecond}}

	Match(nodes, results, oneRequest(), NoopVerifier{}, nil, time.Now())

	if nodes[0].Weight.AverageLatency() != 50*time.Millisecond {
		t.Errorf("AverageLatency() = %v, want 50ms", nodes[0].Weight.AverageLatency())
	}
}

func TestMatch_ServerFaultRejectsNodeForContext(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	results := []NodeResult{{Err: errBoom}}
	rejected := reputation.NewRejectedSet()

	Match(nodes, results, oneRequest(), NoopVerifier{}, rejected, now)

	if !rejected.IsRejected(nodes[0].Node.Address) {
		t.Error("a node that errors should be rejected for this context, not just blacklisted")
	}
}

func TestMatch_UserErrorDoesNotRejectForContext(t *testing.T) {
	now := time.Now()
	nodes := testNodes(1)
	body := []byte(`{"id":1,"jsonrpc":"2.0","error":{"code":-32602,"message":"invalid params: bad address"}}`)
	results := []NodeResult{{Body: body}}
	rejected := reputation.NewRejectedSet()

	Match(nodes, results, oneRequest(), NoopVerifier{}, rejected, now)

	if rejected.IsRejected(nodes[0].Node.Address) {
		t.Error("a user-fault response should not reject the node for this context")
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("eth"); ok {
		t.Error("empty registry should have no verifier for eth")
	}
	r.Register("eth", NoopVerifier{})
	v, ok := r.Lookup("eth")
	if !ok || v == nil {
		t.Error("expected registered verifier for eth")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

const errBoom = errString("boom")

type alwaysRejectVerifier struct{}

func (alwaysRejectVerifier) Verify(rpc.Request, rpc.Response, *rpc.In3ResponseMeta) Verdict {
	return VerdictError
}

type alwaysWaitVerifier struct{}

func (alwaysWaitVerifier) Verify(rpc.Request, rpc.Response, *rpc.In3ResponseMeta) Verdict {
	return VerdictWaiting
}
