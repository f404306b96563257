package reqctx

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Klingon-tech/in3go/internal/autoupdate"
	"github.com/Klingon-tech/in3go/internal/errs"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/nodeselector"
	"github.com/Klingon-tech/in3go/internal/payload"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/internal/verify"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// fixedSelector always returns whatever node list it was constructed with,
// ignoring filters, so tests can control exactly which nodes are "picked".
type fixedSelector struct {
	nodes []*nodelist.ChainNode
	err   error
}

func (f fixedSelector) Pick(chain *nodelist.Chain, n int, filter nodeselector.Filter, rejected reputation.RejectedSet) ([]*nodelist.ChainNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.nodes
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// scriptedTransport returns a canned body or error per node URL, so a test
// can simulate "first node errors, second succeeds".
type scriptedTransport struct {
	responses map[string][]byte
	errors    map[string]error
}

func (s *scriptedTransport) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	if err, ok := s.errors[url]; ok {
		return nil, err
	}
	return s.responses[url], nil
}

func testNodes(n int) []*nodelist.ChainNode {
	nodes := make([]*nodelist.ChainNode, n)
	for i := range nodes {
		var addr types.Address
		addr[0] = byte(i + 1)
		nodes[i] = &nodelist.ChainNode{
			Node:   nodelist.Node{Address: addr, URL: "http://node", Props: 0},
			Weight: &nodelist.Weight{Weight: 1},
		}
		nodes[i].Node.URL = "http://node" + string(rune('a'+i))
	}
	return nodes
}

func okBody(t *testing.T, id json.RawMessage) []byte {
	t.Helper()
	resp := rpc.Response{ID: id, JSONRPC: rpc.Version, Result: json.RawMessage(`"0x1"`)}
	b, err := json.Marshal([]rpc.Response{resp})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newClient() *nodelist.Client {
	return nodelist.NewClient(1, 3, 0, time.Second)
}

// ethRegistry returns a verifier registry with NoopVerifier registered for
// the "eth" chain-type tag used throughout these tests.
func ethRegistry() *verify.Registry {
	r := verify.NewRegistry()
	r.Register("eth", verify.NoopVerifier{})
	return r
}

func TestContext_HappyPath(t *testing.T) {
	client := newClient()
	nodes := testNodes(1)
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	chain.SetNodes([]nodelist.Node{nodes[0].Node}, 1)

	calls := []payload.Call{{Method: "eth_blockNumber"}}
	ctx := NewRPCContext(client, types.ChainID{1}, calls, payload.Options{},
		ethRegistry(), fixedSelector{nodes: chain.Snapshot()}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateWaiting {
		t.Fatalf("expected waiting after node pick, got %v (%v)", st.State, st.Err)
	}

	pending := ctx.PendingDispatch()
	if pending == nil {
		t.Fatal("expected a pending dispatch after picking nodes")
	}

	// Build the transport response using the actual composed request id.
	body := okBody(t, pickFirstRequestID(ctx))
	tr := &scriptedTransport{responses: map[string][]byte{chain.Snapshot()[0].Node.URL: body}}
	pending.Dispatch(context.Background(), tr)

	st = ctx.Execute(time.Now())
	if st.State != StateOK {
		t.Fatalf("expected ok, got %v (%v)", st.State, st.Err)
	}
	if len(ctx.Responses()) != 1 {
		t.Fatalf("expected 1 response, got %d", len(ctx.Responses()))
	}
}

func pickFirstRequestID(c *Context) json.RawMessage {
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[0].ID
}

func TestContext_FirstNodeFailsSecondSucceeds(t *testing.T) {
	client := newClient()
	client.RequestCount = 2
	nodes := testNodes(2)
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	rawNodes := []nodelist.Node{nodes[0].Node, nodes[1].Node}
	chain.SetNodes(rawNodes, 1)

	calls := []payload.Call{{Method: "eth_blockNumber"}}
	ctx := NewRPCContext(client, types.ChainID{1}, calls, payload.Options{},
		ethRegistry(), fixedSelector{nodes: chain.Snapshot()}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateWaiting {
		t.Fatalf("expected waiting, got %v", st.State)
	}
	pending := ctx.PendingDispatch()
	snap := chain.Snapshot()

	body := okBody(t, pickFirstRequestID(ctx))
	tr := &scriptedTransport{
		responses: map[string][]byte{snap[1].Node.URL: body},
		errors:    map[string]error{snap[0].Node.URL: errBoom},
	}
	pending.Dispatch(context.Background(), tr)

	st = ctx.Execute(time.Now())
	if st.State != StateOK {
		t.Fatalf("expected ok after failover, got %v (%v)", st.State, st.Err)
	}
	if !snap[0].Weight.IsBlacklisted(time.Now()) {
		t.Error("first node should be blacklisted after transport error")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

const errBoom = errString("boom")

func TestContext_AllNodesPendingStaysWaiting(t *testing.T) {
	client := newClient()
	nodes := testNodes(1)
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	chain.SetNodes([]nodelist.Node{nodes[0].Node}, 1)

	calls := []payload.Call{{Method: "eth_blockNumber"}}
	ctx := NewRPCContext(client, types.ChainID{1}, calls, payload.Options{},
		ethRegistry(), fixedSelector{nodes: chain.Snapshot()}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateWaiting {
		t.Fatalf("expected waiting before dispatch, got %v", st.State)
	}
	// Without a Dispatch call, the context should keep reporting waiting.
	st = ctx.Execute(time.Now())
	if st.State != StateWaiting {
		t.Fatalf("expected still waiting with no dispatch, got %v", st.State)
	}
}

func TestContext_MissingMethodIsConfigError(t *testing.T) {
	client := newClient()
	ctx := NewRPCContext(client, types.ChainID{1}, []payload.Call{{}}, payload.Options{},
		ethRegistry(), fixedSelector{}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateError {
		t.Fatalf("expected config error, got %v", st.State)
	}
}

func TestContext_UnknownChainIsNotFoundError(t *testing.T) {
	client := newClient()
	ctx := NewRPCContext(client, types.ChainID{9}, []payload.Call{{Method: "eth_blockNumber"}}, payload.Options{},
		ethRegistry(), fixedSelector{}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateError {
		t.Fatalf("expected error for an unregistered chain, got %v", st.State)
	}
	if !errs.Is(st.Err, errs.NotFound) {
		t.Errorf("expected a NotFound error, got %v", st.Err)
	}
}

func TestContext_UnknownVerifierTypeIsNotFoundError(t *testing.T) {
	client := newClient()
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "unregistered"
	chain.SetNodes(nil, 0)

	ctx := NewRPCContext(client, types.ChainID{1}, []payload.Call{{Method: "eth_blockNumber"}}, payload.Options{},
		ethRegistry(), fixedSelector{}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateError {
		t.Fatalf("expected error for an unregistered verifier type, got %v", st.State)
	}
	if !errs.Is(st.Err, errs.NotFound) {
		t.Errorf("expected a NotFound error, got %v", st.Err)
	}
}

func TestContext_SelectorErrorSurfaces(t *testing.T) {
	client := newClient()
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	chain.SetNodes(nil, 0)

	ctx := NewRPCContext(client, types.ChainID{1}, []payload.Call{{Method: "eth_blockNumber"}}, payload.Options{},
		ethRegistry(), fixedSelector{err: errBoom}, nil)

	st := ctx.Execute(time.Now())
	if st.State != StateError {
		t.Fatalf("expected error when selector fails, got %v", st.State)
	}
}

func TestContext_SignSubContext(t *testing.T) {
	driver := &stubSigner{sig: []byte{0xAA}}
	child := NewSignContext(driver, make([]byte, 32))

	st := child.Execute(time.Now())
	if st.State != StateOK {
		t.Fatalf("expected ok after signer produced a signature, got %v (%v)", st.State, st.Err)
	}
	if len(child.Signature()) != 1 || child.Signature()[0] != 0xAA {
		t.Error("signature not propagated from signer driver")
	}
}

type stubSigner struct {
	sig []byte
	err error
}

func (s *stubSigner) Sign(digest []byte) ([]byte, error) { return s.sig, s.err }
func (s *stubSigner) Address() types.Address             { return types.Address{} }

func TestContext_SubContextBlocksParent(t *testing.T) {
	client := newClient()
	parent := NewRPCContext(client, types.ChainID{1}, []payload.Call{{Method: "eth_call"}}, payload.Options{},
		ethRegistry(), fixedSelector{}, nil)

	driver := &stubSigner{err: errBoom}
	child := NewSignContext(driver, make([]byte, 32))
	st := parent.AddRequired(child, time.Now())
	if st.State != StateError {
		t.Fatalf("expected the sign sub-context to fail, got %v", st.State)
	}

	st = parent.Execute(time.Now())
	if st.State != StateError {
		t.Fatalf("parent should surface the required sub-context's error, got %v", st.State)
	}

	if found := parent.FindRequired("eth_call"); found != nil {
		t.Error("FindRequired should not match a sub-context's own method against the wrong method")
	}
}

func TestSend_GivesUpAfterTooManyNoProgressWaits(t *testing.T) {
	client := newClient()
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	chain.SetNodes(nil, 0)

	ctx := NewRPCContext(client, types.ChainID{1}, []payload.Call{{Method: "eth_blockNumber"}}, payload.Options{},
		ethRegistry(), fixedSelector{nodes: nil}, nil)
	// Force an always-empty selector result with no error: Pick returns
	// zero nodes and no error, which wedges executeRPC below the node-pick
	// branch forever since len(nodes) stays 0 and dispatch never happens... ensure Send still terminates.
	ctx.Filter = nodeselector.Filter{}

	st := Send(context.Background(), ctx, &scriptedTransport{}, time.Now)
	if st.State != StateError {
		t.Fatalf("expected Send to give up, got %v", st.State)
	}
}

func TestAutoUpdateTriggerObservedOnSuccess(t *testing.T) {
	client := newClient()
	nodes := testNodes(1)
	chain := client.Chain(types.ChainID{1})
	chain.VerifierType = "eth"
	chain.SetNodes([]nodelist.Node{nodes[0].Node}, 1)
	chain.LastBlock = 100

	trigger := autoupdate.NewTrigger(6, 15*time.Second)
	ctx := NewRPCContext(client, types.ChainID{1}, []payload.Call{{Method: "eth_blockNumber"}}, payload.Options{},
		ethRegistry(), fixedSelector{nodes: chain.Snapshot()}, trigger)

	ctx.Execute(time.Now())
	pending := ctx.PendingDispatch()
	snap := chain.Snapshot()

	resp := rpc.Response{
		ID:     pickFirstRequestID(ctx),
		Result: json.RawMessage(`"0x1"`),
		In3:    &rpc.In3ResponseMeta{LastNodeList: 105, CurrentBlock: 108},
	}
	body, _ := json.Marshal([]rpc.Response{resp})
	tr := &scriptedTransport{responses: map[string][]byte{snap[0].Node.URL: body}}
	pending.Dispatch(context.Background(), tr)

	st := ctx.Execute(time.Now())
	if st.State != StateOK {
		t.Fatalf("expected ok, got %v (%v)", st.State, st.Err)
	}
	if trigger.Pending() == nil {
		t.Error("expected the auto-update trigger to schedule a refresh from the response meta")
	}
}
