// Package reqctx implements the Request Context & Executor (§4.A) and the
// Sub-Context Orchestrator (§4.I): the re-entrant state machine every other
// component plugs into. Execute is keyed on the content of the context
// (has it picked nodes yet? dispatched transport? verified a response?),
// not an explicit state enum, following the original in3_ctx_execute.
package reqctx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Klingon-tech/in3go/internal/autoupdate"
	"github.com/Klingon-tech/in3go/internal/errs"
	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/nodeselector"
	"github.com/Klingon-tech/in3go/internal/payload"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/internal/transport"
	"github.com/Klingon-tech/in3go/internal/verify"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// Type distinguishes the two context flavours from §4.A.
type Type int

const (
	// TypeRPC sends a request batch to a wave of nodes and verifies the
	// response.
	TypeRPC Type = iota
	// TypeSign asks the Signer driver to produce a signature; used for the
	// sub-contexts a verifier creates when it needs a co-signed digest
	// rather than a node response.
	TypeSign
)

// State is Execute's return value.
type State int

const (
	StateWaiting State = iota
	StateOK
	StateError
	StateIgnore
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateOK:
		return "ok"
	case StateError:
		return "error"
	case StateIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Status is what Execute returns to its caller.
type Status struct {
	State State
	Err   *errs.Error // set when State == StateError
}

// allowedToFailMethods is the "allowed to fail" set from §4.A step f: a
// request whose retries are exhausted returns Ignore instead of a hard
// Limit error.
var allowedToFailMethods = map[string]bool{
	"in3_nodeList": true,
}

// nodeListMethod is the auto-ask-for-signers trigger from §4.B's signer
// node selection rule: a node-list request always asks for co-signers
// (unless the chain is Bitcoin), independent of signature_count.
const nodeListMethod = "in3_nodeList"

// Signer is the Signer Driver contract (§4.C/D/E) a TypeSign context drives.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
	Address() types.Address
}

// Context is one Request Context. Fields are exported so sibling packages
// (tests, the CLI) can assemble and inspect one directly; callers are
// expected to go through NewRPCContext/NewSignContext rather than building
// one by hand.
type Context struct {
	mu sync.Mutex

	Type    Type
	Client  *nodelist.Client
	ChainID types.ChainID

	Calls   []payload.Call
	Options payload.Options
	Filter  nodeselector.Filter

	Selector nodeselector.Selector
	Registry *verify.Registry
	Trigger  *autoupdate.Trigger

	MaxAttempts int

	// TypeSign-only.
	SignDigest []byte
	SignDriver Signer

	// internal progress state
	requests   []rpc.Request
	digest     [32]byte
	preHandled bool
	nodes      []*nodelist.ChainNode
	results    []verify.NodeResult
	dispatched bool
	attempts   int
	rejected   reputation.RejectedSet
	responses  []rpc.Response
	verified   bool
	signature  []byte
	signErr    error
	err        *errs.Error

	// verifier is resolved once per Context from the chain's VerifierType
	// tag against Registry (spec §4.A step 5b), then cached here.
	verifier verify.Verifier

	required []*Context
}

// NewRPCContext creates a Context for an RPC wave against chainID. The
// verifier is not supplied directly: it is resolved from the chain's
// VerifierType tag against registry the first time Execute runs, per
// spec §4.A step 5b.
func NewRPCContext(client *nodelist.Client, chainID types.ChainID, calls []payload.Call, opts payload.Options,
	registry *verify.Registry, selector nodeselector.Selector, trigger *autoupdate.Trigger) *Context {
	return &Context{
		Type:        TypeRPC,
		Client:      client,
		ChainID:     chainID,
		Calls:       calls,
		Options:     opts,
		Selector:    selector,
		Registry:    registry,
		Trigger:     trigger,
		MaxAttempts: client.MaxAttempts,
		rejected:    reputation.NewRejectedSet(),
	}
}

// NewSignContext creates a sub-context that asks driver to sign digest.
func NewSignContext(driver Signer, digest []byte) *Context {
	return &Context{Type: TypeSign, SignDriver: driver, SignDigest: digest}
}

// Responses returns the winning node's parsed responses once Execute has
// returned StateOK.
func (c *Context) Responses() []rpc.Response {
	return c.responses
}

// Signature returns the produced signature once a TypeSign context has
// returned StateOK.
func (c *Context) Signature() []byte {
	return c.signature
}

// Execute advances the state machine one step and returns the result. It
// is re-entrant: call it again after an external event (transport
// dispatch, signer completion, sub-context progress) has occurred.
func (c *Context) Execute(now time.Time) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeLocked(now)
}

func (c *Context) executeLocked(now time.Time) Status {
	if c.err != nil {
		return Status{State: StateError, Err: c.err}
	}
	if c.Type == TypeRPC && (len(c.Calls) == 0 || c.Calls[0].Method == "") {
		c.err = errs.New(errs.Config, "request context: first call has no method")
		return Status{State: StateError, Err: c.err}
	}
	if c.verified && c.responses != nil {
		return Status{State: StateOK}
	}

	for _, child := range c.required {
		st := child.executeLocked(now)
		if st.State != StateOK {
			return st
		}
	}

	switch c.Type {
	case TypeSign:
		return c.executeSign()
	default:
		return c.executeRPC(now)
	}
}

func (c *Context) executeSign() Status {
	if c.signature == nil && c.signErr == nil {
		sig, err := c.SignDriver.Sign(c.SignDigest)
		if err != nil {
			c.signErr = err
		} else {
			c.signature = sig
		}
	}
	if c.signErr != nil {
		c.err = errs.Wrap(errs.RPC, c.signErr, "sign context: signer failed")
		return Status{State: StateError, Err: c.err}
	}
	if c.signature == nil {
		return Status{State: StateWaiting}
	}
	return Status{State: StateOK}
}

func (c *Context) executeRPC(now time.Time) Status {
	chain, ok := c.Client.Lookup(c.ChainID)
	if !ok {
		c.err = errs.New(errs.NotFound, "request context: unknown chain %s", c.ChainID)
		return Status{State: StateError, Err: c.err}
	}

	if c.verifier == nil {
		v, ok := c.Registry.Lookup(chain.VerifierType)
		if !ok {
			c.err = errs.New(errs.NotFound, "request context: no verifier registered for chain type %q", chain.VerifierType)
			return Status{State: StateError, Err: c.err}
		}
		c.verifier = v
	}

	if c.requests == nil {
		var signer payload.Signer
		if c.SignDriver != nil {
			signer = c.SignDriver
		}
		batch, digest, err := payload.Compose(c.Calls, c.Options, signer)
		if err != nil {
			c.err = errs.Wrap(errs.Config, err, "request context: compose payload")
			return Status{State: StateError, Err: c.err}
		}
		c.requests = batch
		c.digest = digest
	}

	if !c.preHandled {
		c.preHandled = true
		if ph, ok := c.verifier.(verify.PreHandler); ok {
			resp, handled, err := ph.PreHandle(c.requests[0])
			if err != nil {
				c.err = errs.Wrap(errs.InvalidData, err, "request context: pre_handle")
				return Status{State: StateError, Err: c.err}
			}
			if handled {
				c.responses = []rpc.Response{resp}
				c.verified = true
				return Status{State: StateOK}
			}
		}
	}

	if len(c.nodes) == 0 {
		picked, err := c.Selector.Pick(chain, c.Client.RequestCount, c.Filter, c.rejected)
		if err != nil {
			c.err = errs.Wrap(errs.Config, err, "request context: select nodes")
			return Status{State: StateError, Err: c.err}
		}
		c.nodes = picked
		c.results = make([]verify.NodeResult, len(picked))
		for i := range c.results {
			c.results[i].Pending = true
		}

		if c.needsSigners(chain) {
			n := c.Client.SignatureCount
			if n <= 0 {
				n = 1
			}
			signerNodes, err := c.Selector.Pick(chain, n, nodeselector.Filter{RequireProof: true}, c.rejected)
			if err == nil {
				addrs := make([]types.Address, len(signerNodes))
				for i, sn := range signerNodes {
					addrs[i] = sn.Node.Address
				}
				c.Options.Signers = addrs
				c.requests = nil // force recompose with signer addresses baked into "in3"
			}
		}
		return Status{State: StateWaiting}
	}

	if !c.dispatched {
		return Status{State: StateWaiting}
	}

	result := verify.Match(c.nodes, c.results, c.requests, c.verifier, c.rejected, now)
	switch result.Status {
	case verify.StatusWaiting:
		return Status{State: StateWaiting}
	case verify.StatusOK:
		c.responses = result.Responses
		c.verified = true
		c.persistAndAutoUpdate(chain, result.RejectedAt, now)
		return Status{State: StateOK}
	default:
		c.nodes = nil
		c.results = nil
		c.dispatched = false
		c.attempts++
		if c.attempts < c.MaxAttempts {
			log.ReqCtx.Debug().Int("attempt", c.attempts).Msg("retrying after invalid response wave")
			return c.executeLocked(now)
		}
		if allowedToFailMethods[c.firstMethod()] {
			return Status{State: StateIgnore}
		}
		c.err = errs.Wrap(errs.Limit, result.Err, "request context: exhausted max attempts")
		return Status{State: StateError, Err: c.err}
	}
}

func (c *Context) persistAndAutoUpdate(chain *nodelist.Chain, winner int, now time.Time) {
	if len(c.responses) == 0 || c.responses[0].In3 == nil {
		return
	}
	meta := c.responses[0].In3
	announcer := types.Address{}
	if winner >= 0 && winner < len(c.nodes) {
		announcer = c.nodes[winner].Node.Address
	}
	if c.Trigger != nil {
		c.Trigger.Observe(chain, meta, announcer, now)
	}
}

func (c *Context) firstMethod() string {
	if len(c.Calls) == 0 {
		return ""
	}
	return c.Calls[0].Method
}

// needsSigners reports whether signer nodes should be picked alongside the
// main request wave, per §4.B's signer node selection rule: an explicit
// signature_count, or an automatic ask on the node-list RPC for any chain
// that isn't Bitcoin (Bitcoin chains have no co-signing concept).
func (c *Context) needsSigners(chain *nodelist.Chain) bool {
	if c.Client.SignatureCount > 0 {
		return true
	}
	return c.firstMethod() == nodeListMethod && chain.VerifierType != nodelist.ChainTypeBitcoin
}

// Dispatch fans the composed batch out to every picked node over t,
// filling in c.results, then marks the wave dispatched so the next
// Execute call proceeds to the matcher. It is the external event the
// Send driver arranges while Execute is returning StateWaiting with
// nodes picked.
func (c *Context) Dispatch(ctx context.Context, t transport.Transport) {
	c.mu.Lock()
	nodes := c.nodes
	requests := c.requests
	c.mu.Unlock()

	if len(nodes) == 0 || requests == nil {
		return
	}
	body, err := json.Marshal(requests)
	if err != nil {
		c.mu.Lock()
		c.err = errs.Wrap(errs.InvalidData, err, "request context: marshal batch")
		c.mu.Unlock()
		return
	}

	results := make([]verify.NodeResult, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			if c.Filter.RequireHTTP {
				url = transport.ToHTTP(url)
			}
			start := time.Now()
			resp, err := t.Send(ctx, url, body)
			latency := time.Since(start)
			if err != nil {
				results[i] = verify.NodeResult{Err: err, Latency: latency}
				return
			}
			results[i] = verify.NodeResult{Body: resp, Latency: latency}
		}(i, node.Node.URL)
	}
	wg.Wait()

	c.mu.Lock()
	c.results = results
	c.dispatched = true
	c.mu.Unlock()
}

// PendingDispatch reports whether this context (or one of its required
// sub-contexts) has picked nodes but not yet dispatched them — the signal
// the Send driver uses to decide whether to call Dispatch before the next
// Execute.
func (c *Context) PendingDispatch() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, child := range c.required {
		if found := child.PendingDispatch(); found != nil {
			return found
		}
	}
	if c.Type == TypeRPC && len(c.nodes) > 0 && !c.dispatched {
		return c
	}
	return nil
}

// AddRequired prepends child to the parent's sub-context chain and
// Executes it immediately, per §4.I.
func (c *Context) AddRequired(child *Context, now time.Time) Status {
	c.mu.Lock()
	c.required = append([]*Context{child}, c.required...)
	c.mu.Unlock()
	return child.Execute(now)
}

// FindRequired linearly scans the sub-context chain for one whose first
// call is method.
func (c *Context) FindRequired(method string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, child := range c.required {
		if child.firstMethod() == method {
			return child
		}
	}
	return nil
}

// RemoveRequired unlinks child from the sub-context chain.
func (c *Context) RemoveRequired(child *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.required {
		if existing == child {
			c.required = append(c.required[:i], c.required[i+1:]...)
			return
		}
	}
}

// maxConsecutiveWaiting bounds how many times in a row Send will call
// Execute and get StateWaiting back with nothing new to dispatch, before
// giving up rather than spinning forever. Grounded on in3_send_ctx's
// retry_count > 10 cap in execute.c.
const maxConsecutiveWaiting = 10

// Send drives ctx to completion, performing the actual transport dispatch
// whenever Execute reports nodes have been picked but not yet sent to, and
// bounding the number of consecutive no-progress waits.
func Send(ctx context.Context, c *Context, t transport.Transport, now func() time.Time) Status {
	consecutiveWaiting := 0
	for {
		st := c.Execute(now())
		if st.State != StateWaiting {
			return st
		}

		if pending := c.PendingDispatch(); pending != nil {
			pending.Dispatch(ctx, t)
			consecutiveWaiting = 0
			continue
		}

		consecutiveWaiting++
		if consecutiveWaiting > maxConsecutiveWaiting {
			err := errs.New(errs.Waiting, "request context: exceeded %d consecutive waits with no progress", maxConsecutiveWaiting)
			return Status{State: StateError, Err: err}
		}
	}
}
