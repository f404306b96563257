// Package nodelist holds the shared domain model every other component
// operates on: registered chains, the nodes registered for each chain, and
// the per-node reputation weight the Node Selector and Reputation Manager
// read and update.
package nodelist

import (
	"sync"
	"time"

	"github.com/Klingon-tech/in3go/pkg/types"
)

// ChainTypeBitcoin is the chain-type tag reserved for Bitcoin-family chains,
// which the pick_signers gate (§4.B) excludes from auto-signer selection.
const ChainTypeBitcoin = "btc"

// Node describes one IN3 server as registered on-chain.
type Node struct {
	Address     types.Address
	URL         string
	Index       uint64
	Capacity    uint64
	Deposit     uint64
	Props       uint64
	Whitelisted bool
}

// Weight is the mutable reputation/performance state tracked for a node,
// separate from the immutable on-chain Node record so a blacklist event
// never needs to touch registration data.
type Weight struct {
	mu sync.Mutex

	Weight           float64
	ResponseCount    uint32
	TotalLatency     time.Duration
	BlacklistedUntil time.Time // zero value means not blacklisted
}

// IsBlacklisted reports whether the node is currently blacklisted.
func (w *Weight) IsBlacklisted(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.BlacklistedUntil.After(now)
}

// Blacklist marks the node unusable until now+duration and zeroes its
// weight, mirroring blacklist_node's "weight=NULL" so a blacklisted node
// sorts last whenever the selector re-derives weights.
func (w *Weight) Blacklist(now time.Time, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BlacklistedUntil = now.Add(duration)
	w.Weight = 0
}

// ClearBlacklist resets the blacklist deadline, called after a node's
// response passes verification.
func (w *Weight) ClearBlacklist() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BlacklistedUntil = time.Time{}
}

// RecordLatency folds one more observed round-trip into the running
// average used to rank nodes.
func (w *Weight) RecordLatency(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ResponseCount++
	w.TotalLatency += d
}

// AverageLatency returns the mean observed round-trip time, or 0 if the
// node has never responded.
func (w *Weight) AverageLatency() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ResponseCount == 0 {
		return 0
	}
	return w.TotalLatency / time.Duration(w.ResponseCount)
}

// ChainNode pairs a registered Node with its mutable Weight.
type ChainNode struct {
	Node   Node
	Weight *Weight
}

// Chain is one blockchain network's node-list state: the registered nodes,
// the contract they were read from, and the bookkeeping the auto-update
// trigger needs to decide when that list is stale.
type Chain struct {
	mu sync.RWMutex

	ChainID           types.ChainID
	Contract          types.Address
	WhiteListContract types.Address
	// VerifierType is the chain-type tag (spec §3) determining which
	// Verifier the Response Matcher dispatches to, and whether this chain
	// is excluded from auto-signer selection (ChainTypeBitcoin).
	VerifierType string
	Nodes        []*ChainNode

	// LastBlock is the block number the node list was last read at.
	LastBlock uint64
	// NeedsUpdate is set when a response's lastNodeList or
	// lastValidatorChange exceeds LastBlock.
	NeedsUpdate bool
	// LastUpdateRequested is a timestamp slot for the last scheduled update.
	// No code in this module sets or reads it, so it does not limit how
	// often a refresh is scheduled.
	LastUpdateRequested time.Time
	// LocalOnly chains (e.g. a local development chain) never get their
	// node list persisted to cache.
	LocalOnly bool
}

// NewChain creates an empty node list for a chain.
func NewChain(chainID types.ChainID, contract types.Address) *Chain {
	return &Chain{ChainID: chainID, Contract: contract}
}

// SetNodes replaces the chain's node list, pairing every Node with a fresh
// Weight (callers that want to preserve reputation across an update should
// merge by address before calling this).
func (c *Chain) SetNodes(nodes []Node, lastBlock uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]*ChainNode, len(nodes))
	for i, n := range nodes {
		list[i] = &ChainNode{Node: n, Weight: &Weight{Weight: 1}}
	}
	c.Nodes = list
	c.LastBlock = lastBlock
	c.NeedsUpdate = false
}

// MergeNodes replaces the node list but carries over the Weight of any
// node whose address is unchanged, so a routine node-list refresh does not
// reset a node's earned (or penalized) reputation.
func (c *Chain) MergeNodes(nodes []Node, lastBlock uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := make(map[types.Address]*Weight, len(c.Nodes))
	for _, cn := range c.Nodes {
		existing[cn.Node.Address] = cn.Weight
	}

	list := make([]*ChainNode, len(nodes))
	for i, n := range nodes {
		w, ok := existing[n.Address]
		if !ok {
			w = &Weight{Weight: 1}
		}
		list[i] = &ChainNode{Node: n, Weight: w}
	}
	c.Nodes = list
	c.LastBlock = lastBlock
	c.NeedsUpdate = false
}

// Snapshot returns a read-locked copy of the current node list.
func (c *Chain) Snapshot() []*ChainNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ChainNode, len(c.Nodes))
	copy(out, c.Nodes)
	return out
}

// MarkNeedsUpdate flags the chain as due for a node-list refresh, unless
// reportedBlock is not actually newer than what we already have (the
// auto-update trigger ignores an announced lastNodeList that claims to be
// ahead of the current block, treating it as an impossible/misbehaving
// report rather than scheduling a refresh).
func (c *Chain) MarkNeedsUpdate(reportedBlock, currentBlock uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reportedBlock > currentBlock {
		return false
	}
	if reportedBlock <= c.LastBlock {
		return false
	}
	c.NeedsUpdate = true
	return true
}

// Client is the root object: configuration plus every chain the caller has
// registered a node list for.
type Client struct {
	mu sync.RWMutex

	Chains map[types.ChainID]*Chain

	// RequestCount is how many nodes one Execute wave fans a batch out to.
	RequestCount int
	// MaxAttempts bounds retries per request inside one Execute call
	// before the context gives up (distinct from the outer Send retry
	// cap).
	MaxAttempts int
	// SignatureCount is how many signer nodes, picked separately from the
	// RequestCount nodes, are asked to co-sign the response.
	SignatureCount int
	Timeout        time.Duration
	AutoUpdateList bool
}

// NewClient creates a Client with the given defaults.
func NewClient(requestCount, maxAttempts, signatureCount int, timeout time.Duration) *Client {
	return &Client{
		Chains:         make(map[types.ChainID]*Chain),
		RequestCount:   requestCount,
		MaxAttempts:    maxAttempts,
		SignatureCount: signatureCount,
		Timeout:        timeout,
		AutoUpdateList: true,
	}
}

// Chain returns the Chain for chainID, registering an empty one on first
// use so callers never need a separate "did you register this chain"
// check before reading from it. Used by setup code (the CLI, cache
// loaders) that is responsible for populating a chain's node list; the
// Executor itself must use Lookup, which does not auto-vivify (spec §4.A
// step 5a: an unknown chain id is a find error, not a silent registration).
func (c *Client) Chain(chainID types.ChainID) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.Chains[chainID]; ok {
		return ch
	}
	ch := NewChain(chainID, types.Address{})
	c.Chains[chainID] = ch
	return ch
}

// Lookup returns the Chain registered for chainID, without registering one
// on a miss.
func (c *Client) Lookup(chainID types.ChainID) (*Chain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.Chains[chainID]
	return ch, ok
}
