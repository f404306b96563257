// Package nodeselector implements the Node Selector external collaborator
// contract (§4.C): picking n eligible nodes for a request, honouring
// persistent blacklists and per-context rejections. Per spec.md's Non-goals
// this package carries no node-discovery *algorithm*; it defines the
// Selector interface plus two reference implementations (a static list and
// a libp2p-gossip-backed discovery loop) that do not encode any
// spec-mandated weighting policy beyond what internal/reputation already
// defines.
package nodeselector

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// Filter constrains which nodes are eligible for selection.
type Filter struct {
	RequireData    bool            // node must be capable of serving data (props bit)
	RequireHTTP    bool            // reject non-HTTP(S) node URLs
	RequireProof   bool            // node must be proof-capable (props bit)
	Hinted         []types.Address // if non-empty, restrict to these addresses
	ExcludeBitcoin bool            // not read by applyFilter; the Bitcoin exclusion for auto-signing is applied in reqctx.needsSigners
}

// Node property bits, matching the on-chain registry's "props" bitfield.
const (
	PropsData  uint64 = 1 << 0
	PropsProof uint64 = 1 << 1
)

// Selector is the external collaborator contract every implementation
// (static list, gossip discovery, ...) satisfies.
type Selector interface {
	// Pick returns up to n eligible nodes for chain, honouring filter and
	// the per-context rejected set. Returning fewer than n is not itself an
	// error; returning zero with a non-nil error means selection failed.
	Pick(chain *nodelist.Chain, n int, filter Filter, rejected reputation.RejectedSet) ([]*nodelist.ChainNode, error)
}

// StaticSelector picks from whatever node list the Chain already holds
// (typically seeded from the on-disk cache or a boot list), applying no
// discovery of its own.
type StaticSelector struct {
	Now func() time.Time
}

// NewStaticSelector creates a StaticSelector using time.Now for blacklist
// checks.
func NewStaticSelector() *StaticSelector {
	return &StaticSelector{Now: time.Now}
}

func (s *StaticSelector) Pick(chain *nodelist.Chain, n int, filter Filter, rejected reputation.RejectedSet) ([]*nodelist.ChainNode, error) {
	if chain == nil {
		return nil, fmt.Errorf("nodeselector: nil chain")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	candidates := reputation.Eligible(chain.Snapshot(), rejected, now())
	candidates = applyFilter(candidates, filter)

	if len(candidates) == 0 {
		return nil, fmt.Errorf("nodeselector: no eligible nodes for chain %s", chain.ChainID)
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n], nil
}

func applyFilter(nodes []*nodelist.ChainNode, filter Filter) []*nodelist.ChainNode {
	if len(filter.Hinted) > 0 {
		hinted := make(map[types.Address]struct{}, len(filter.Hinted))
		for _, a := range filter.Hinted {
			hinted[a] = struct{}{}
		}
		out := nodes[:0:0]
		for _, n := range nodes {
			if _, ok := hinted[n.Node.Address]; ok {
				out = append(out, n)
			}
		}
		return out
	}

	out := nodes[:0:0]
	for _, n := range nodes {
		if filter.RequireData && n.Node.Props&PropsData == 0 {
			continue
		}
		if filter.RequireProof && n.Node.Props&PropsProof == 0 {
			continue
		}
		if filter.RequireHTTP && !isHTTP(n.Node.URL) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func isHTTP(url string) bool {
	return len(url) >= 7 && (url[:7] == "http://" || (len(url) >= 8 && url[:8] == "https://"))
}
