// Package reputation implements the Reputation & Blacklist Manager
// (§4.G): the persistent 24-hour blacklist that nodelist.Weight already
// tracks, plus the per-context rejection set that lets the matcher reject a
// node "here" (null weight pointer semantics) without touching its
// persistent reputation.
package reputation

import (
	"time"

	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// BlacklistDuration is how long a node is blacklisted for a server fault.
const BlacklistDuration = 24 * time.Hour

// RejectedSet tracks nodes rejected within a single Request Context, e.g.
// because the node already failed a retry round for this request and
// should not be picked again even though its persistent blacklist has not
// (yet) been extended.
type RejectedSet map[types.Address]struct{}

// NewRejectedSet creates an empty per-context rejection set.
func NewRejectedSet() RejectedSet {
	return make(RejectedSet)
}

// Reject marks addr as rejected for the lifetime of the owning context.
func (s RejectedSet) Reject(addr types.Address) {
	s[addr] = struct{}{}
}

// IsRejected reports whether addr was previously rejected in this context.
func (s RejectedSet) IsRejected(addr types.Address) bool {
	_, ok := s[addr]
	return ok
}

// Blacklist extends a node's persistent blacklist by BlacklistDuration,
// the reference duration used throughout the matcher and auto-update
// trigger for a server fault.
func Blacklist(w *nodelist.Weight, now time.Time) {
	w.Blacklist(now, BlacklistDuration)
}

// Eligible filters nodes down to those that are neither persistently
// blacklisted nor rejected within this context, preserving selection
// order. The Node Selector calls this on the chain's full snapshot before
// applying its filters and truncating to the requested count, so a
// freshly-blacklisted node never gets reused within the same Execute wave.
func Eligible(nodes []*nodelist.ChainNode, rejected RejectedSet, now time.Time) []*nodelist.ChainNode {
	out := make([]*nodelist.ChainNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Weight.IsBlacklisted(now) {
			continue
		}
		if rejected != nil && rejected.IsRejected(n.Node.Address) {
			continue
		}
		out = append(out, n)
	}
	return out
}
