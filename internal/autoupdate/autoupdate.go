// Package autoupdate implements the Node-List Auto-Update Trigger (§4.H):
// deciding from a verified response's "in3" metadata whether the node list
// is stale, and scheduling a refresh without letting a
// single misbehaving node force perpetual updates.
package autoupdate

import (
	"time"

	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// MaxWaitTime caps the scheduled-refresh delay at one hour, regardless of
// how far behind the reported block is.
const MaxWaitTime = 3600 * time.Second

// Descriptor records a pending node-list refresh: who announced it, what
// block the new list is expected to reflect, and when to act on it.
type Descriptor struct {
	Announcer    types.Address
	ExpLastBlock uint64
	ScheduledAt  time.Time
}

// Trigger owns the in-flight Descriptor for a chain's node list (at most
// one at a time: a fresh qualifying response updates it in place rather
// than stacking up duplicate refreshes).
type Trigger struct {
	ReplaceLatestBlock uint64        // depth at which a block is considered final
	AvgBlockTime       time.Duration // used to convert a block lag into a wait duration

	descriptor *Descriptor
}

// NewTrigger creates a Trigger with the given finality parameters.
func NewTrigger(replaceLatestBlock uint64, avgBlockTime time.Duration) *Trigger {
	return &Trigger{ReplaceLatestBlock: replaceLatestBlock, AvgBlockTime: avgBlockTime}
}

// Observe evaluates meta against chain's current bookkeeping, recording a
// refresh Descriptor when lastNodeList is newer than the chain's list. It
// also sets chain.NeedsUpdate when lastValidatorChange is ahead of
// chain.LastBlock. Whitelists are not handled: the response's lastWhiteList
// is not read and no separate whitelist state is flagged.
// announcer is the address of the node that produced this response: it's
// who gets blamed if the resulting refresh turns out to be bad.
func (t *Trigger) Observe(chain *nodelist.Chain, meta *rpc.In3ResponseMeta, announcer types.Address, now time.Time) {
	if meta == nil {
		return
	}

	if meta.LastNodeList > 0 {
		if meta.LastNodeList > meta.CurrentBlock {
			log.AutoUpdate.Warn().
				Str("announcer", announcer.String()).
				Uint64("lastNodeList", meta.LastNodeList).
				Uint64("currentBlock", meta.CurrentBlock).
				Msg("ignoring impossible lastNodeList announcement")
		} else if chain.MarkNeedsUpdate(meta.LastNodeList, meta.CurrentBlock) {
			wait := t.waitTime(meta.CurrentBlock, meta.LastNodeList)
			t.descriptor = &Descriptor{
				Announcer:    announcer,
				ExpLastBlock: meta.LastNodeList,
				ScheduledAt:  now.Add(wait),
			}
			log.AutoUpdate.Debug().
				Str("announcer", announcer.String()).
				Uint64("expLastBlock", meta.LastNodeList).
				Dur("wait", wait).
				Msg("scheduled node-list refresh")
		}
	}

	if meta.LastValidatorChange > chain.LastBlock {
		chain.NeedsUpdate = true
	}
}

// waitTime computes the §4.H waittime formula: 0 once the reported block
// is already at or past finality depth, otherwise the remaining distance
// to finality converted to wall-clock time via AvgBlockTime, capped at
// MaxWaitTime.
func (t *Trigger) waitTime(currentBlock, lastNodeList uint64) time.Duration {
	lag := currentBlock - lastNodeList
	if lag >= t.ReplaceLatestBlock {
		return 0
	}
	remaining := t.ReplaceLatestBlock - lag
	wait := time.Duration(remaining) * t.AvgBlockTime
	if wait > MaxWaitTime {
		return MaxWaitTime
	}
	return wait
}

// Pending returns the current refresh Descriptor, or nil if none is
// outstanding.
func (t *Trigger) Pending() *Descriptor {
	return t.descriptor
}

// Due reports whether the pending descriptor's scheduled time has passed.
func (t *Trigger) Due(now time.Time) bool {
	return t.descriptor != nil && !now.Before(t.descriptor.ScheduledAt)
}

// Clear discards the pending descriptor after a refresh completes
// (successfully or not).
func (t *Trigger) Clear() {
	t.descriptor = nil
}

// RefreshFailed handles a failed node-list refresh attempt. Per §4.H, the
// very first refresh for a chain is trusted unconditionally (boot nodes);
// once a descriptor already existed before this attempt, a failure
// blacklists the node that announced it (announcerWeight), to stop a
// single malicious node from forcing perpetual bad updates.
func (t *Trigger) RefreshFailed(announcerWeight *nodelist.Weight, now time.Time, isFirstRefresh bool) {
	if !isFirstRefresh && t.descriptor != nil && announcerWeight != nil {
		reputation.Blacklist(announcerWeight, now)
	}
	t.Clear()
}
