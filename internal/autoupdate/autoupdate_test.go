package autoupdate

import (
	"testing"
	"time"

	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

func testChain() *nodelist.Chain {
	return nodelist.NewChain(types.ChainID{1}, types.Address{})
}

func announcerAddr() types.Address {
	var a types.Address
	a[0] = 0x42
	return a
}

func TestTrigger_SchedulesRefreshWhenBehind(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 100
	tr := NewTrigger(6, 15*time.Second)
	now := time.Now()

	meta := &rpc.In3ResponseMeta{LastNodeList: 105, CurrentBlock: 108}
	tr.Observe(chain, meta, announcerAddr(), now)

	desc := tr.Pending()
	if desc == nil {
		t.Fatal("expected a scheduled refresh descriptor")
	}
	if desc.ExpLastBlock != 105 {
		t.Errorf("ExpLastBlock = %d, want 105", desc.ExpLastBlock)
	}
	// lag = 108-105 = 3, remaining = 6-3 = 3, wait = 3*15s = 45s
	wantWait := 45 * time.Second
	gotWait := desc.ScheduledAt.Sub(now)
	if gotWait != wantWait {
		t.Errorf("wait = %v, want %v", gotWait, wantWait)
	}
}

func TestTrigger_NoWaitWhenAlreadyFinal(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 100
	tr := NewTrigger(6, 15*time.Second)
	now := time.Now()

	meta := &rpc.In3ResponseMeta{LastNodeList: 101, CurrentBlock: 110}
	tr.Observe(chain, meta, announcerAddr(), now)

	desc := tr.Pending()
	if desc == nil {
		t.Fatal("expected descriptor")
	}
	if !desc.ScheduledAt.Equal(now) {
		t.Errorf("ScheduledAt = %v, want %v (zero wait)", desc.ScheduledAt, now)
	}
}

func TestTrigger_WaitCappedAtMax(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 0
	tr := NewTrigger(1000, time.Hour)
	now := time.Now()

	meta := &rpc.In3ResponseMeta{LastNodeList: 1, CurrentBlock: 1}
	tr.Observe(chain, meta, announcerAddr(), now)

	desc := tr.Pending()
	if desc == nil {
		t.Fatal("expected descriptor")
	}
	if got := desc.ScheduledAt.Sub(now); got != MaxWaitTime {
		t.Errorf("wait = %v, want capped %v", got, MaxWaitTime)
	}
}

func TestTrigger_IgnoresImpossibleFutureClaim(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 100
	tr := NewTrigger(6, 15*time.Second)

	meta := &rpc.In3ResponseMeta{LastNodeList: 200, CurrentBlock: 150}
	tr.Observe(chain, meta, announcerAddr(), time.Now())

	if tr.Pending() != nil {
		t.Error("lastNodeList > currentBlock should not schedule a refresh")
	}
}

func TestTrigger_IgnoresNotActuallyNewer(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 100
	tr := NewTrigger(6, 15*time.Second)

	meta := &rpc.In3ResponseMeta{LastNodeList: 100, CurrentBlock: 105}
	tr.Observe(chain, meta, announcerAddr(), time.Now())

	if tr.Pending() != nil {
		t.Error("lastNodeList <= chain.LastBlock should not schedule a refresh")
	}
}

func TestTrigger_NilMetaIsNoop(t *testing.T) {
	chain := testChain()
	tr := NewTrigger(6, 15*time.Second)
	tr.Observe(chain, nil, announcerAddr(), time.Now())
	if tr.Pending() != nil {
		t.Error("nil meta should never schedule a refresh")
	}
}

func TestTrigger_Due(t *testing.T) {
	chain := testChain()
	tr := NewTrigger(6, 15*time.Second)
	now := time.Now()
	tr.Observe(chain, &rpc.In3ResponseMeta{LastNodeList: 1, CurrentBlock: 1}, announcerAddr(), now)

	if tr.Due(now) {
		t.Error("should not be due immediately when wait > 0")
	}
	if !tr.Due(now.Add(time.Hour)) {
		t.Error("should be due once scheduled time has passed")
	}
}

func TestTrigger_RefreshFailed_FirstRefreshTrusted(t *testing.T) {
	chain := testChain()
	tr := NewTrigger(6, 15*time.Second)
	now := time.Now()
	tr.Observe(chain, &rpc.In3ResponseMeta{LastNodeList: 1, CurrentBlock: 1}, announcerAddr(), now)

	w := &nodelist.Weight{Weight: 1}
	tr.RefreshFailed(w, now, true)

	if w.IsBlacklisted(now) {
		t.Error("first refresh failure should not blacklist the announcer")
	}
	if tr.Pending() != nil {
		t.Error("descriptor should be cleared after a failed refresh")
	}
}

func TestTrigger_RefreshFailed_SubsequentBlacklists(t *testing.T) {
	chain := testChain()
	tr := NewTrigger(6, 15*time.Second)
	now := time.Now()
	tr.Observe(chain, &rpc.In3ResponseMeta{LastNodeList: 1, CurrentBlock: 1}, announcerAddr(), now)

	w := &nodelist.Weight{Weight: 1}
	tr.RefreshFailed(w, now, false)

	if !w.IsBlacklisted(now) {
		t.Error("non-first refresh failure should blacklist the announcer")
	}
}

func TestTrigger_ValidatorChangeFlagsNeedsUpdate(t *testing.T) {
	chain := testChain()
	chain.LastBlock = 50
	tr := NewTrigger(6, 15*time.Second)

	meta := &rpc.In3ResponseMeta{LastValidatorChange: 60}
	tr.Observe(chain, meta, announcerAddr(), time.Now())

	if !chain.NeedsUpdate {
		t.Error("lastValidatorChange ahead of LastBlock should flag NeedsUpdate")
	}
}
