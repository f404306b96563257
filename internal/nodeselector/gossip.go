package nodeselector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/pkg/types"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

const (
	announceTopicPrefix = "in3-nodelist/"
	dhtRendezvous        = "in3go"
	discoveryInterval    = 30 * time.Second
)

// nodeAnnouncement is the wire format gossiped on a chain's announce
// topic: one registered node's address/URL/props, signed off-band by the
// on-chain registry the verifier already trusts (gossip only accelerates
// *discovery*, it never substitutes for on-chain verification).
type nodeAnnouncement struct {
	Address types.Address `json:"address"`
	URL     string        `json:"url"`
	Props   uint64        `json:"props"`
}

// GossipSelector discovers node-list candidates over a libp2p DHT + pubsub
// topic instead of relying solely on the cached/boot list, merging
// announcements into the underlying Chain as they arrive. It implements
// the same Selector interface as StaticSelector and adds no
// spec-mandated weighting of its own: once merged, candidates are picked
// exactly as StaticSelector would.
type GossipSelector struct {
	StaticSelector

	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[types.ChainID]*pubsub.Topic
}

// NewGossipSelector starts a libp2p host with DHT peer routing and mDNS
// local discovery, ready to subscribe to per-chain announce topics.
func NewGossipSelector(ctx context.Context, listenAddr string) (*GossipSelector, error) {
	ctx, cancel := context.WithCancel(ctx)

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nodeselector: create libp2p host: %w", err)
	}

	kdht, err := dht.New(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nodeselector: create dht: %w", err)
	}
	if err := kdht.Bootstrap(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("nodeselector: bootstrap dht: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nodeselector: create pubsub: %w", err)
	}

	g := &GossipSelector{
		StaticSelector: StaticSelector{Now: time.Now},
		host:           h,
		pubsub:         ps,
		ctx:            ctx,
		cancel:         cancel,
		topics:         make(map[types.ChainID]*pubsub.Topic),
	}

	routingDiscovery := drouting.NewRoutingDiscovery(kdht)
	dutil.Advertise(ctx, routingDiscovery, dhtRendezvous)
	go g.findPeersLoop(routingDiscovery)

	if mdnsSvc := mdns.NewMdnsService(h, dhtRendezvous, &discoveryNotifee{host: h, ctx: ctx}); mdnsSvc != nil {
		_ = mdnsSvc.Start()
	}

	return g, nil
}

// Close tears down the underlying libp2p host.
func (g *GossipSelector) Close() error {
	g.cancel()
	return g.host.Close()
}

// Subscribe joins chain's announce topic, merging every announcement it
// receives into chain's node list as it arrives.
func (g *GossipSelector) Subscribe(chain *nodelist.Chain) error {
	topic, err := g.pubsub.Join(announceTopicPrefix + chain.ChainID.String())
	if err != nil {
		return fmt.Errorf("nodeselector: join topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("nodeselector: subscribe topic: %w", err)
	}

	g.mu.Lock()
	g.topics[chain.ChainID] = topic
	g.mu.Unlock()

	go g.readLoop(sub, chain)
	return nil
}

func (g *GossipSelector) readLoop(sub *pubsub.Subscription, chain *nodelist.Chain) {
	for {
		msg, err := sub.Next(g.ctx)
		if err != nil {
			return // context cancelled, or subscription closed
		}
		var ann nodeAnnouncement
		if err := json.Unmarshal(msg.Data, &ann); err != nil {
			log.NodeSelector.Warn().Err(err).Msg("discarding malformed node announcement")
			continue
		}
		g.merge(chain, ann)
	}
}

func (g *GossipSelector) merge(chain *nodelist.Chain, ann nodeAnnouncement) {
	existing := chain.Snapshot()
	for _, cn := range existing {
		if cn.Node.Address == ann.Address {
			return // already known; on-chain refresh owns updates to props/url
		}
	}
	nodes := make([]nodelist.Node, len(existing)+1)
	for i, cn := range existing {
		nodes[i] = cn.Node
	}
	nodes[len(existing)] = nodelist.Node{Address: ann.Address, URL: ann.URL, Props: ann.Props}
	chain.MergeNodes(nodes, chain.LastBlock)
}

func (g *GossipSelector) findPeersLoop(rd *drouting.RoutingDiscovery) {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			peerCh, err := rd.FindPeers(g.ctx, dhtRendezvous)
			if err != nil {
				continue
			}
			for p := range peerCh {
				if p.ID == g.host.ID() {
					continue
				}
				connectCtx, cancel := context.WithTimeout(g.ctx, 5*time.Second)
				_ = g.host.Connect(connectCtx, p)
				cancel()
			}
		}
	}
}

// Pick delegates to StaticSelector once candidates have been merged in via
// gossip; the gossip loop only grows the candidate pool, it never
// overrides StaticSelector's blacklist/rejection/filter logic.
func (g *GossipSelector) Pick(chain *nodelist.Chain, n int, filter Filter, rejected reputation.RejectedSet) ([]*nodelist.ChainNode, error) {
	return g.StaticSelector.Pick(chain, n, filter, rejected)
}

type discoveryNotifee struct {
	host host.Host
	ctx  context.Context
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()
	_ = d.host.Connect(ctx, pi)
}
