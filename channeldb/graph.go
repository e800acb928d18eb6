// Package channeldb stores the routing graph: nodes, channel edges, and
// per-direction edge policies learned from gossip, plus the pruning rules
// that keep the graph bounded for a mobile client.
package channeldb

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lnmobile/lncore/lnwire"
)

// staleThreshold is how old a node or channel's last update can be before
// PruneStale removes it, per the 14-day gossip staleness rule.
const staleThreshold = 14 * 24 * time.Hour

// edgePolicyCacheSize bounds the in-memory policy cache for a mobile
// client's graph, which spec.md §5 caps at around 10^5 edges.
const edgePolicyCacheSize = 100_000

// LightningNode is a vertex in the routing graph: a node's identity key plus
// whatever node_announcement data has been learned about it.
type LightningNode struct {
	PubKey *btcec.PublicKey

	// HaveNodeAnnouncement is true once a node_announcement has been
	// received; until then only PubKey (learned from a channel
	// announcement) is known.
	HaveNodeAnnouncement bool

	LastUpdate time.Time
	Addresses  []net.Addr
	Alias      string
	AuthSig    *ecdsa.Signature
	Features   *lnwire.FeatureVector
}

// ChannelAuthProof holds the four signatures that authenticate a
// channel_announcement, each over the same canonical digest.
type ChannelAuthProof struct {
	NodeSig1    *ecdsa.Signature
	NodeSig2    *ecdsa.Signature
	BitcoinSig1 *ecdsa.Signature
	BitcoinSig2 *ecdsa.Signature
}

// IsEmpty reports whether any of the four signatures is unset.
func (p *ChannelAuthProof) IsEmpty() bool {
	return p == nil || p.NodeSig1 == nil || p.NodeSig2 == nil ||
		p.BitcoinSig1 == nil || p.BitcoinSig2 == nil
}

// ChannelEdgeInfo is the channel-wide (direction-independent) information
// learned from a channel_announcement.
type ChannelEdgeInfo struct {
	ChannelID uint64

	ChainHash chainhash.Hash

	// NodeKey1/NodeKey2 are the identity keys of the channel's two
	// endpoints, ordered so NodeKey1 sorts lexicographically first.
	NodeKey1 *btcec.PublicKey
	NodeKey2 *btcec.PublicKey

	BitcoinKey1 *btcec.PublicKey
	BitcoinKey2 *btcec.PublicKey

	Features []byte

	AuthProof *ChannelAuthProof

	ChannelPoint wire.OutPoint
	Capacity     btcutil.Amount
}

// ChannelEdgePolicy is one direction's channel_update: the fee and CLTV
// terms a node charges for forwarding across this channel.
type ChannelEdgePolicy struct {
	Signature *ecdsa.Signature

	ChannelID  uint64
	LastUpdate time.Time

	Disabled bool

	TimeLockDelta uint16

	MinHTLC lnwire.MilliSatoshi
	MaxHTLC lnwire.MilliSatoshi

	FeeBaseMSat               lnwire.MilliSatoshi
	FeeProportionalMillionths lnwire.MilliSatoshi

	// ToNode is the identity key of the node this policy forwards
	// *towards*.
	ToNode *btcec.PublicKey
}

type channelEntry struct {
	info     *ChannelEdgeInfo
	policy1  *ChannelEdgePolicy // NodeKey1 -> NodeKey2
	policy2  *ChannelEdgePolicy // NodeKey2 -> NodeKey1
}

// ChannelGraph is an in-memory routing graph: nodes keyed by serialized
// public key, channels keyed by short channel ID. It holds a bounded LRU
// policy cache that is invalidated whenever a policy or channel changes;
// nothing fills it and policy lookups read the channel entries directly.
type ChannelGraph struct {
	mu sync.RWMutex

	nodes    map[[33]byte]*LightningNode
	channels map[uint64]*channelEntry

	// chanPointIndex maps a funding outpoint to its short channel ID, for
	// spend-driven pruning.
	chanPointIndex map[wire.OutPoint]uint64

	sourceNode *LightningNode

	policyCache *lru.Cache[uint64, *ChannelEdgePolicy]

	nodeGauge    prometheus.Gauge
	channelGauge prometheus.Gauge
}

// NewChannelGraph creates an empty routing graph.
func NewChannelGraph() *ChannelGraph {
	return &ChannelGraph{
		nodes:          make(map[[33]byte]*LightningNode),
		channels:       make(map[uint64]*channelEntry),
		chanPointIndex: make(map[wire.OutPoint]uint64),
		policyCache:    lru.NewCache[uint64, *ChannelEdgePolicy](edgePolicyCacheSize),
		nodeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lncore_routing_graph_nodes",
			Help: "Number of nodes currently held in the routing graph.",
		}),
		channelGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lncore_routing_graph_channels",
			Help: "Number of channels currently held in the routing graph.",
		}),
	}
}

// Collectors returns the graph's Prometheus metrics for registration.
func (c *ChannelGraph) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.nodeGauge, c.channelGauge}
}

func nodeKey(pub *btcec.PublicKey) [33]byte {
	var k [33]byte
	copy(k[:], pub.SerializeCompressed())
	return k
}

// SourceNode returns our own node, as previously set with SetSourceNode.
func (c *ChannelGraph) SourceNode() (*LightningNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sourceNode == nil {
		return nil, ErrSourceNodeNotSet
	}
	return c.sourceNode, nil
}

// SetSourceNode marks node as the graph owner's own identity.
func (c *ChannelGraph) SetSourceNode(node *LightningNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sourceNode = node
	c.nodes[nodeKey(node.PubKey)] = node
	return nil
}

// AddLightningNode inserts or updates a node vertex.
func (c *ChannelGraph) AddLightningNode(node *LightningNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := nodeKey(node.PubKey)
	_, existed := c.nodes[key]
	c.nodes[key] = node
	if !existed {
		c.nodeGauge.Inc()
	}
	return nil
}

// FetchLightningNode looks up a node by identity public key.
func (c *ChannelGraph) FetchLightningNode(pub *btcec.PublicKey) (*LightningNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node, ok := c.nodes[nodeKey(pub)]
	if !ok {
		return nil, ErrGraphNodeNotFound
	}
	return node, nil
}

// HasLightningNode reports whether pub is known, and if so when its
// information was last updated.
func (c *ChannelGraph) HasLightningNode(pub *btcec.PublicKey) (time.Time, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node, ok := c.nodes[nodeKey(pub)]
	if !ok {
		return time.Time{}, false, nil
	}
	return node.LastUpdate, true, nil
}

// DeleteLightningNode removes a node and any channels referencing it, along
// with any other endpoint left without channels.
func (c *ChannelGraph) DeleteLightningNode(pub *btcec.PublicKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := nodeKey(pub)
	if _, ok := c.nodes[key]; !ok {
		return ErrGraphNodeNotFound
	}
	for chanID, entry := range c.channels {
		if nodeKey(entry.info.NodeKey1) == key || nodeKey(entry.info.NodeKey2) == key {
			_ = c.deleteChannelLocked(chanID)
		}
	}
	if _, ok := c.nodes[key]; ok {
		delete(c.nodes, key)
		c.nodeGauge.Dec()
	}
	return nil
}

// AddChannelEdge inserts a new channel learned from a channel_announcement.
// Both endpoint nodes are created as bare (no node_announcement yet) entries
// if they don't already exist.
func (c *ChannelGraph) AddChannelEdge(edge *ChannelEdgeInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.channels[edge.ChannelID]; exists {
		return fmt.Errorf("channel %d already exists", edge.ChannelID)
	}

	for _, pub := range []*btcec.PublicKey{edge.NodeKey1, edge.NodeKey2} {
		key := nodeKey(pub)
		if _, ok := c.nodes[key]; !ok {
			c.nodes[key] = &LightningNode{PubKey: pub}
			c.nodeGauge.Inc()
		}
	}

	c.channels[edge.ChannelID] = &channelEntry{info: edge}
	c.chanPointIndex[edge.ChannelPoint] = edge.ChannelID
	c.channelGauge.Inc()
	log.Debugf("channeldb: added channel edge %d", edge.ChannelID)

	return nil
}

// HasChannelEdge reports whether chanID is known and, if so, the last-update
// timestamps recorded for each direction's policy (zero time if unset).
func (c *ChannelGraph) HasChannelEdge(chanID uint64) (time.Time, time.Time, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.channels[chanID]
	if !ok {
		return time.Time{}, time.Time{}, false, nil
	}

	var t1, t2 time.Time
	if entry.policy1 != nil {
		t1 = entry.policy1.LastUpdate
	}
	if entry.policy2 != nil {
		t2 = entry.policy2.LastUpdate
	}
	return t1, t2, true, nil
}

// UpdateEdgePolicy records a channel_update for one direction of chanID.
// fromNode identifies the node whose policy this is (the forwarding node);
// the update is rejected if it isn't newer than the stored one for that
// direction.
func (c *ChannelGraph) UpdateEdgePolicy(fromNode *btcec.PublicKey, policy *ChannelEdgePolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.channels[policy.ChannelID]
	if !ok {
		return ErrEdgeNotFound
	}

	key1 := nodeKey(entry.info.NodeKey1)
	from := nodeKey(fromNode)

	var slot **ChannelEdgePolicy
	if from == key1 {
		slot = &entry.policy1
	} else {
		slot = &entry.policy2
	}

	if *slot != nil && !policy.LastUpdate.After((*slot).LastUpdate) {
		return fmt.Errorf("stale channel_update for channel %d", policy.ChannelID)
	}

	*slot = policy
	c.policyCache.Delete(policy.ChannelID)

	return nil
}

// FetchChannelEdgesByID returns a channel's info and both directions'
// policies (either may be nil if that direction hasn't announced yet).
func (c *ChannelGraph) FetchChannelEdgesByID(chanID uint64) (*ChannelEdgeInfo, *ChannelEdgePolicy, *ChannelEdgePolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.channels[chanID]
	if !ok {
		return nil, nil, nil, ErrEdgeNotFound
	}
	return entry.info, entry.policy1, entry.policy2, nil
}

// DeleteChannelEdge removes a channel, identified by its funding outpoint,
// and drops the owning nodes if they're left with no other channels.
func (c *ChannelGraph) DeleteChannelEdge(chanPoint *wire.OutPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	chanID, ok := c.chanPointIndex[*chanPoint]
	if !ok {
		return ErrEdgeNotFound
	}

	return c.deleteChannelLocked(chanID)
}

func (c *ChannelGraph) deleteChannelLocked(chanID uint64) error {
	entry, ok := c.channels[chanID]
	if !ok {
		return ErrEdgeNotFound
	}

	delete(c.channels, chanID)
	delete(c.chanPointIndex, entry.info.ChannelPoint)
	c.policyCache.Delete(chanID)
	c.channelGauge.Dec()

	for _, pub := range []*btcec.PublicKey{entry.info.NodeKey1, entry.info.NodeKey2} {
		if !c.nodeHasChannelsLocked(pub) {
			key := nodeKey(pub)
			if _, ok := c.nodes[key]; ok {
				delete(c.nodes, key)
				c.nodeGauge.Dec()
			}
		}
	}

	return nil
}

func (c *ChannelGraph) nodeHasChannelsLocked(pub *btcec.PublicKey) bool {
	key := nodeKey(pub)
	for _, entry := range c.channels {
		if nodeKey(entry.info.NodeKey1) == key || nodeKey(entry.info.NodeKey2) == key {
			return true
		}
	}
	return false
}

// ChannelID looks up the short channel ID for a funding outpoint.
func (c *ChannelGraph) ChannelID(chanPoint *wire.OutPoint) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chanID, ok := c.chanPointIndex[*chanPoint]
	if !ok {
		return 0, ErrEdgeNotFound
	}
	return chanID, nil
}

// ForEachNode calls cb once for every node in the graph; iteration stops and
// the error is returned if cb returns a non-nil error.
func (c *ChannelGraph) ForEachNode(cb func(*LightningNode) error) error {
	c.mu.RLock()
	nodes := make([]*LightningNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	for _, n := range nodes {
		if err := cb(n); err != nil {
			return err
		}
	}
	return nil
}

// ForEachChannel calls cb once for every channel in the graph with its info
// and both directions' policies.
func (c *ChannelGraph) ForEachChannel(cb func(*ChannelEdgeInfo, *ChannelEdgePolicy, *ChannelEdgePolicy) error) error {
	c.mu.RLock()
	entries := make([]*channelEntry, 0, len(c.channels))
	for _, e := range c.channels {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if err := cb(e.info, e.policy1, e.policy2); err != nil {
			return err
		}
	}
	return nil
}

// ForEachNodeChannel calls cb for every channel incident to pub, passing the
// channel info and the policy pointing away from pub (nil if unannounced).
func (c *ChannelGraph) ForEachNodeChannel(pub *btcec.PublicKey, cb func(*ChannelEdgeInfo, *ChannelEdgePolicy) error) error {
	key := nodeKey(pub)

	c.mu.RLock()
	type hit struct {
		info   *ChannelEdgeInfo
		policy *ChannelEdgePolicy
	}
	var hits []hit
	for _, e := range c.channels {
		switch {
		case nodeKey(e.info.NodeKey1) == key:
			hits = append(hits, hit{e.info, e.policy1})
		case nodeKey(e.info.NodeKey2) == key:
			hits = append(hits, hit{e.info, e.policy2})
		}
	}
	c.mu.RUnlock()

	for _, h := range hits {
		if err := cb(h.info, h.policy); err != nil {
			return err
		}
	}
	return nil
}

// ChannelView returns the funding outpoints of every channel currently in
// the graph.
func (c *ChannelGraph) ChannelView() ([]wire.OutPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make([]wire.OutPoint, 0, len(c.chanPointIndex))
	for op := range c.chanPointIndex {
		ops = append(ops, op)
	}
	return ops, nil
}

// PruneStale removes any channel whose both directions (or whose only known
// direction) have not been updated within the 14-day staleness window as of
// now, and any node left with zero channels afterwards.
func (c *ChannelGraph) PruneStale(now time.Time) (prunedChannels, prunedNodes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-staleThreshold)
	nodesBefore := len(c.nodes)

	for chanID, entry := range c.channels {
		if !channelIsFreshLocked(entry, cutoff) {
			_ = c.deleteChannelLocked(chanID)
			prunedChannels++
		}
	}

	for key, node := range c.nodes {
		if !c.nodeHasChannelsLocked(node.PubKey) {
			delete(c.nodes, key)
			c.nodeGauge.Dec()
		}
	}
	prunedNodes = nodesBefore - len(c.nodes)

	if prunedChannels > 0 || prunedNodes > 0 {
		log.Infof("channeldb: pruned %d stale channels, %d orphaned nodes",
			prunedChannels, prunedNodes)
	}

	return prunedChannels, prunedNodes
}

func channelIsFreshLocked(entry *channelEntry, cutoff time.Time) bool {
	fresh := false
	if entry.policy1 != nil && entry.policy1.LastUpdate.After(cutoff) {
		fresh = true
	}
	if entry.policy2 != nil && entry.policy2.LastUpdate.After(cutoff) {
		fresh = true
	}
	return fresh
}
