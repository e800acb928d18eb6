// Package discovery implements the authenticated gossip layer: validating
// the channel_announcement, node_announcement and channel_update messages
// that make up the routing graph and applying them to it. Messages are not
// relayed to other peers, and announce_signatures is not processed here.
package discovery

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/channeldb"
	"github.com/lnmobile/lncore/lnwire"
)

// AuthenticatedGossiper validates gossip messages received from peers
// before they're applied to the routing graph; it does not relay them.
type AuthenticatedGossiper struct {
	sync.RWMutex

	// chainHash is the genesis hash of the chain this gossiper is
	// relaying announcements for; announcements for any other chain are
	// rejected outright.
	chainHash chainhash.Hash

	graph *channeldb.ChannelGraph
}

// New creates a gossiper bound to the given chain, applying validated
// announcements to graph.
func New(chainHash chainhash.Hash, graph *channeldb.ChannelGraph) *AuthenticatedGossiper {
	return &AuthenticatedGossiper{
		chainHash: chainHash,
		graph:     graph,
	}
}

// ProcessChannelAnnouncement validates a channel_announcement's chain_hash
// and four signatures, then adds its edge to the routing graph.
func (d *AuthenticatedGossiper) ProcessChannelAnnouncement(a *lnwire.ChannelAnnouncement) error {
	if a.ChainHash != d.chainHash {
		return fmt.Errorf("discovery: channel_announcement for unknown chain %v", a.ChainHash)
	}

	if err := d.validateChannelAnn(a); err != nil {
		return fmt.Errorf("discovery: invalid channel_announcement: %w", err)
	}

	var featureBuf bytes.Buffer
	if a.Features != nil {
		if err := a.Features.Encode(&featureBuf); err != nil {
			return fmt.Errorf("discovery: encoding feature vector: %w", err)
		}
	}

	edge := &channeldb.ChannelEdgeInfo{
		ChannelID:   a.ShortChannelID.ToUint64(),
		ChainHash:   a.ChainHash,
		NodeKey1:    a.NodeID1,
		NodeKey2:    a.NodeID2,
		BitcoinKey1: a.BitcoinKey1,
		BitcoinKey2: a.BitcoinKey2,
		Features:    featureBuf.Bytes(),
		AuthProof: &channeldb.ChannelAuthProof{
			NodeSig1:    a.NodeSig1,
			NodeSig2:    a.NodeSig2,
			BitcoinSig1: a.BitcoinSig1,
			BitcoinSig2: a.BitcoinSig2,
		},
	}

	d.Lock()
	defer d.Unlock()

	if err := d.graph.AddChannelEdge(edge); err != nil {
		return err
	}
	log.Debugf("discovery: applied channel_announcement for channel %d", edge.ChannelID)
	return nil
}

// ProcessNodeAnnouncement validates a node_announcement's signature, then
// records the node's address and feature information in the routing graph.
// A node_announcement for a node the graph hasn't seen a channel from yet is
// accepted but won't be reachable by the pathfinder until one arrives.
func (d *AuthenticatedGossiper) ProcessNodeAnnouncement(a *lnwire.NodeAnnouncement) error {
	if err := d.validateNodeAnn(a); err != nil {
		return fmt.Errorf("discovery: invalid node_announcement: %w", err)
	}

	node := &channeldb.LightningNode{
		PubKey:               a.NodeID,
		HaveNodeAnnouncement: true,
		LastUpdate:           time.Unix(int64(a.Timestamp), 0),
		Addresses:            a.Addresses,
		Alias:                a.Alias.String(),
		AuthSig:              a.Signature,
		Features:             a.Features,
	}

	d.Lock()
	defer d.Unlock()

	if existing, err := d.graph.FetchLightningNode(a.NodeID); err == nil {
		if !node.LastUpdate.After(existing.LastUpdate) {
			return fmt.Errorf("discovery: stale node_announcement for %x",
				a.NodeID.SerializeCompressed())
		}
	}

	return d.graph.AddLightningNode(node)
}

// ProcessChannelUpdate validates a channel_update under fromNode's identity
// key, then records the forwarding policy it describes. BOLT #7 doesn't
// carry the signer's identity key on the wire, so the caller supplies
// fromNode — the endpoint of the channel_announcement that owns the
// direction this update describes.
func (d *AuthenticatedGossiper) ProcessChannelUpdate(fromNode *btcec.PublicKey, u *lnwire.ChannelUpdate) error {
	if u.ChainHash != d.chainHash {
		return fmt.Errorf("discovery: channel_update for unknown chain %v", u.ChainHash)
	}

	if err := d.validateChannelUpdateAnn(fromNode, u); err != nil {
		return fmt.Errorf("discovery: invalid channel_update: %w", err)
	}

	d.Lock()
	defer d.Unlock()

	policy := &channeldb.ChannelEdgePolicy{
		Signature:                 u.Signature,
		ChannelID:                 u.ShortChannelID.ToUint64(),
		LastUpdate:                time.Unix(int64(u.Timestamp), 0),
		Disabled:                  u.ChannelFlags&lnwire.ChanUpdateDisabled != 0,
		TimeLockDelta:             u.TimeLockDelta,
		MinHTLC:                   u.HtlcMinimumMsat,
		FeeBaseMSat:               lnwire.MilliSatoshi(u.BaseFee),
		FeeProportionalMillionths: lnwire.MilliSatoshi(u.FeeRate),
		ToNode:                    d.otherEndpointLocked(fromNode, u.ShortChannelID.ToUint64()),
	}

	return d.graph.UpdateEdgePolicy(fromNode, policy)
}

// otherEndpointLocked returns the node a channel_update's policy forwards
// *towards*: whichever of the channel's two endpoints isn't fromNode. The
// caller must already hold d's lock.
func (d *AuthenticatedGossiper) otherEndpointLocked(fromNode *btcec.PublicKey, chanID uint64) *btcec.PublicKey {
	info, _, _, err := d.graph.FetchChannelEdgesByID(chanID)
	if err != nil {
		return nil
	}
	from := fromNode.SerializeCompressed()
	if bytes.Equal(info.NodeKey1.SerializeCompressed(), from) {
		return info.NodeKey2
	}
	return info.NodeKey1
}

// PruneChannel removes a channel whose funding output has been spent on
// chain, e.g. by a cooperative or force close.
func (d *AuthenticatedGossiper) PruneChannel(fundingOutpoint *wire.OutPoint) error {
	d.Lock()
	defer d.Unlock()

	return d.graph.DeleteChannelEdge(fundingOutpoint)
}
