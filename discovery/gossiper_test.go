package discovery

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/channeldb"
	"github.com/lnmobile/lncore/lnwire"
)

type gossipPeer struct {
	priv *btcec.PrivateKey
}

func newGossipPeer(t *testing.T) gossipPeer {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return gossipPeer{priv: priv}
}

func signedChannelAnnouncement(t *testing.T, chainHash chainhash.Hash, node1, node2, btc1, btc2 gossipPeer, scid uint64) *lnwire.ChannelAnnouncement {
	t.Helper()

	ann := &lnwire.ChannelAnnouncement{
		Features:       lnwire.NewFeatureVector(nil),
		ChainHash:      chainHash,
		ShortChannelID: lnwire.NewShortChanIDFromInt(scid),
		NodeID1:        node1.priv.PubKey(),
		NodeID2:        node2.priv.PubKey(),
		BitcoinKey1:    btc1.priv.PubKey(),
		BitcoinKey2:    btc2.priv.PubKey(),
	}
	data, err := ann.DataToSign()
	if err != nil {
		t.Fatal(err)
	}
	ann.NodeSig1 = signDigest(t, node1.priv, data)
	ann.NodeSig2 = signDigest(t, node2.priv, data)
	ann.BitcoinSig1 = signDigest(t, btc1.priv, data)
	ann.BitcoinSig2 = signDigest(t, btc2.priv, data)
	return ann
}

func TestProcessChannelAnnouncementAddsEdge(t *testing.T) {
	chainHash := chainhash.Hash{0x01}
	graph := channeldb.NewChannelGraph()
	gossiper := New(chainHash, graph)

	node1, node2 := newGossipPeer(t), newGossipPeer(t)
	btc1, btc2 := newGossipPeer(t), newGossipPeer(t)
	ann := signedChannelAnnouncement(t, chainHash, node1, node2, btc1, btc2, 100)

	if err := gossiper.ProcessChannelAnnouncement(ann); err != nil {
		t.Fatalf("valid channel_announcement rejected: %v", err)
	}

	info, _, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	if err != nil {
		t.Fatalf("edge not applied to graph: %v", err)
	}
	if info.ChannelID != ann.ShortChannelID.ToUint64() {
		t.Fatalf("unexpected channel id %d", info.ChannelID)
	}

	// A second announcement on a different chain must be rejected before
	// signatures are even checked.
	wrongChain := chainhash.Hash{0x02}
	ann2 := signedChannelAnnouncement(t, wrongChain, node1, node2, btc1, btc2, 101)
	if err := gossiper.ProcessChannelAnnouncement(ann2); err == nil {
		t.Fatal("channel_announcement for the wrong chain was accepted")
	}
}

func TestProcessNodeAnnouncementRejectsStale(t *testing.T) {
	chainHash := chainhash.Hash{}
	graph := channeldb.NewChannelGraph()
	gossiper := New(chainHash, graph)

	peer := newGossipPeer(t)
	alias, err := lnwire.NewAlias("node-a")
	if err != nil {
		t.Fatal(err)
	}

	mkAnn := func(ts uint32) *lnwire.NodeAnnouncement {
		a := &lnwire.NodeAnnouncement{
			Features:  lnwire.NewFeatureVector(nil),
			Timestamp: ts,
			NodeID:    peer.priv.PubKey(),
			Alias:     alias,
		}
		data, err := a.DataToSign()
		if err != nil {
			t.Fatal(err)
		}
		a.Signature = signDigest(t, peer.priv, data)
		return a
	}

	if err := gossiper.ProcessNodeAnnouncement(mkAnn(100)); err != nil {
		t.Fatalf("valid node_announcement rejected: %v", err)
	}
	if err := gossiper.ProcessNodeAnnouncement(mkAnn(50)); err == nil {
		t.Fatal("stale node_announcement was accepted")
	}
	if err := gossiper.ProcessNodeAnnouncement(mkAnn(200)); err != nil {
		t.Fatalf("newer node_announcement rejected: %v", err)
	}
}

func TestProcessChannelUpdateAppliesPolicy(t *testing.T) {
	chainHash := chainhash.Hash{}
	graph := channeldb.NewChannelGraph()
	gossiper := New(chainHash, graph)

	node1, node2 := newGossipPeer(t), newGossipPeer(t)
	btc1, btc2 := newGossipPeer(t), newGossipPeer(t)
	ann := signedChannelAnnouncement(t, chainHash, node1, node2, btc1, btc2, 55)
	if err := gossiper.ProcessChannelAnnouncement(ann); err != nil {
		t.Fatalf("valid channel_announcement rejected: %v", err)
	}

	update := &lnwire.ChannelUpdate{
		ChainHash:      chainHash,
		ShortChannelID: ann.ShortChannelID,
		Timestamp:      10,
		TimeLockDelta:  40,
		BaseFee:        1000,
		FeeRate:        1,
	}
	data, err := update.DataToSign()
	if err != nil {
		t.Fatal(err)
	}
	update.Signature = signDigest(t, node1.priv, data)

	if err := gossiper.ProcessChannelUpdate(node1.priv.PubKey(), update); err != nil {
		t.Fatalf("valid channel_update rejected: %v", err)
	}

	info, policy1, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64())
	if err != nil {
		t.Fatal(err)
	}
	if policy1 == nil {
		t.Fatal("policy for node1's direction was not recorded")
	}
	if !policy1.ToNode.IsEqual(info.NodeKey2) {
		t.Fatalf("policy should forward towards node2")
	}
}

func TestPruneChannelRemovesEdge(t *testing.T) {
	chainHash := chainhash.Hash{}
	graph := channeldb.NewChannelGraph()
	gossiper := New(chainHash, graph)

	node1, node2 := newGossipPeer(t), newGossipPeer(t)
	btc1, btc2 := newGossipPeer(t), newGossipPeer(t)
	ann := signedChannelAnnouncement(t, chainHash, node1, node2, btc1, btc2, 9)
	if err := gossiper.ProcessChannelAnnouncement(ann); err != nil {
		t.Fatal(err)
	}

	// ProcessChannelAnnouncement doesn't learn a funding outpoint from the
	// wire message alone (that comes from the short_channel_id's block
	// lookup), so the edge keys off the zero-value outpoint here.
	var outpoint wire.OutPoint
	if err := gossiper.PruneChannel(&outpoint); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if _, _, _, err := graph.FetchChannelEdgesByID(ann.ShortChannelID.ToUint64()); err == nil {
		t.Fatal("channel still present after prune")
	}
}
