package discovery

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lnmobile/lncore/channeldb"
	"github.com/lnmobile/lncore/lnwire"
)

func signDigest(t *testing.T, priv *btcec.PrivateKey, data []byte) *ecdsa.Signature {
	t.Helper()
	hash := chainhash.DoubleHashB(data)
	return ecdsa.Sign(priv, hash)
}

func TestValidateChannelAnn(t *testing.T) {
	nodePriv1, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	nodePriv2, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	btcPriv1, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	btcPriv2, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	ann := &lnwire.ChannelAnnouncement{
		Features:       lnwire.NewFeatureVector(nil),
		ShortChannelID: lnwire.NewShortChanIDFromInt(12345),
		NodeID1:        nodePriv1.PubKey(),
		NodeID2:        nodePriv2.PubKey(),
		BitcoinKey1:    btcPriv1.PubKey(),
		BitcoinKey2:    btcPriv2.PubKey(),
	}

	data, err := ann.DataToSign()
	if err != nil {
		t.Fatal(err)
	}

	ann.NodeSig1 = signDigest(t, nodePriv1, data)
	ann.NodeSig2 = signDigest(t, nodePriv2, data)
	ann.BitcoinSig1 = signDigest(t, btcPriv1, data)
	ann.BitcoinSig2 = signDigest(t, btcPriv2, data)

	gossiper := New(chainhash.Hash{}, channeldb.NewChannelGraph())
	if err := gossiper.validateChannelAnn(ann); err != nil {
		t.Fatalf("valid channel announcement rejected: %v", err)
	}

	// Tampering with the short channel ID after signing must invalidate
	// the signatures.
	ann.ShortChannelID = lnwire.NewShortChanIDFromInt(54321)
	if err := gossiper.validateChannelAnn(ann); err == nil {
		t.Fatal("tampered channel announcement was accepted")
	}
}

func TestValidateNodeAnn(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	alias, err := lnwire.NewAlias("test-node")
	if err != nil {
		t.Fatal(err)
	}

	ann := &lnwire.NodeAnnouncement{
		Features:  lnwire.NewFeatureVector(nil),
		Timestamp: 1,
		NodeID:    priv.PubKey(),
		Alias:     alias,
	}

	data, err := ann.DataToSign()
	if err != nil {
		t.Fatal(err)
	}
	ann.Signature = signDigest(t, priv, data)

	gossiper := New(chainhash.Hash{}, channeldb.NewChannelGraph())
	if err := gossiper.validateNodeAnn(ann); err != nil {
		t.Fatalf("valid node announcement rejected: %v", err)
	}
}

func TestValidateChannelUpdateAnn(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	update := &lnwire.ChannelUpdate{
		ShortChannelID: lnwire.NewShortChanIDFromInt(777),
		Timestamp:      1,
		TimeLockDelta:  40,
		BaseFee:        1000,
		FeeRate:        1,
	}

	data, err := update.DataToSign()
	if err != nil {
		t.Fatal(err)
	}
	update.Signature = signDigest(t, priv, data)

	gossiper := New(chainhash.Hash{}, channeldb.NewChannelGraph())
	if err := gossiper.validateChannelUpdateAnn(priv.PubKey(), update); err != nil {
		t.Fatalf("valid channel update rejected: %v", err)
	}

	wrongPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := gossiper.validateChannelUpdateAnn(wrongPriv.PubKey(), update); err == nil {
		t.Fatal("channel update validated against the wrong public key")
	}
}
