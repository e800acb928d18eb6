package splice

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/lnwire"
)

type fakeChainSource struct {
	confChan chan uint32
}

func newFakeChainSource() *fakeChainSource {
	return &fakeChainSource{confChan: make(chan uint32, 1)}
}

func (f *fakeChainSource) RegisterConfirmationsNtfn(txid *wire.OutPoint, numConfs uint32) (<-chan uint32, error) {
	return f.confChan, nil
}

func pubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestSpliceInitAckClassifiesAdd(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	cid := lnwire.ChannelID{1}

	initiator := NewNegotiation(Config{ChannelID: cid, Initiator: true, Clock: clk, CurrentCapacity: 1_000_000})
	initMsg, err := initiator.Init(500_000, 253, 0, pubkey(t))
	require.NoError(t, err)

	responder := NewNegotiation(Config{ChannelID: cid, Initiator: false, Clock: clk, CurrentCapacity: 1_000_000})
	ackMsg, err := responder.HandleSpliceInit(initMsg, 0, pubkey(t))
	require.NoError(t, err)
	require.Equal(t, TypeAdd, responder.Type())

	require.NoError(t, initiator.HandleSpliceAck(ackMsg))
	require.Equal(t, TypeAdd, initiator.Type())
	require.Equal(t, StateNegotiatingTx, initiator.State())
}

func TestSpliceClassifiesCombined(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	cid := lnwire.ChannelID{2}

	initiator := NewNegotiation(Config{ChannelID: cid, Initiator: true, Clock: clk, CurrentCapacity: 1_000_000})
	initMsg, err := initiator.Init(500_000, 253, 0, pubkey(t))
	require.NoError(t, err)

	responder := NewNegotiation(Config{ChannelID: cid, Initiator: false, Clock: clk, CurrentCapacity: 1_000_000})
	_, err = responder.HandleSpliceInit(initMsg, -100_000, pubkey(t))
	require.NoError(t, err)
	require.Equal(t, TypeCombined, responder.Type())
}

func TestSpliceRejectsNonPositiveResultingCapacity(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	cid := lnwire.ChannelID{3}

	initiator := NewNegotiation(Config{ChannelID: cid, Initiator: true, Clock: clk, CurrentCapacity: 100_000})
	initMsg, err := initiator.Init(-90_000, 253, 0, pubkey(t))
	require.NoError(t, err)

	responder := NewNegotiation(Config{ChannelID: cid, Initiator: false, Clock: clk, CurrentCapacity: 100_000})
	_, err = responder.HandleSpliceInit(initMsg, -20_000, pubkey(t))
	require.Error(t, err)
	require.Equal(t, StateFailed, responder.State())
}

func TestSpliceLockedRequiresConfirmation(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	cid := lnwire.ChannelID{4}
	src := newFakeChainSource()

	n := NewNegotiation(Config{ChannelID: cid, Initiator: true, Clock: clk, ChainSource: src, CurrentCapacity: 1_000_000})

	_, err := n.SendSpliceLocked(pubkey(t))
	require.Error(t, err)

	tx := wire.NewMsgTx(2)
	require.NoError(t, n.OnTxConstructed(tx))

	src.confChan <- 3
	require.Eventually(t, n.ReadyForLocked, time.Second, time.Millisecond)

	msg, err := n.SendSpliceLocked(pubkey(t))
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, n.HandleSpliceLocked(&lnwire.SpliceLocked{ChannelID: cid, NextPerCommitmentPoint: pubkey(t)}))
	require.Equal(t, StateCompleted, n.State())
}

