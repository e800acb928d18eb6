package interactivetx

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/lnwire"
)

func dummyPrevTx(value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: []byte{0x00, 0x14}})
	return tx
}

func serialize(t *testing.T, tx *wire.MsgTx) lnwire.WireBytes {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return lnwire.WireBytes(buf.Bytes())
}

func TestNegotiationHappyPath(t *testing.T) {
	cid := lnwire.ChannelID{1}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))

	initiator := NewSession(Config{ChannelID: cid, Initiator: true, Clock: clk, FundingAmt: 600_000, PeerFundingAmt: 400_000})
	responder := NewSession(Config{ChannelID: cid, Initiator: false, Clock: clk, FundingAmt: 400_000, PeerFundingAmt: 600_000})

	_, err := initiator.Start()
	require.NoError(t, err)

	prevA := dummyPrevTx(700_000)
	addA, err := initiator.AddInput(prevA, 0, 0)
	require.NoError(t, err)

	res, err := responder.HandleMessage(addA)
	require.NoError(t, err)
	require.Nil(t, res.Error)

	prevB := dummyPrevTx(500_000)
	addB, err := responder.AddInput(prevB, 0, 0)
	require.NoError(t, err)
	_, err = initiator.HandleMessage(addB)
	require.NoError(t, err)

	outFunding, err := initiator.AddOutput(1_000_000, []byte{0x00, 0x20})
	require.NoError(t, err)
	_, err = responder.HandleMessage(outFunding)
	require.NoError(t, err)

	outChangeA, err := initiator.AddOutput(190_000, []byte{0x00, 0x14})
	require.NoError(t, err)
	_, err = responder.HandleMessage(outChangeA)
	require.NoError(t, err)

	outChangeB, err := responder.AddOutput(9_000, []byte{0x00, 0x14})
	require.NoError(t, err)
	_, err = initiator.HandleMessage(outChangeB)
	require.NoError(t, err)

	resI, err := initiator.SendTxComplete()
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPeerTurn, resI.State)
	require.Nil(t, resI.ConstructedTx)

	// Responder hasn't signaled its own completion yet, so receiving
	// the initiator's tx_complete must not finalize on its own.
	resR, err := responder.HandleMessage(&lnwire.TxComplete{ChannelID: cid})
	require.NoError(t, err)
	require.Nil(t, resR.ConstructedTx)

	resR2, err := responder.SendTxComplete()
	require.NoError(t, err)
	require.NotNil(t, resR2.ConstructedTx)

	resI2, err := initiator.HandleMessage(&lnwire.TxComplete{ChannelID: cid})
	require.NoError(t, err)
	require.NotNil(t, resI2.ConstructedTx)
	require.Equal(t, StateSuccess, initiator.State())
	require.Len(t, resI2.ConstructedTx.TxOut, 3)
}

func TestHandleAddInputRejectsWrongParity(t *testing.T) {
	cid := lnwire.ChannelID{2}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	responder := NewSession(Config{ChannelID: cid, Initiator: false, Clock: clk})

	prevTx := dummyPrevTx(100_000)
	// Odd serial_id from an initiator-sent input is invalid: the
	// initiator must use even ids.
	res, err := responder.HandleMessage(&lnwire.TxAddInput{
		ChannelID:  cid,
		SerialID:   1,
		PrevTx:     serialize(t, prevTx),
		PrevTxVout: 0,
	})
	require.NoError(t, err)
	require.Equal(t, StateAborted, res.State)
	require.Error(t, res.Error)
}

func TestHandleAddInputRejectsDuplicateSerialID(t *testing.T) {
	cid := lnwire.ChannelID{3}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	responder := NewSession(Config{ChannelID: cid, Initiator: false, Clock: clk})

	prevTx := dummyPrevTx(100_000)
	msg := &lnwire.TxAddInput{ChannelID: cid, SerialID: 0, PrevTx: serialize(t, prevTx), PrevTxVout: 0}

	_, err := responder.HandleMessage(msg)
	require.NoError(t, err)

	res, err := responder.HandleMessage(msg)
	require.NoError(t, err)
	require.Equal(t, StateAborted, res.State)
}

func TestSessionAbortsAfterTimeout(t *testing.T) {
	cid := lnwire.ChannelID{4}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	initiator := NewSession(Config{ChannelID: cid, Initiator: true, Clock: clk})

	_, err := initiator.Start()
	require.NoError(t, err)

	clk.SetTime(clk.Now().Add(61 * time.Second))

	res, err := initiator.HandleMessage(&lnwire.TxComplete{ChannelID: cid})
	require.NoError(t, err)
	require.Equal(t, StateAborted, res.State)
}

func TestFinalizeRejectsEmptyContribution(t *testing.T) {
	cid := lnwire.ChannelID{5}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	initiator := NewSession(Config{ChannelID: cid, Initiator: true, Clock: clk})

	_, err := initiator.Start()
	require.NoError(t, err)

	res, err := initiator.SendTxComplete()
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPeerTurn, res.State)

	res2, err := initiator.HandleMessage(&lnwire.TxComplete{ChannelID: cid})
	require.NoError(t, err)
	require.Equal(t, StateAborted, res2.State)
}

func TestExportPSBTAttachesKnownPrevouts(t *testing.T) {
	cid := lnwire.ChannelID{6}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))

	initiator := NewSession(Config{ChannelID: cid, Initiator: true, Clock: clk, FundingAmt: 600_000, PeerFundingAmt: 400_000})
	responder := NewSession(Config{ChannelID: cid, Initiator: false, Clock: clk, FundingAmt: 400_000, PeerFundingAmt: 600_000})

	_, err := initiator.Start()
	require.NoError(t, err)

	prevA := dummyPrevTx(700_000)
	addA, err := initiator.AddInput(prevA, 0, 0)
	require.NoError(t, err)
	_, err = responder.HandleMessage(addA)
	require.NoError(t, err)

	prevB := dummyPrevTx(500_000)
	addB, err := responder.AddInput(prevB, 0, 0)
	require.NoError(t, err)
	_, err = initiator.HandleMessage(addB)
	require.NoError(t, err)

	outFunding, err := initiator.AddOutput(1_000_000, []byte{0x00, 0x20})
	require.NoError(t, err)
	_, err = responder.HandleMessage(outFunding)
	require.NoError(t, err)

	resI, err := initiator.SendTxComplete()
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPeerTurn, resI.State)

	resR, err := responder.SendTxComplete()
	require.NoError(t, err)
	require.NotNil(t, resR.ConstructedTx)

	resI2, err := initiator.HandleMessage(&lnwire.TxComplete{ChannelID: cid})
	require.NoError(t, err)
	require.NotNil(t, resI2.ConstructedTx)

	// The initiator knows both prevouts (it supplied one itself and
	// received the other's serialized prevTx over the wire), so the
	// exported PSBT should carry a non_witness_utxo for every input.
	packet, err := initiator.ExportPSBT()
	require.NoError(t, err)
	require.Len(t, packet.Inputs, len(initiator.constructedTx.TxIn))
	for _, in := range packet.Inputs {
		require.NotNil(t, in.NonWitnessUtxo)
	}
}

func TestExportPSBTFailsBeforeFinalization(t *testing.T) {
	cid := lnwire.ChannelID{7}
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	initiator := NewSession(Config{ChannelID: cid, Initiator: true, Clock: clk})

	_, err := initiator.ExportPSBT()
	require.Error(t, err)
}
