package contractcourt

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/lnwire"
)

func keyHashScript() []byte {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	bldr.AddData(make([]byte, 20))
	script, _ := bldr.Script()
	return script
}

func witnessScript() []byte {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_1)
	bldr.AddData(make([]byte, 32))
	script, _ := bldr.Script()
	return script
}

func TestClassifyCooperativeClose(t *testing.T) {
	funding := wire.OutPoint{Index: 0}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: funding})
	tx.AddTxOut(&wire.TxOut{Value: 500_000, PkScript: keyHashScript()})
	tx.AddTxOut(&wire.TxOut{Value: 400_000, PkScript: keyHashScript()})

	class := Classify(ClassifyInput{Tx: tx, FundingOutpoint: funding})
	require.Equal(t, ClassCooperativeClose, class)
}

func TestClassifyLocalAndRemoteCommitment(t *testing.T) {
	funding := wire.OutPoint{Index: 0}

	commitTx := wire.NewMsgTx(2)
	commitTx.AddTxIn(&wire.TxIn{PreviousOutPoint: funding})
	commitTx.AddTxOut(&wire.TxOut{Value: 900_000, PkScript: witnessScript()})

	local := Classify(ClassifyInput{
		Tx: commitTx, FundingOutpoint: funding, LocalCommitTxid: commitTx.TxHash(),
	})
	require.Equal(t, ClassLocalCommitment, local)

	remote := Classify(ClassifyInput{Tx: commitTx, FundingOutpoint: funding})
	require.Equal(t, ClassRemoteCommitment, remote)
}

func TestClassifyHTLCTimeoutAndSuccess(t *testing.T) {
	var commitTxid [32]byte
	commitTxid[0] = 0xaa
	known := map[chainhash.Hash]bool{commitTxid: true}

	timeoutTx := wire.NewMsgTx(2)
	timeoutTx.LockTime = 700_000
	timeoutTx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: commitTxid}})

	class := Classify(ClassifyInput{Tx: timeoutTx, KnownCommitmentTxids: known})
	require.Equal(t, ClassHTLCTimeout, class)

	successTx := wire.NewMsgTx(2)
	in := &wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: commitTxid}}
	preimage := make([]byte, 32)
	preimage[0] = 0x42
	in.Witness = wire.TxWitness{[]byte{0x01}, preimage, witnessScript()}
	successTx.AddTxIn(in)

	class = Classify(ClassifyInput{Tx: successTx, KnownCommitmentTxids: known})
	require.Equal(t, ClassHTLCSuccess, class)

	extracted, ok := ExtractPreimage(successTx)
	require.True(t, ok)
	require.Equal(t, preimage, extracted[:])
}

func TestClassifyPenaltyRequiresTwoInputs(t *testing.T) {
	var revokedTxid [32]byte
	revokedTxid[0] = 0xbb
	revoked := map[chainhash.Hash]bool{revokedTxid: true}

	single := wire.NewMsgTx(2)
	single.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: revokedTxid, Index: 0}})
	require.NotEqual(t, ClassPenalty, Classify(ClassifyInput{Tx: single, RevokedCommitmentTxids: revoked}))

	double := wire.NewMsgTx(2)
	double.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: revokedTxid, Index: 0}})
	double.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: revokedTxid, Index: 1}})
	require.Equal(t, ClassPenalty, Classify(ClassifyInput{Tx: double, RevokedCommitmentTxids: revoked}))
}

func TestHTLCTimedOut(t *testing.T) {
	require.False(t, HTLCTimedOut(500, 499))
	require.True(t, HTLCTimedOut(500, 500))
	require.True(t, HTLCTimedOut(500, 501))
}

func TestOutputResolutionReachesIrrevocable(t *testing.T) {
	res := &OutputResolution{}
	res.ObserveSpend(100)
	require.Equal(t, OutputResolved, res.State)

	res.UpdateDepth(100)
	require.Equal(t, OutputResolved, res.State)

	res.UpdateDepth(199)
	require.Equal(t, OutputIrrevocablyResolved, res.State)
}

func TestOutputResolutionRevokedExpiresToLost(t *testing.T) {
	res := &OutputResolution{Revoked: true, RevokedAt: 1000}

	res.UpdateDepth(1017)
	require.Equal(t, OutputUnresolved, res.State)

	res.UpdateDepth(1018)
	require.Equal(t, OutputLost, res.State)
}

func TestChainMonitorProcessTransactionTracksOutputsAndSpends(t *testing.T) {
	m := NewChainMonitor()
	chanID := lnwire.ChannelID{0x01}
	funding := wire.OutPoint{Index: 0}

	state := m.WatchChannel(chanID, funding, [32]byte{})
	require.NotNil(t, state)

	fundingSpend := wire.NewMsgTx(2)
	fundingSpend.AddTxIn(&wire.TxIn{PreviousOutPoint: funding})
	fundingSpend.AddTxOut(&wire.TxOut{Value: 1_000_000, PkScript: witnessScript()})

	class, _, _ := m.ProcessTransaction(chanID, fundingSpend, 500)
	require.Equal(t, ClassRemoteCommitment, class)

	commitTxid := fundingSpend.TxHash()
	commitOutpoint := wire.OutPoint{Hash: commitTxid, Index: 0}

	res, ok := m.Output(chanID, commitOutpoint)
	require.True(t, ok)
	require.Equal(t, OutputUnresolved, res.State)

	m.TrackRemoteCommitment(chanID, commitTxid)

	sweep := wire.NewMsgTx(2)
	sweep.AddTxIn(&wire.TxIn{PreviousOutPoint: commitOutpoint})
	m.ProcessTransaction(chanID, sweep, 510)

	res, ok = m.Output(chanID, commitOutpoint)
	require.True(t, ok)
	require.Equal(t, OutputResolved, res.State)

	m.UpdateDepths(609)
	res, _ = m.Output(chanID, commitOutpoint)
	require.Equal(t, OutputIrrevocablyResolved, res.State)
}
