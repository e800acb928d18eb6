package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestGenFundingPkScript(t *testing.T) {
	privA, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	privB, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	redeemScript, txOut, err := GenFundingPkScript(
		privA.PubKey().SerializeCompressed(),
		privB.PubKey().SerializeCompressed(), 100000,
	)
	require.NoError(t, err)
	require.NotEmpty(t, redeemScript)
	require.Equal(t, int64(100000), txOut.Value)

	// P2WSH output: OP_0 <32-byte-hash>.
	require.Len(t, txOut.PkScript, 34)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(txOut)

	found, idx := FindScriptOutputIndex(tx, txOut.PkScript)
	require.True(t, found)
	require.EqualValues(t, 0, idx)
}

func TestGenFundingPkScriptRejectsNonPositiveAmount(t *testing.T) {
	privA, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	privB, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, _, err = GenFundingPkScript(
		privA.PubKey().SerializeCompressed(),
		privB.PubKey().SerializeCompressed(), 0,
	)
	require.Error(t, err)
}
