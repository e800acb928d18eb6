package swap

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testSwap(t *testing.T, net *chaincfg.Params) *Swap {
	t.Helper()

	claimPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	refundPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var paymentHash [32]byte
	paymentHash[0] = 0x42

	return &Swap{
		PaymentHash:  paymentHash,
		ClaimPubkey:  claimPriv.PubKey(),
		RefundPubkey: refundPriv.PubKey(),
		Locktime:     800_000,
		Network:      net,
	}
}

func TestRedeemScriptIsDeterministic(t *testing.T) {
	s := testSwap(t, &chaincfg.MainNetParams)

	script1, err := s.RedeemScript()
	require.NoError(t, err)
	script2, err := s.RedeemScript()
	require.NoError(t, err)

	require.Equal(t, script1, script2)
	require.NotEmpty(t, script1)
}

func TestMainnetAndTestnetAddressPrefixes(t *testing.T) {
	mainnet := testSwap(t, &chaincfg.MainNetParams)
	addr, err := mainnet.Address()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.EncodeAddress(), "bc1"))

	testnet := testSwap(t, &chaincfg.TestNet3Params)
	testnet.PaymentHash = mainnet.PaymentHash
	testnet.ClaimPubkey = mainnet.ClaimPubkey
	testnet.RefundPubkey = mainnet.RefundPubkey
	addr, err = testnet.Address()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.EncodeAddress(), "tb1"))
}

func TestClaimAndRefundWitnessShape(t *testing.T) {
	s := testSwap(t, &chaincfg.MainNetParams)
	sig := make([]byte, 71)
	var preimage [32]byte
	preimage[0] = 0x99

	claim, err := s.ClaimWitness(sig, preimage)
	require.NoError(t, err)
	require.Len(t, claim, 3)
	require.Equal(t, preimage[:], claim[1])

	refund, err := s.RefundWitness(sig)
	require.NoError(t, err)
	require.Len(t, refund, 3)
	require.Empty(t, refund[1])
}

func TestEstimateFeeMatchesVsizeFormula(t *testing.T) {
	// base_size=200, witness_weight=249 (received-HTLC-penalty) ->
	// weight=200*4+249=1049, vsize=ceil(1049/4)=263, fee=ceil(263*2)=526.
	fee := EstimateFee(200, 249, 2.0)
	require.Equal(t, int64(526), fee)
}

func TestWitnessWeightCountsVarints(t *testing.T) {
	s := testSwap(t, &chaincfg.MainNetParams)
	sig := make([]byte, 71)
	var preimage [32]byte

	claim, err := s.ClaimWitness(sig, preimage)
	require.NoError(t, err)

	weight := WitnessWeight(claim)
	require.Greater(t, weight, int64(len(sig)+len(preimage)))
}
