// Package swap builds the submarine-swap HTLC redeem script, its P2WSH
// address, and the claim/refund witnesses that spend it.
package swap

import (
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160"

	"github.com/lnmobile/lncore/lnwallet"
)

// Swap parameterizes one submarine-swap HTLC: a payment_hash committed
// script that claimPubkey can spend with the preimage, or refundPubkey can
// reclaim after locktime.
type Swap struct {
	PaymentHash  [32]byte
	ClaimPubkey  *btcec.PublicKey
	RefundPubkey *btcec.PublicKey
	Locktime     int64
	Network      *chaincfg.Params
}

// RedeemScript builds the swap's script:
//
//	OP_SIZE 32 OP_EQUAL
//	OP_IF
//	  OP_HASH160 <RIPEMD160(payment_hash)> OP_EQUALVERIFY <claim_pubkey>
//	OP_ELSE
//	  OP_DROP <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP <refund_pubkey>
//	OP_ENDIF
//	OP_CHECKSIG
func (s *Swap) RedeemScript() ([]byte, error) {
	if s.ClaimPubkey == nil || s.RefundPubkey == nil {
		return nil, fmt.Errorf("swap: claim and refund pubkeys are required")
	}

	h := ripemd160.New()
	h.Write(s.PaymentHash[:])
	paymentHash160 := h.Sum(nil)

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_SIZE)
	bldr.AddInt64(32)
	bldr.AddOp(txscript.OP_EQUAL)
	bldr.AddOp(txscript.OP_IF)
	bldr.AddOp(txscript.OP_HASH160)
	bldr.AddData(paymentHash160)
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddData(s.ClaimPubkey.SerializeCompressed())
	bldr.AddOp(txscript.OP_ELSE)
	bldr.AddOp(txscript.OP_DROP)
	bldr.AddInt64(s.Locktime)
	bldr.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	bldr.AddOp(txscript.OP_DROP)
	bldr.AddData(s.RefundPubkey.SerializeCompressed())
	bldr.AddOp(txscript.OP_ENDIF)
	bldr.AddOp(txscript.OP_CHECKSIG)

	return bldr.Script()
}

// PkScript returns the P2WSH output script paying to RedeemScript.
func (s *Swap) PkScript() ([]byte, error) {
	redeemScript, err := s.RedeemScript()
	if err != nil {
		return nil, err
	}
	return lnwallet.WitnessScriptHash(redeemScript)
}

// Address returns the swap's P2WSH bech32 address under Network (mainnet
// "bc", testnet "tb").
func (s *Swap) Address() (btcutil.Address, error) {
	redeemScript, err := s.RedeemScript()
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(redeemScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], s.Network)
	if err != nil {
		return nil, err
	}
	log.Debugf("swap: derived address %s for payment_hash=%x", addr.EncodeAddress(), s.PaymentHash)
	return addr, nil
}

// ClaimWitness builds the witness stack that spends the swap output via its
// claim clause: <sig> <preimage> <script>.
func (s *Swap) ClaimWitness(sig []byte, preimage [32]byte) (wire.TxWitness, error) {
	redeemScript, err := s.RedeemScript()
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{sig, preimage[:], redeemScript}, nil
}

// RefundWitness builds the witness stack that spends the swap output via
// its refund clause: <sig> <> <script>.
func (s *Swap) RefundWitness(sig []byte) (wire.TxWitness, error) {
	redeemScript, err := s.RedeemScript()
	if err != nil {
		return nil, err
	}
	return wire.TxWitness{sig, nil, redeemScript}, nil
}

// WitnessWeight returns a witness's contribution to a transaction's
// weight: 1 weight unit per serialized byte (varint item counts and
// lengths included).
func WitnessWeight(w wire.TxWitness) int64 {
	weight := int64(wire.VarIntSerializeSize(uint64(len(w))))
	for _, item := range w {
		weight += int64(wire.VarIntSerializeSize(uint64(len(item)))) + int64(len(item))
	}
	return weight
}

// EstimateFee computes ⌈vsize·feerate⌉ where
// vsize = ⌈(baseSize·4 + witnessWeight)/4⌉, feerate in sat/vbyte.
func EstimateFee(baseSize int64, witnessWeight int64, feerate float64) int64 {
	weight := float64(baseSize*4 + witnessWeight)
	vsize := math.Ceil(weight / 4)
	return int64(math.Ceil(vsize * feerate))
}

