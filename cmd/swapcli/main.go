// Command swapcli derives a submarine-swap's redeem script, on-chain
// address, and claim/refund fee estimates from the swap's parameters.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jedib0t/go-pretty/v6/table"
	flags "github.com/jessevdk/go-flags"

	"github.com/lnmobile/lncore/swap"
)

// baseSpendSize approximates the non-witness size, in bytes, of a transaction
// spending one swap output to one P2WPKH output, for the fee estimates
// this command prints; callers with an exact transaction should call
// swap.EstimateFee directly instead.
const baseSpendSize = 60

type options struct {
	PaymentHash  string  `long:"payment_hash" description:"32-byte payment hash, hex-encoded" required:"true"`
	ClaimPubkey  string  `long:"claim_pubkey" description:"compressed claim public key, hex-encoded" required:"true"`
	RefundPubkey string  `long:"refund_pubkey" description:"compressed refund public key, hex-encoded" required:"true"`
	Locktime     int64   `long:"locktime" description:"absolute CLTV locktime for the refund clause" required:"true"`
	Testnet      bool    `long:"testnet" description:"derive a testnet3 address instead of mainnet"`
	Feerate      float64 `long:"feerate" description:"fee rate, in sat/vbyte" default:"1.0"`
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapcli] %v\n", err)
	os.Exit(1)
}

func parsePubkey(hexStr string) *btcec.PublicKey {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		fatal(fmt.Errorf("invalid pubkey hex: %w", err))
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		fatal(fmt.Errorf("invalid pubkey: %w", err))
	}
	return pub
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		fatal(err)
	}

	paymentHashBytes, err := hex.DecodeString(opts.PaymentHash)
	if err != nil || len(paymentHashBytes) != 32 {
		fatal(fmt.Errorf("payment_hash must be 32 bytes of hex"))
	}
	var paymentHash [32]byte
	copy(paymentHash[:], paymentHashBytes)

	net := &chaincfg.MainNetParams
	if opts.Testnet {
		net = &chaincfg.TestNet3Params
	}

	s := &swap.Swap{
		PaymentHash:  paymentHash,
		ClaimPubkey:  parsePubkey(opts.ClaimPubkey),
		RefundPubkey: parsePubkey(opts.RefundPubkey),
		Locktime:     opts.Locktime,
		Network:      net,
	}

	redeemScript, err := s.RedeemScript()
	if err != nil {
		fatal(err)
	}
	addr, err := s.Address()
	if err != nil {
		fatal(err)
	}

	maxSig := make([]byte, 72)
	claimWitness, _ := s.ClaimWitness(maxSig, paymentHash)
	refundWitness, _ := s.RefundWitness(maxSig)

	claimFee := swap.EstimateFee(baseSpendSize, swap.WitnessWeight(claimWitness), opts.Feerate)
	refundFee := swap.EstimateFee(baseSpendSize, swap.WitnessWeight(refundWitness), opts.Feerate)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"field", "value"})
	t.AppendRow(table.Row{"redeem_script", hex.EncodeToString(redeemScript)})
	t.AppendRow(table.Row{"address", addr.EncodeAddress()})
	t.AppendRow(table.Row{"claim_fee_sat (est.)", claimFee})
	t.AppendRow(table.Row{"refund_fee_sat (est.)", refundFee})
	t.Render()
}
