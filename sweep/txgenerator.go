// Package sweep batches resolved on-chain outputs into sweep transactions:
// grouping inputs by fee yield, estimating the transaction's weight from
// each input's witness type, and building the resulting unsigned
// transaction for handoff to an external signer.
package sweep

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/lnmobile/lncore/contractcourt"
	"github.com/lnmobile/lncore/lnwallet"
)

// DefaultMaxInputsPerTx specifies the default maximum number of inputs
// allowed in a single sweep tx. If more need to be swept, multiple txes
// are created and published.
var DefaultMaxInputsPerTx = 100

// SatPerKWeight is a fee rate expressed in satoshis per 1,000 weight units.
type SatPerKWeight int64

// FeeForWeight returns the fee owed for a transaction of the given weight
// at this fee rate.
func (f SatPerKWeight) FeeForWeight(weight int64) btcutil.Amount {
	return btcutil.Amount(int64(f) * weight / 1000)
}

// FeePerKVByte converts the weight-denominated fee rate into its
// vbyte-denominated equivalent, as required by txrules.GetDustThreshold.
func (f SatPerKWeight) FeePerKVByte() btcutil.Amount {
	return btcutil.Amount(f * blockchain.WitnessScaleFactor)
}

// WitnessType identifies which script an Input's witness satisfies, so its
// upper-bound weight contribution can be looked up without building the
// witness itself.
type WitnessType uint8

const (
	// WitnessP2WKH is a plain single-sig output, e.g. a submarine swap's
	// refund or claim path paying directly to a wallet address.
	WitnessP2WKH WitnessType = iota

	// WitnessToLocalPenalty sweeps a revoked to_local output.
	WitnessToLocalPenalty

	// WitnessOfferedHTLCPenalty sweeps a revoked offered-HTLC output.
	WitnessOfferedHTLCPenalty

	// WitnessReceivedHTLCPenalty sweeps a revoked received-HTLC output.
	WitnessReceivedHTLCPenalty
)

// weight returns wt's full per-input weight (base input bytes at 4x,
// witness bytes at 1x, per BIP-141).
func (wt WitnessType) weight() int64 {
	switch wt {
	case WitnessToLocalPenalty:
		return contractcourt.WeightToLocalPenaltyInput
	case WitnessOfferedHTLCPenalty:
		return contractcourt.WeightOfferedHTLCPenaltyInput
	case WitnessReceivedHTLCPenalty:
		return contractcourt.WeightReceivedHTLCPenaltyInput
	default:
		return 4*lnwallet.InputSize + lnwallet.P2WKHWitnessSize
	}
}

func (wt WitnessType) String() string {
	switch wt {
	case WitnessToLocalPenalty:
		return "to_local_penalty"
	case WitnessOfferedHTLCPenalty:
		return "offered_htlc_penalty"
	case WitnessReceivedHTLCPenalty:
		return "received_htlc_penalty"
	default:
		return "p2wkh"
	}
}

// Input is a single on-chain output ready to be swept. ResolvedInput adapts
// a contractcourt OutputResolution that has reached OutputResolved into
// one.
type Input interface {
	OutPoint() wire.OutPoint
	Value() btcutil.Amount
	WitnessType() WitnessType
}

// inputSet is a group of inputs that will be swept together in one
// transaction.
type inputSet []Input

// staticTxWeight is the weight contributed by every sweep transaction
// regardless of its inputs: version, locktime, the input/output compact-size
// counts, a single P2WKH output, and the segwit marker/flag.
const staticTxWeight = int64(blockchain.WitnessScaleFactor)*(4+4+1+1+lnwallet.P2WKHOutputSize) +
	lnwallet.WitnessHeaderSize

// generateInputPartitionings goes through all given inputs and constructs
// sets of inputs that can be used to generate a sensible transaction. Each
// set contains up to maxInputsPerTx inputs. Negative-yield inputs are
// skipped. No input set whose total value after fees is below the dust
// limit is returned.
func generateInputPartitionings(sweepableInputs []Input,
	relayFeePerKW, feePerKW SatPerKWeight,
	maxInputsPerTx int) ([]inputSet, error) {

	dustLimit := txrules.GetDustThreshold(
		lnwallet.P2WPKHSize, relayFeePerKW.FeePerKVByte(),
	)

	// Sort inputs by yield, highest first, so we build sets starting
	// with the inputs most worth sweeping. Yield is value minus the fee
	// this input alone adds to the set (its witness weight only; the
	// static transaction weight is common to every input and wouldn't
	// change the ordering).
	yields := make(map[wire.OutPoint]int64)
	for _, input := range sweepableInputs {
		weight := input.WitnessType().weight()
		yields[input.OutPoint()] = int64(input.Value()) -
			int64(feePerKW.FeeForWeight(weight))
	}

	sort.Slice(sweepableInputs, func(i, j int) bool {
		return yields[sweepableInputs[i].OutPoint()] >
			yields[sweepableInputs[j].OutPoint()]
	})

	var sets []inputSet
	for len(sweepableInputs) > 0 {
		count, outputValue := getPositiveYieldInputs(
			sweepableInputs, maxInputsPerTx, feePerKW,
		)

		if count == 0 {
			return sets, nil
		}

		if outputValue < dustLimit {
			log.Debugf("sweep: candidate set value %v below dust limit %v",
				outputValue, dustLimit)
			return sets, nil
		}

		log.Infof("sweep: candidate set of size=%d, yield=%v", count, outputValue)

		sets = append(sets, sweepableInputs[:count])
		sweepableInputs = sweepableInputs[count:]
	}

	return sets, nil
}

// getPositiveYieldInputs returns the maximum n for which the inputs [0,n)
// of sweepableInputs have a positive yield, along with the total value of
// that set minus fees.
func getPositiveYieldInputs(sweepableInputs []Input, maxInputs int,
	feePerKW SatPerKWeight) (int, btcutil.Amount) {

	weight := staticTxWeight

	var total, outputValue btcutil.Amount
	for idx, input := range sweepableInputs {
		weight += input.WitnessType().weight()

		newTotal := total + input.Value()
		fee := feePerKW.FeeForWeight(weight)
		newOutputValue := newTotal - fee

		if newOutputValue <= outputValue {
			return idx, outputValue
		}

		total = newTotal
		outputValue = newOutputValue

		if idx == maxInputs-1 {
			return maxInputs, outputValue
		}
	}

	return len(sweepableInputs), outputValue
}

// createSweepTx builds the unsigned transaction spending inputs to
// outputPkScript, locked to currentBlockHeight. Attaching witnesses is left
// to an external signer, consistent with the boundary this package and
// interactivetx.Session.ExportPSBT both draw around signing.
func createSweepTx(inputs []Input, outputPkScript []byte,
	currentBlockHeight uint32, feePerKw SatPerKWeight) (*wire.MsgTx, error) {

	if len(inputs) == 0 {
		return nil, fmt.Errorf("sweep: cannot build a transaction with no inputs")
	}

	txWeight := staticTxWeight
	var totalSum btcutil.Amount
	for _, inp := range inputs {
		txWeight += inp.WitnessType().weight()
		totalSum += inp.Value()
	}

	txFee := feePerKw.FeeForWeight(txWeight)
	sweepAmt := int64(totalSum - txFee)
	if sweepAmt <= 0 {
		return nil, fmt.Errorf("sweep: fee %v exceeds total input value %v", txFee, totalSum)
	}

	log.Infof("sweep: building transaction for %d inputs, %v sat/kw, output %v sat",
		len(inputs), int64(feePerKw), sweepAmt)

	sweepTx := wire.NewMsgTx(2)
	sweepTx.AddTxOut(&wire.TxOut{
		PkScript: outputPkScript,
		Value:    sweepAmt,
	})
	sweepTx.LockTime = currentBlockHeight

	for _, input := range inputs {
		outpoint := input.OutPoint()
		sweepTx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint})
	}

	btx := btcutil.NewTx(sweepTx)
	if err := blockchain.CheckTransactionSanity(btx); err != nil {
		return nil, fmt.Errorf("sweep: constructed transaction failed sanity check: %w", err)
	}

	return sweepTx, nil
}
