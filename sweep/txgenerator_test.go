package sweep

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

type fakeInput struct {
	outpoint wire.OutPoint
	value    btcutil.Amount
	witness  WitnessType
}

func (f fakeInput) OutPoint() wire.OutPoint  { return f.outpoint }
func (f fakeInput) Value() btcutil.Amount    { return f.value }
func (f fakeInput) WitnessType() WitnessType { return f.witness }

func newFakeInput(index uint32, value btcutil.Amount, wt WitnessType) fakeInput {
	return fakeInput{
		outpoint: wire.OutPoint{Index: index},
		value:    value,
		witness:  wt,
	}
}

func TestCreateSweepTxSpendsAllInputs(t *testing.T) {
	inputs := []Input{
		newFakeInput(0, 100_000, WitnessP2WKH),
		newFakeInput(1, 50_000, WitnessP2WKH),
	}

	pkScript := []byte{0x00, 0x14}
	pkScript = append(pkScript, make([]byte, 20)...)

	tx, err := createSweepTx(inputs, pkScript, 500, SatPerKWeight(10_000))
	if err != nil {
		t.Fatalf("createSweepTx: %v", err)
	}

	if len(tx.TxIn) != len(inputs) {
		t.Fatalf("expected %d inputs, got %d", len(inputs), len(tx.TxIn))
	}
	if len(tx.TxOut) != 1 {
		t.Fatalf("expected a single output, got %d", len(tx.TxOut))
	}
	if tx.TxOut[0].Value >= int64(150_000) {
		t.Fatalf("output value %d should be less than input sum after fees", tx.TxOut[0].Value)
	}
	if tx.LockTime != 500 {
		t.Fatalf("expected locktime 500, got %d", tx.LockTime)
	}
}

func TestCreateSweepTxRejectsFeeExceedingValue(t *testing.T) {
	inputs := []Input{newFakeInput(0, 100, WitnessToLocalPenalty)}
	pkScript := []byte{0x00, 0x14}
	pkScript = append(pkScript, make([]byte, 20)...)

	if _, err := createSweepTx(inputs, pkScript, 0, SatPerKWeight(1_000_000)); err == nil {
		t.Fatalf("expected an error when fees exceed input value")
	}
}

func TestGenerateInputPartitioningsDropsNegativeYield(t *testing.T) {
	inputs := []Input{
		newFakeInput(0, 1_000_000, WitnessP2WKH),
		newFakeInput(1, 50, WitnessP2WKH),
	}

	sets, err := generateInputPartitionings(inputs, SatPerKWeight(253), SatPerKWeight(10_000), DefaultMaxInputsPerTx)
	if err != nil {
		t.Fatalf("generateInputPartitionings: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected exactly one set, got %d", len(sets))
	}
	if len(sets[0]) != 1 {
		t.Fatalf("expected the low-value input to be excluded, got set of size %d", len(sets[0]))
	}
}

func TestGenerateInputPartitioningsSplitsAtMaxInputs(t *testing.T) {
	var inputs []Input
	for i := uint32(0); i < 5; i++ {
		inputs = append(inputs, newFakeInput(i, 1_000_000, WitnessP2WKH))
	}

	sets, err := generateInputPartitionings(inputs, SatPerKWeight(253), SatPerKWeight(10_000), 2)
	if err != nil {
		t.Fatalf("generateInputPartitionings: %v", err)
	}

	var total int
	for _, s := range sets {
		if len(s) > 2 {
			t.Fatalf("set exceeds max inputs per tx: %d", len(s))
		}
		total += len(s)
	}
	if total != len(inputs) {
		t.Fatalf("expected all %d inputs partitioned, got %d", len(inputs), total)
	}
}
