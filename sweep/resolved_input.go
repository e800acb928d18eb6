package sweep

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/contractcourt"
)

// classWitnessType maps a resolved output's TxClass to the witness it takes
// to sweep: penalty transactions sweep as to_local penalties, and every
// other class as a plain P2WKH output.
func classWitnessType(class contractcourt.TxClass) WitnessType {
	switch class {
	case contractcourt.ClassPenalty:
		return WitnessToLocalPenalty
	default:
		return WitnessP2WKH
	}
}

// ResolvedInput adapts a contractcourt.OutputResolution that has reached
// OutputResolved into a sweep Input. contractcourt tracks an output's
// confirmation-depth state machine but not its value or exact script, so
// the caller supplies those once it reads them off the spending
// transaction.
type ResolvedInput struct {
	Resolution *contractcourt.OutputResolution
	value      btcutil.Amount
	witness    WitnessType
}

// NewResolvedInput builds a ResolvedInput for a resolution that has reached
// OutputResolved, using class to pick the witness type and value as the
// amount recovered.
func NewResolvedInput(res *contractcourt.OutputResolution, value btcutil.Amount) *ResolvedInput {
	return &ResolvedInput{
		Resolution: res,
		value:      value,
		witness:    classWitnessType(res.Class),
	}
}

func (r *ResolvedInput) OutPoint() wire.OutPoint    { return r.Resolution.Outpoint }
func (r *ResolvedInput) Value() btcutil.Amount      { return r.value }
func (r *ResolvedInput) WitnessType() WitnessType   { return r.witness }
