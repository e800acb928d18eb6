// Package contractcourt classifies confirmed on-chain transactions against
// a channel's tracked funding/commitment outputs and drives each output's
// UNRESOLVED -> RESOLVED -> IRREVOCABLY_RESOLVED state machine.
package contractcourt

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lnmobile/lncore/lnwallet"
	"github.com/lnmobile/lncore/lnwire"
)

// Witness-only weights, reusing lnwallet's per-script weight accounting.
const (
	WeightToLocalPenalty      = lnwallet.ToLocalPenaltyWitnessSize
	WeightOfferedHTLCPenalty  = lnwallet.OfferedHtlcPenaltyWitnessSize
	WeightReceivedHTLCPenalty = lnwallet.AcceptedHtlcPenaltyWitnessSize
)

// baseInputWeight is the non-witness weight contribution of a single input
// (4 * lnwallet.InputSize), added to the witness-only weights above to get
// an input's full weight.
const baseInputWeight = 4 * lnwallet.InputSize

// Input-weight counterparts of the witness-only weights above: the full
// weight of an input spending each script type, witness included.
const (
	WeightToLocalPenaltyInput      = baseInputWeight + WeightToLocalPenalty
	WeightOfferedHTLCPenaltyInput  = baseInputWeight + WeightOfferedHTLCPenalty
	WeightReceivedHTLCPenaltyInput = baseInputWeight + WeightReceivedHTLCPenalty
)

// IrrevocablyResolvedDepth is the confirmation depth at which a resolved
// output can no longer be re-contested.
const IrrevocablyResolvedDepth = 100

// PenaltySecurityDelay is the number of blocks after observing a revoked
// commitment within which a penalty transaction must be broadcast.
const PenaltySecurityDelay = 18

// TxClass is the role a confirmed transaction plays with respect to a
// channel the monitor tracks.
type TxClass uint8

const (
	ClassUnknown TxClass = iota
	ClassLocalCommitment
	ClassRemoteCommitment
	ClassCooperativeClose
	ClassHTLCTimeout
	ClassHTLCSuccess
	ClassPenalty
)

func (c TxClass) String() string {
	switch c {
	case ClassLocalCommitment:
		return "local_commitment"
	case ClassRemoteCommitment:
		return "remote_commitment"
	case ClassCooperativeClose:
		return "cooperative_close"
	case ClassHTLCTimeout:
		return "htlc_timeout"
	case ClassHTLCSuccess:
		return "htlc_success"
	case ClassPenalty:
		return "penalty"
	default:
		return "unknown"
	}
}

// ClassifyInput bundles everything Classify needs to know about a channel
// to classify one of its on-chain transactions.
type ClassifyInput struct {
	Tx *wire.MsgTx

	// FundingOutpoint is the channel's funding output; a tx spending it
	// is either a commitment broadcast or a cooperative close.
	FundingOutpoint wire.OutPoint

	// LocalCommitTxid is our own last-broadcast commitment transaction's
	// txid, used to distinguish LOCAL from REMOTE commitments.
	LocalCommitTxid chainhash.Hash

	// KnownCommitmentTxids are commitment txids (ours and the remote
	// party's) whose outputs we track for second-stage HTLC spends.
	KnownCommitmentTxids map[chainhash.Hash]bool

	// RevokedCommitmentTxids are commitment txids known to have been
	// revoked; ≥2 inputs spending a single one of these is a penalty
	// sweep.
	RevokedCommitmentTxids map[chainhash.Hash]bool
}

// isKeyHashOnly reports whether script is a plain P2WPKH output, the shape
// a cooperative close's outputs take (no HTLC or to_local delay script).
func isKeyHashOnly(script []byte) bool {
	class := txscript.GetScriptClass(script)
	return class == txscript.WitnessV0PubKeyHashTy
}

// ExtractPreimage scans tx's witnesses for a 32-byte stack element, the
// shape an HTLC-success spend's preimage takes.
func ExtractPreimage(tx *wire.MsgTx) ([32]byte, bool) {
	for _, in := range tx.TxIn {
		for _, item := range in.Witness {
			if len(item) == 32 {
				var preimage [32]byte
				copy(preimage[:], item)
				return preimage, true
			}
		}
	}
	return [32]byte{}, false
}

// Classify determines which role tx plays against a single tracked
// channel, per spec's commitment/coop-close/HTLC/penalty rules.
func Classify(in ClassifyInput) TxClass {
	tx := in.Tx

	for _, txIn := range tx.TxIn {
		if txIn.PreviousOutPoint == in.FundingOutpoint {
			if len(tx.TxOut) <= 2 && allKeyHashOnly(tx.TxOut) {
				return ClassCooperativeClose
			}
			if tx.TxHash() == in.LocalCommitTxid {
				return ClassLocalCommitment
			}
			return ClassRemoteCommitment
		}
	}

	revokedCounts := make(map[chainhash.Hash]int)
	for _, txIn := range tx.TxIn {
		h := txIn.PreviousOutPoint.Hash
		if in.RevokedCommitmentTxids[h] {
			revokedCounts[h]++
		}
	}
	for _, count := range revokedCounts {
		if count >= 2 {
			return ClassPenalty
		}
	}

	for _, txIn := range tx.TxIn {
		if !in.KnownCommitmentTxids[txIn.PreviousOutPoint.Hash] {
			continue
		}
		if tx.LockTime > 0 {
			return ClassHTLCTimeout
		}
		if _, ok := ExtractPreimage(tx); ok {
			return ClassHTLCSuccess
		}
	}

	return ClassUnknown
}

func allKeyHashOnly(outs []*wire.TxOut) bool {
	for _, out := range outs {
		if !isKeyHashOnly(out.PkScript) {
			return false
		}
	}
	return true
}

// HTLCTimedOut reports whether an HTLC with the given cltv_expiry has
// timed out at the given chain height.
func HTLCTimedOut(expiry, currentHeight uint32) bool {
	return currentHeight >= expiry
}

// OutputState is a stage in a tracked output's resolution lifecycle.
type OutputState uint8

const (
	OutputUnresolved OutputState = iota
	OutputResolved
	OutputIrrevocablyResolved
	// OutputLost marks a revoked output whose PenaltySecurityDelay
	// window expired without a penalty transaction being broadcast.
	OutputLost
)

// OutputResolution tracks one output's progress toward finality.
type OutputResolution struct {
	Outpoint wire.OutPoint
	Class    TxClass
	State    OutputState

	// Revoked marks an output belonging to a commitment we know was
	// revoked, subjecting it to the penalty security-delay window.
	Revoked      bool
	RevokedAt    uint32
	SpendHeight  uint32
}

// ObserveSpend transitions an unresolved output to RESOLVED once its spend
// is first seen, recording the height it was seen at.
func (r *OutputResolution) ObserveSpend(height uint32) {
	if r.State == OutputUnresolved {
		r.State = OutputResolved
		r.SpendHeight = height
	}
}

// UpdateDepth advances a RESOLVED output to IRREVOCABLY_RESOLVED once its
// spend reaches IrrevocablyResolvedDepth confirmations, and a still-
// UNRESOLVED revoked output to LOST once its penalty window has expired.
func (r *OutputResolution) UpdateDepth(currentHeight uint32) {
	switch r.State {
	case OutputResolved:
		depth := currentHeight - r.SpendHeight + 1
		if depth >= IrrevocablyResolvedDepth {
			r.State = OutputIrrevocablyResolved
		}
	case OutputUnresolved:
		if r.Revoked && currentHeight >= r.RevokedAt+PenaltySecurityDelay {
			r.State = OutputLost
		}
	}
}

// ChannelState is the set of outputs a ChainMonitor tracks for one channel.
type ChannelState struct {
	ChannelID       lnwire.ChannelID
	FundingOutpoint wire.OutPoint
	LocalCommitTxid chainhash.Hash

	RevokedCommitmentTxids map[chainhash.Hash]bool
	KnownCommitmentTxids   map[chainhash.Hash]bool

	Outputs map[wire.OutPoint]*OutputResolution
}

// ChainMonitor owns the per-channel on-chain state for every channel a
// node has open, classifying incoming transactions and advancing each
// tracked output's resolution state machine as new blocks confirm.
type ChainMonitor struct {
	mu sync.Mutex

	channels map[lnwire.ChannelID]*ChannelState

	pendingGauge     prometheus.Gauge
	irrevocableGauge prometheus.Gauge
}

// NewChainMonitor creates an empty monitor.
func NewChainMonitor() *ChainMonitor {
	return &ChainMonitor{
		channels: make(map[lnwire.ChannelID]*ChannelState),
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lncore_chainmonitor_pending_outputs",
			Help: "Number of tracked outputs not yet irrevocably resolved.",
		}),
		irrevocableGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lncore_chainmonitor_irrevocably_resolved_outputs",
			Help: "Number of tracked outputs that have reached finality.",
		}),
	}
}

// Collectors returns the monitor's Prometheus metrics for registration.
func (m *ChainMonitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.pendingGauge, m.irrevocableGauge}
}

// WatchChannel begins tracking a channel's funding outpoint.
func (m *ChainMonitor) WatchChannel(channelID lnwire.ChannelID, fundingOutpoint wire.OutPoint,
	localCommitTxid chainhash.Hash) *ChannelState {

	m.mu.Lock()
	defer m.mu.Unlock()

	state := &ChannelState{
		ChannelID:              channelID,
		FundingOutpoint:        fundingOutpoint,
		LocalCommitTxid:        localCommitTxid,
		RevokedCommitmentTxids: make(map[chainhash.Hash]bool),
		KnownCommitmentTxids:   map[chainhash.Hash]bool{localCommitTxid: true},
		Outputs:                make(map[wire.OutPoint]*OutputResolution),
	}
	m.channels[channelID] = state
	return state
}

// TrackRemoteCommitment records a remote commitment txid so its HTLC
// outputs are recognized by Classify.
func (m *ChainMonitor) TrackRemoteCommitment(channelID lnwire.ChannelID, txid chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.channels[channelID]; ok {
		state.KnownCommitmentTxids[txid] = true
	}
}

// RegisterRevokedCommitment marks txid as revoked as of revokedAt, arming
// the PenaltySecurityDelay window for any output later found to belong to
// it.
func (m *ChainMonitor) RegisterRevokedCommitment(channelID lnwire.ChannelID,
	txid chainhash.Hash, revokedAt uint32) {

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.channels[channelID]
	if !ok {
		return
	}
	state.RevokedCommitmentTxids[txid] = true
	for outpoint, res := range state.Outputs {
		if outpoint.Hash == txid {
			res.Revoked = true
			res.RevokedAt = revokedAt
		}
	}
}

// ProcessTransaction classifies tx against channelID's tracked state,
// records an OutputResolution for each of its own outputs, and marks
// every output it spends as observed-spent.
func (m *ChainMonitor) ProcessTransaction(channelID lnwire.ChannelID, tx *wire.MsgTx,
	height uint32) (TxClass, [32]byte, bool) {

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.channels[channelID]
	if !ok {
		return ClassUnknown, [32]byte{}, false
	}

	class := Classify(ClassifyInput{
		Tx:                     tx,
		FundingOutpoint:        state.FundingOutpoint,
		LocalCommitTxid:        state.LocalCommitTxid,
		KnownCommitmentTxids:   state.KnownCommitmentTxids,
		RevokedCommitmentTxids: state.RevokedCommitmentTxids,
	})

	txHash := tx.TxHash()
	for i := range tx.TxOut {
		op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
		if _, exists := state.Outputs[op]; !exists {
			state.Outputs[op] = &OutputResolution{Outpoint: op, Class: class}
		}
	}

	for _, txIn := range tx.TxIn {
		if res, tracked := state.Outputs[txIn.PreviousOutPoint]; tracked {
			res.ObserveSpend(height)
		}
	}

	var preimage [32]byte
	var hasPreimage bool
	if class == ClassHTLCSuccess {
		preimage, hasPreimage = ExtractPreimage(tx)
	}

	return class, preimage, hasPreimage
}

// UpdateDepths advances every tracked output's resolution state against
// the current chain height, and refreshes the pending/irrevocable gauges.
func (m *ChainMonitor) UpdateDepths(currentHeight uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending, irrevocable float64
	for _, state := range m.channels {
		for _, res := range state.Outputs {
			res.UpdateDepth(currentHeight)
			if res.State == OutputIrrevocablyResolved {
				irrevocable++
			} else {
				pending++
			}
		}
	}

	m.pendingGauge.Set(pending)
	m.irrevocableGauge.Set(irrevocable)
}

// Output returns a channel's tracked resolution for outpoint, if any.
func (m *ChainMonitor) Output(channelID lnwire.ChannelID, outpoint wire.OutPoint) (*OutputResolution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.channels[channelID]
	if !ok {
		return nil, false
	}
	res, ok := state.Outputs[outpoint]
	return res, ok
}
