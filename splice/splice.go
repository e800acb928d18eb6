// Package splice implements the splice_init/splice_ack/splice_locked
// handshake that wraps an interactivetx negotiation to resize a channel's
// on-chain capacity without closing it.
package splice

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/interactivetx"
	"github.com/lnmobile/lncore/lnwire"
)

// Type classifies the direction of capacity change a splice negotiates.
type Type uint8

const (
	// TypeAdd increases capacity: both parties' relative_sats are >= 0.
	TypeAdd Type = iota
	// TypeRemove decreases capacity: both parties' relative_sats are <= 0.
	TypeRemove
	// TypeCombined mixes an increase from one side with a decrease from
	// the other.
	TypeCombined
)

// State is a stage of the splice negotiation.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingAck
	StateNegotiatingTx
	StateAwaitingConfirmation
	StateAwaitingLocked
	StateCompleted
	StateFailed
)

// MinConfirmations is the number of confirmations the splice transaction
// must reach before either side may send splice_locked.
const MinConfirmations = 3

// DustLimit is the minimum post-splice capacity accepted, expressed in
// millisatoshi.
const DustLimit = 354_000

// MaxCapacityMsat is the largest channel capacity the protocol allows,
// expressed in millisatoshi (16,777,215,000 msat, i.e. 2^24-1 sat).
const MaxCapacityMsat = 16_777_215_000

// ChainSource is the confirmation-tracking collaborator a Negotiation
// waits on before considering the splice transaction locked in. It is
// modelled on chainntfs.ChainNotifier's RegisterConfirmationsNtfn but is a
// separate, smaller interface from the one contractcourt's resolvers use.
type ChainSource interface {
	RegisterConfirmationsNtfn(txid *wire.OutPoint, numConfs uint32) (<-chan uint32, error)
}

// Config parameterizes a Negotiation.
type Config struct {
	ChannelID      lnwire.ChannelID
	Initiator      bool
	Clock          clock.Clock
	ChainSource    ChainSource
	CurrentCapacity int64 // current channel capacity, in satoshi
}

// Negotiation drives one splice from splice_init through splice_locked.
type Negotiation struct {
	cfg Config

	state State
	typ   Type

	ourRelativeSats   int64
	peerRelativeSats  int64
	ourFundingPubkey  *btcec.PublicKey
	peerFundingPubkey *btcec.PublicKey

	tx      *interactivetx.Session
	spliceTx *wire.MsgTx

	ourLocked, peerLocked bool
}

// NewNegotiation constructs an idle splice negotiation.
func NewNegotiation(cfg Config) *Negotiation {
	return &Negotiation{cfg: cfg, state: StateIdle}
}

// State returns the negotiation's current stage.
func (n *Negotiation) State() State { return n.state }

// Type returns the splice's direction classification. Only meaningful once
// both sides' relative_sats are known (after splice_ack).
func (n *Negotiation) Type() Type { return n.typ }

// Init starts a splice as the initiator, validating the resulting capacity
// before emitting splice_init.
func (n *Negotiation) Init(relativeSats int64, feerate, locktime uint32,
	fundingPubkey *btcec.PublicKey) (*lnwire.SpliceInit, error) {

	if !n.cfg.Initiator {
		return nil, fmt.Errorf("splice: Init called on non-initiator negotiation")
	}
	if n.state != StateIdle {
		return nil, fmt.Errorf("splice: Init called in state %v", n.state)
	}

	n.ourRelativeSats = relativeSats
	n.ourFundingPubkey = fundingPubkey

	if err := n.validateCapacity(); err != nil {
		n.state = StateFailed
		return nil, err
	}

	n.state = StateAwaitingAck

	return &lnwire.SpliceInit{
		ChannelID:        n.cfg.ChannelID,
		RelativeSatoshis: relativeSats,
		Feerate:          feerate,
		Locktime:         locktime,
		FundingPubkey:    fundingPubkey,
	}, nil
}

// HandleSpliceInit processes an incoming splice_init as the non-initiator,
// returning the splice_ack to send back.
func (n *Negotiation) HandleSpliceInit(msg *lnwire.SpliceInit, ourRelativeSats int64,
	ourFundingPubkey *btcec.PublicKey) (*lnwire.SpliceAck, error) {

	if n.cfg.Initiator {
		return nil, fmt.Errorf("splice: HandleSpliceInit called on initiator negotiation")
	}
	if n.state != StateIdle {
		return nil, fmt.Errorf("splice: HandleSpliceInit called in state %v", n.state)
	}

	n.peerRelativeSats = msg.RelativeSatoshis
	n.peerFundingPubkey = msg.FundingPubkey
	n.ourRelativeSats = ourRelativeSats
	n.ourFundingPubkey = ourFundingPubkey

	if err := n.validateCapacity(); err != nil {
		n.state = StateFailed
		return nil, err
	}

	n.classify()
	n.state = StateNegotiatingTx

	return &lnwire.SpliceAck{
		ChannelID:        n.cfg.ChannelID,
		RelativeSatoshis: ourRelativeSats,
		FundingPubkey:    ourFundingPubkey,
	}, nil
}

// HandleSpliceAck processes the peer's splice_ack as the initiator.
func (n *Negotiation) HandleSpliceAck(msg *lnwire.SpliceAck) error {
	if n.state != StateAwaitingAck {
		return fmt.Errorf("splice: HandleSpliceAck called in state %v", n.state)
	}

	n.peerRelativeSats = msg.RelativeSatoshis
	n.peerFundingPubkey = msg.FundingPubkey

	if err := n.validateCapacity(); err != nil {
		n.state = StateFailed
		return err
	}

	n.classify()
	n.state = StateNegotiatingTx

	return nil
}

func (n *Negotiation) classify() {
	switch {
	case n.ourRelativeSats >= 0 && n.peerRelativeSats >= 0:
		n.typ = TypeAdd
	case n.ourRelativeSats <= 0 && n.peerRelativeSats <= 0:
		n.typ = TypeRemove
	default:
		n.typ = TypeCombined
	}
}

func (n *Negotiation) newCapacitySat() int64 {
	return n.cfg.CurrentCapacity + n.ourRelativeSats + n.peerRelativeSats
}

func (n *Negotiation) validateCapacity() error {
	newCap := n.newCapacitySat()
	if newCap <= 0 {
		return fmt.Errorf("splice: resulting capacity %d is non-positive", newCap)
	}

	newCapMsat := newCap * 1000
	if newCapMsat < DustLimit {
		return fmt.Errorf("splice: resulting capacity %d msat is below dust limit", newCapMsat)
	}
	if newCapMsat > MaxCapacityMsat {
		return fmt.Errorf("splice: resulting capacity %d msat exceeds the protocol maximum", newCapMsat)
	}

	return nil
}

// StartInteractiveTx begins the interactivetx negotiation for the splice
// transaction once both sides have validated the new capacity.
func (n *Negotiation) StartInteractiveTx() *interactivetx.Session {
	n.tx = interactivetx.NewSession(interactivetx.Config{
		ChannelID:      n.cfg.ChannelID,
		Initiator:      n.cfg.Initiator,
		Clock:          n.cfg.Clock,
		FundingAmt:     n.ourRelativeSats,
		PeerFundingAmt: n.peerRelativeSats,
	})
	return n.tx
}

// OnTxConstructed records the finalized splice transaction and begins
// waiting for it to reach MinConfirmations.
func (n *Negotiation) OnTxConstructed(tx *wire.MsgTx) error {
	n.spliceTx = tx
	n.state = StateAwaitingConfirmation
	log.Infof("splice: splice tx constructed txid=%v, awaiting %d confirmations",
		tx.TxHash(), MinConfirmations)

	outpoint := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
	confChan, err := n.cfg.ChainSource.RegisterConfirmationsNtfn(&outpoint, MinConfirmations)
	if err != nil {
		return err
	}

	go n.waitForConfirmation(confChan)
	return nil
}

func (n *Negotiation) waitForConfirmation(confChan <-chan uint32) {
	if _, ok := <-confChan; ok {
		n.state = StateAwaitingLocked
		log.Infof("splice: splice tx confirmed, awaiting splice_locked")
	}
}

// SpliceTx returns the finalized splice transaction, or nil before
// negotiation completes.
func (n *Negotiation) SpliceTx() *wire.MsgTx { return n.spliceTx }

// ReadyForLocked reports whether the splice transaction has reached
// MinConfirmations and splice_locked may be sent.
func (n *Negotiation) ReadyForLocked() bool {
	return n.state == StateAwaitingLocked || n.state == StateCompleted
}

// SendSpliceLocked marks our side locked and returns the message to send.
func (n *Negotiation) SendSpliceLocked(nextPerCommitmentPoint *btcec.PublicKey) (*lnwire.SpliceLocked, error) {
	if !n.ReadyForLocked() {
		return nil, fmt.Errorf("splice: SendSpliceLocked called before %d confirmations", MinConfirmations)
	}

	n.ourLocked = true
	n.maybeComplete()

	return &lnwire.SpliceLocked{
		ChannelID:               n.cfg.ChannelID,
		NextPerCommitmentPoint:  nextPerCommitmentPoint,
	}, nil
}

// HandleSpliceLocked processes the peer's splice_locked.
func (n *Negotiation) HandleSpliceLocked(msg *lnwire.SpliceLocked) error {
	if !n.ReadyForLocked() {
		return fmt.Errorf("splice: HandleSpliceLocked received before %d confirmations", MinConfirmations)
	}

	n.peerLocked = true
	n.maybeComplete()
	return nil
}

func (n *Negotiation) maybeComplete() {
	if n.ourLocked && n.peerLocked {
		n.state = StateCompleted
	}
}
