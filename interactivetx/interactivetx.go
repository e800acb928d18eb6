// Package interactivetx implements the interactive transaction construction
// protocol used by dual funding and splicing: two peers alternate turns
// contributing inputs and outputs to a shared transaction until both signal
// completion, then exchange signatures for the finalized, canonically
// serialized transaction.
package interactivetx

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/lnwire"
)

// State is a stage of the interactive-tx negotiation state machine.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingOurTurn
	StateAwaitingPeerTurn
	StateTxComplete
	StateAwaitingSignatures
	StateSuccess
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingOurTurn:
		return "awaiting_our_turn"
	case StateAwaitingPeerTurn:
		return "awaiting_peer_turn"
	case StateTxComplete:
		return "tx_complete"
	case StateAwaitingSignatures:
		return "awaiting_signatures"
	case StateSuccess:
		return "success"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Limits the protocol enforces regardless of Config.
const (
	MaxInputsOutputs = 252
	MaxRounds        = 100
	SessionTimeout    = 60 * time.Second
)

// Config starts a new negotiation. Initiator sessions emit the opening
// message traffic; responder sessions only react to incoming messages.
type Config struct {
	ChannelID   lnwire.ChannelID
	Initiator   bool
	Clock       clock.Clock
	FundingAmt  int64 // our contribution to the shared funding output
	PeerFundingAmt int64
}

// addedInput is a tx_add_input the negotiation has accepted.
type addedInput struct {
	serialID uint64
	local    bool
	input    *wire.TxIn
	prevTx   *wire.MsgTx
}

// addedOutput is a tx_add_output the negotiation has accepted.
type addedOutput struct {
	serialID uint64
	local    bool
	output   *wire.TxOut
}

// Result reports the outcome of processing one state-machine event.
type Result struct {
	State          State
	MessagesToSend []lnwire.Message
	Error          error
	ConstructedTx  *wire.MsgTx
}

// Session runs one interactive-tx negotiation for a single channel/splice.
type Session struct {
	cfg Config

	state State

	inputs  map[uint64]*addedInput
	outputs map[uint64]*addedOutput

	nextSerialID uint64 // next serial_id this side will use
	roundCount   int
	startedAt    time.Time

	weSentComplete   bool
	peerSentComplete bool

	constructedTx *wire.MsgTx
}

// NewSession constructs an idle negotiation session.
func NewSession(cfg Config) *Session {
	next := uint64(1)
	if cfg.Initiator {
		next = 0
	}
	return &Session{
		cfg:          cfg,
		state:        StateIdle,
		inputs:       make(map[uint64]*addedInput),
		outputs:      make(map[uint64]*addedOutput),
		nextSerialID: next,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Start transitions an initiator session out of IDLE. Only valid for
// sessions configured as the initiator; the responder waits for the first
// incoming message instead.
func (s *Session) Start() (*Result, error) {
	if !s.cfg.Initiator {
		return nil, fmt.Errorf("interactivetx: Start called on responder session")
	}
	if s.state != StateIdle {
		return nil, fmt.Errorf("interactivetx: Start called in state %s", s.state)
	}

	s.startedAt = s.cfg.Clock.Now()
	s.state = StateAwaitingPeerTurn

	return &Result{State: s.state}, nil
}

// negotiating reports whether the session is in a state that may still
// send tx_add_input/tx_add_output/tx_complete.
func (s *Session) negotiating() bool {
	switch s.state {
	case StateIdle, StateAwaitingOurTurn, StateAwaitingPeerTurn:
		return true
	default:
		return false
	}
}

func (s *Session) nextLocalSerialID() uint64 {
	id := s.nextSerialID
	s.nextSerialID += 2
	return id
}

func (s *Session) expired() bool {
	if s.startedAt.IsZero() {
		return false
	}
	return s.cfg.Clock.Now().Sub(s.startedAt) > SessionTimeout
}

// serialIDBelongsToPeer reports whether serialID's parity matches the
// remote peer's role (even if they're the initiator, odd otherwise).
func (s *Session) serialIDBelongsToPeer(serialID uint64) bool {
	peerIsInitiator := !s.cfg.Initiator
	even := serialID%2 == 0
	return even == peerIsInitiator
}

func (s *Session) abort(reason string) *Result {
	log.Warnf("interactivetx: aborting channel=%v: %s", s.cfg.ChannelID, reason)
	s.state = StateAborted
	return &Result{
		State: s.state,
		MessagesToSend: []lnwire.Message{&lnwire.TxAbort{
			ChannelID: s.cfg.ChannelID,
			Reason:    lnwire.WireBytes(reason),
		}},
		Error: fmt.Errorf("interactivetx: %s", reason),
	}
}

func (s *Session) fail(err error) *Result {
	s.state = StateFailed
	return &Result{State: s.state, Error: err}
}

// checkDeadline aborts the session if the wall-clock or round budget has
// been exhausted, and should be called at the top of every HandleMessage.
func (s *Session) checkDeadline() *Result {
	if s.expired() {
		return s.abort("negotiation exceeded 60s timeout")
	}
	if s.roundCount > MaxRounds {
		return s.abort("negotiation exceeded 100 rounds")
	}
	return nil
}

// HandleMessage processes one incoming protocol message and returns the
// messages (if any) we should send in response.
func (s *Session) HandleMessage(msg lnwire.Message) (*Result, error) {
	if s.state == StateIdle && !s.cfg.Initiator {
		s.startedAt = s.cfg.Clock.Now()
		s.state = StateAwaitingOurTurn
	}

	switch s.state {
	case StateAwaitingOurTurn, StateAwaitingPeerTurn:
	default:
		return nil, fmt.Errorf("interactivetx: HandleMessage called in terminal or unready state %s", s.state)
	}

	s.roundCount++
	if r := s.checkDeadline(); r != nil {
		return r, nil
	}

	switch m := msg.(type) {
	case *lnwire.TxAddInput:
		return s.handleAddInput(m), nil
	case *lnwire.TxAddOutput:
		return s.handleAddOutput(m), nil
	case *lnwire.TxRemoveInput:
		return s.handleRemoveInput(m), nil
	case *lnwire.TxRemoveOutput:
		return s.handleRemoveOutput(m), nil
	case *lnwire.TxComplete:
		return s.handleTxComplete(), nil
	case *lnwire.TxAbort:
		s.state = StateAborted
		return &Result{State: s.state, Error: fmt.Errorf("interactivetx: peer aborted: %s", string(m.Reason))}, nil
	default:
		return s.abort(fmt.Sprintf("unexpected message type %T", msg)), nil
	}
}

func (s *Session) totalInputOutputCount() int {
	return len(s.inputs) + len(s.outputs)
}

func (s *Session) handleAddInput(m *lnwire.TxAddInput) *Result {
	if !s.serialIDBelongsToPeer(m.SerialID) {
		return s.abort("tx_add_input serial_id parity does not match sender")
	}
	if _, exists := s.inputs[m.SerialID]; exists {
		return s.abort("tx_add_input duplicate serial_id")
	}
	if s.totalInputOutputCount()+1 > MaxInputsOutputs {
		return s.abort("too many inputs/outputs")
	}

	var prevTx wire.MsgTx
	if err := prevTx.Deserialize(bytes.NewReader(m.PrevTx)); err != nil {
		return s.abort("tx_add_input carries an unparseable prev tx")
	}

	s.inputs[m.SerialID] = &addedInput{
		serialID: m.SerialID,
		local:    false,
		input: &wire.TxIn{
			PreviousOutPoint: wire.OutPoint{
				Hash:  prevTx.TxHash(),
				Index: m.PrevTxVout,
			},
			Sequence: m.Sequence,
		},
		prevTx: &prevTx,
	}
	s.peerSentComplete = false

	return &Result{State: s.state}
}

func (s *Session) handleAddOutput(m *lnwire.TxAddOutput) *Result {
	if !s.serialIDBelongsToPeer(m.SerialID) {
		return s.abort("tx_add_output serial_id parity does not match sender")
	}
	if _, exists := s.outputs[m.SerialID]; exists {
		return s.abort("tx_add_output duplicate serial_id")
	}
	if s.totalInputOutputCount()+1 > MaxInputsOutputs {
		return s.abort("too many inputs/outputs")
	}

	s.outputs[m.SerialID] = &addedOutput{
		serialID: m.SerialID,
		local:    false,
		output: &wire.TxOut{
			Value:    int64(m.Amount),
			PkScript: m.Script,
		},
	}
	s.peerSentComplete = false

	return &Result{State: s.state}
}

func (s *Session) handleRemoveInput(m *lnwire.TxRemoveInput) *Result {
	in, ok := s.inputs[m.SerialID]
	if !ok || in.local {
		return s.abort("tx_remove_input refers to an unknown or non-peer input")
	}
	delete(s.inputs, m.SerialID)
	s.peerSentComplete = false
	return &Result{State: s.state}
}

func (s *Session) handleRemoveOutput(m *lnwire.TxRemoveOutput) *Result {
	out, ok := s.outputs[m.SerialID]
	if !ok || out.local {
		return s.abort("tx_remove_output refers to an unknown or non-peer output")
	}
	delete(s.outputs, m.SerialID)
	s.peerSentComplete = false
	return &Result{State: s.state}
}

func (s *Session) handleTxComplete() *Result {
	s.peerSentComplete = true
	if s.weSentComplete && s.peerSentComplete {
		return s.finalize()
	}
	return &Result{State: s.state}
}

// AddInput contributes a local input, returning the message to send.
func (s *Session) AddInput(prevTx *wire.MsgTx, vout uint32, sequence uint32) (*lnwire.TxAddInput, error) {
	if !s.negotiating() {
		return nil, fmt.Errorf("interactivetx: AddInput called in state %s", s.state)
	}
	if s.totalInputOutputCount()+1 > MaxInputsOutputs {
		return nil, fmt.Errorf("interactivetx: input/output cap reached")
	}

	var buf bytes.Buffer
	if err := prevTx.Serialize(&buf); err != nil {
		return nil, err
	}

	serialID := s.nextLocalSerialID()
	s.inputs[serialID] = &addedInput{
		serialID: serialID,
		local:    true,
		input: &wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: prevTx.TxHash(), Index: vout},
			Sequence:         sequence,
		},
		prevTx: prevTx,
	}
	s.weSentComplete = false

	return &lnwire.TxAddInput{
		ChannelID:  s.cfg.ChannelID,
		SerialID:   serialID,
		PrevTx:     lnwire.WireBytes(buf.Bytes()),
		PrevTxVout: vout,
		Sequence:   sequence,
	}, nil
}

// AddOutput contributes a local output, returning the message to send.
func (s *Session) AddOutput(amount int64, script []byte) (*lnwire.TxAddOutput, error) {
	if !s.negotiating() {
		return nil, fmt.Errorf("interactivetx: AddOutput called in state %s", s.state)
	}
	if s.totalInputOutputCount()+1 > MaxInputsOutputs {
		return nil, fmt.Errorf("interactivetx: input/output cap reached")
	}

	serialID := s.nextLocalSerialID()
	s.outputs[serialID] = &addedOutput{
		serialID: serialID,
		local:    true,
		output:   &wire.TxOut{Value: amount, PkScript: script},
	}
	s.weSentComplete = false

	return &lnwire.TxAddOutput{
		ChannelID: s.cfg.ChannelID,
		SerialID:  serialID,
		Amount:    uint64(amount),
		Script:    lnwire.WireBytes(script),
	}, nil
}

// SendTxComplete signals we have no more inputs/outputs to add.
func (s *Session) SendTxComplete() (*Result, error) {
	s.weSentComplete = true
	if s.weSentComplete && s.peerSentComplete {
		return s.finalize(), nil
	}
	return &Result{State: s.state}, nil
}

// finalize sorts the accepted inputs/outputs by ascending serial_id, builds
// the canonical transaction, validates it, and computes its txid.
func (s *Session) finalize() *Result {
	if len(s.inputs) == 0 {
		return s.abort("no inputs contributed")
	}
	if len(s.outputs) == 0 {
		return s.abort("no outputs contributed")
	}

	inputIDs := make([]uint64, 0, len(s.inputs))
	for id := range s.inputs {
		inputIDs = append(inputIDs, id)
	}
	sort.Slice(inputIDs, func(i, j int) bool { return inputIDs[i] < inputIDs[j] })

	outputIDs := make([]uint64, 0, len(s.outputs))
	for id := range s.outputs {
		outputIDs = append(outputIDs, id)
	}
	sort.Slice(outputIDs, func(i, j int) bool { return outputIDs[i] < outputIDs[j] })

	tx := wire.NewMsgTx(2)
	var totalIn int64
	allInputsKnown := true
	for _, id := range inputIDs {
		in := s.inputs[id]
		tx.AddTxIn(in.input)
		if in.prevTx == nil {
			allInputsKnown = false
			continue
		}
		if int(in.input.PreviousOutPoint.Index) >= len(in.prevTx.TxOut) {
			return s.abort("input references an out-of-range previous output")
		}
		totalIn += in.prevTx.TxOut[in.input.PreviousOutPoint.Index].Value
	}

	var totalOut int64
	for _, id := range outputIDs {
		out := s.outputs[id]
		tx.AddTxOut(out.output)
		totalOut += out.output.Value
	}

	if allInputsKnown && totalIn < totalOut {
		return s.abort("total input value is less than total output value")
	}

	fundingTotal := s.cfg.FundingAmt + s.cfg.PeerFundingAmt
	fundingFound := false
	for _, out := range tx.TxOut {
		if out.Value == fundingTotal {
			fundingFound = true
			break
		}
	}
	if !fundingFound {
		return s.abort("no output matches the expected funding amount")
	}

	s.constructedTx = tx
	s.state = StateSuccess
	log.Infof("interactivetx: finalized channel=%v txid=%v inputs=%d outputs=%d",
		s.cfg.ChannelID, tx.TxHash(), len(tx.TxIn), len(tx.TxOut))

	return &Result{
		State:         s.state,
		ConstructedTx: tx,
	}
}

// TxID returns the canonical, display-order (little-endian reversed)
// double-SHA-256 transaction id of the finalized transaction.
func TxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}

// ExportPSBT packages the finalized, unsigned transaction as a BIP-174
// PSBT, attaching each input's previous transaction where we have it, so
// an external signer (hardware wallet, air-gapped co-signer) can produce
// our or the peer's witnesses out of band.
func (s *Session) ExportPSBT() (*psbt.Packet, error) {
	if s.constructedTx == nil {
		return nil, fmt.Errorf("interactivetx: no constructed transaction to export")
	}

	packet, err := psbt.NewFromUnsignedTx(s.constructedTx)
	if err != nil {
		return nil, fmt.Errorf("interactivetx: building PSBT: %w", err)
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, fmt.Errorf("interactivetx: building PSBT updater: %w", err)
	}

	for i, txIn := range s.constructedTx.TxIn {
		prevTx := s.prevTxForOutpoint(txIn.PreviousOutPoint)
		if prevTx == nil {
			continue
		}
		if _, err := updater.AddInNonWitnessUtxo(prevTx, i); err != nil {
			return nil, fmt.Errorf("interactivetx: attaching prevout for input %d: %w", i, err)
		}
	}

	return packet, nil
}

// prevTxForOutpoint returns the previous transaction funding outpoint, if
// either side supplied it during negotiation.
func (s *Session) prevTxForOutpoint(outpoint wire.OutPoint) *wire.MsgTx {
	for _, in := range s.inputs {
		if in.input.PreviousOutPoint == outpoint {
			return in.prevTx
		}
	}
	return nil
}

// ProcessSignatures records the peer's tx_signatures and, once both sides
// have supplied witnesses, assembles and returns the fully-signed
// transaction.
func (s *Session) ProcessSignatures(peerSigs *lnwire.TxSignatures, ourWitnesses map[uint32][][]byte) (*Result, error) {
	if s.state != StateSuccess && s.state != StateAwaitingSignatures {
		return nil, fmt.Errorf("interactivetx: ProcessSignatures called before negotiation finalized")
	}
	if s.constructedTx == nil {
		return nil, fmt.Errorf("interactivetx: no constructed transaction to sign")
	}

	if peerSigs.TxID != s.constructedTx.TxHash() {
		return s.abort("tx_signatures txid mismatch"), nil
	}

	peerWitnessIdx := 0
	for i, in := range s.constructedTx.TxIn {
		_ = in
		if w, ok := ourWitnesses[uint32(i)]; ok {
			s.constructedTx.TxIn[i].Witness = w
			continue
		}
		if peerWitnessIdx >= len(peerSigs.Witnesses) {
			return s.abort("tx_signatures supplied fewer witnesses than required"), nil
		}
		witness, err := decodeWitnessStack([]byte(peerSigs.Witnesses[peerWitnessIdx]))
		if err != nil {
			return s.abort("tx_signatures carries an unparseable witness stack"), nil
		}
		s.constructedTx.TxIn[i].Witness = witness
		peerWitnessIdx++
	}

	s.state = StateSuccess
	return &Result{State: s.state, ConstructedTx: s.constructedTx}, nil
}

// CreateSignatures builds our tx_signatures message for the finalized
// transaction given our witness stacks, keyed by input index.
func (s *Session) CreateSignatures(ourWitnesses map[uint32]wire.TxWitness) (*lnwire.TxSignatures, error) {
	if s.constructedTx == nil {
		return nil, fmt.Errorf("interactivetx: no constructed transaction to sign")
	}

	witnesses := make([]lnwire.WireBytes, 0, len(ourWitnesses))
	for i := 0; i < len(s.constructedTx.TxIn); i++ {
		w, ok := ourWitnesses[uint32(i)]
		if !ok {
			continue
		}
		var buf bytes.Buffer
		if err := wire.WriteVarInt(&buf, 0, uint64(len(w))); err != nil {
			return nil, err
		}
		for _, item := range w {
			if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
				return nil, err
			}
		}
		witnesses = append(witnesses, lnwire.WireBytes(buf.Bytes()))
	}

	return &lnwire.TxSignatures{
		ChannelID: s.cfg.ChannelID,
		TxID:      s.constructedTx.TxHash(),
		Witnesses: witnesses,
	}, nil
}

// decodeWitnessStack parses one input's witness stack as encoded by
// CreateSignatures: a var-int item count followed by each item as
// var-bytes.
func decodeWitnessStack(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	stack := make(wire.TxWitness, 0, count)
	for i := uint64(0); i < count; i++ {
		item, err := wire.ReadVarBytes(r, 0, wire.MaxMessagePayload, "witness item")
		if err != nil {
			return nil, err
		}
		stack = append(stack, item)
	}
	return stack, nil
}
