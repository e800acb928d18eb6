package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxAddInput is sent during interactive transaction construction (BOLT #2
// dual funding / splicing) to contribute one input to the transaction under
// negotiation.
type TxAddInput struct {
	ChannelID ChannelID

	// SerialID must be even if sent by the channel initiator, odd
	// otherwise, and must be unique within the negotiation.
	SerialID uint64

	// PrevTx is the full serialized previous transaction the input
	// spends from, letting the peer verify the input's value without a
	// separate chain lookup.
	PrevTx WireBytes

	PrevTxVout uint32
	Sequence   uint32
}

var _ Message = (*TxAddInput)(nil)

func (m *TxAddInput) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.SerialID, &m.PrevTx,
		&m.PrevTxVout, &m.Sequence)
}

func (m *TxAddInput) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.SerialID, m.PrevTx,
		m.PrevTxVout, m.Sequence)
}

func (m *TxAddInput) MsgType() MessageType { return MsgTxAddInput }

func (m *TxAddInput) MaxPayloadLength(uint32) uint32 { return 65535 }

// TxAddOutput contributes one output to the transaction under negotiation.
type TxAddOutput struct {
	ChannelID ChannelID
	SerialID  uint64
	Amount    uint64
	Script    WireBytes
}

var _ Message = (*TxAddOutput)(nil)

func (m *TxAddOutput) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.SerialID, &m.Amount, &m.Script)
}

func (m *TxAddOutput) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.SerialID, m.Amount, m.Script)
}

func (m *TxAddOutput) MsgType() MessageType { return MsgTxAddOutput }

func (m *TxAddOutput) MaxPayloadLength(uint32) uint32 { return 65535 }

// TxRemoveInput withdraws a previously-added input by serial ID.
type TxRemoveInput struct {
	ChannelID ChannelID
	SerialID  uint64
}

var _ Message = (*TxRemoveInput)(nil)

func (m *TxRemoveInput) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.SerialID)
}

func (m *TxRemoveInput) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.SerialID)
}

func (m *TxRemoveInput) MsgType() MessageType { return MsgTxRemoveInput }

func (m *TxRemoveInput) MaxPayloadLength(uint32) uint32 { return 40 }

// TxRemoveOutput withdraws a previously-added output by serial ID.
type TxRemoveOutput struct {
	ChannelID ChannelID
	SerialID  uint64
}

var _ Message = (*TxRemoveOutput)(nil)

func (m *TxRemoveOutput) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.SerialID)
}

func (m *TxRemoveOutput) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.SerialID)
}

func (m *TxRemoveOutput) MsgType() MessageType { return MsgTxRemoveOutput }

func (m *TxRemoveOutput) MaxPayloadLength(uint32) uint32 { return 40 }

// TxComplete signals that the sender has no more inputs or outputs to add.
// Any subsequent change from either side resets the peer's complete flag.
type TxComplete struct {
	ChannelID ChannelID
}

var _ Message = (*TxComplete)(nil)

func (m *TxComplete) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID)
}

func (m *TxComplete) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID)
}

func (m *TxComplete) MsgType() MessageType { return MsgTxComplete }

func (m *TxComplete) MaxPayloadLength(uint32) uint32 { return 32 }

// TxSignatures carries the witness stack for every input the sender
// contributed, plus the finalized transaction's txid as a cross-check.
type TxSignatures struct {
	ChannelID ChannelID
	TxID      chainhash.Hash
	Witnesses []WireBytes
}

var _ Message = (*TxSignatures)(nil)

func (m *TxSignatures) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.TxID, &m.Witnesses)
}

func (m *TxSignatures) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.TxID, m.Witnesses)
}

func (m *TxSignatures) MsgType() MessageType { return MsgTxSignatures }

func (m *TxSignatures) MaxPayloadLength(uint32) uint32 { return 65535 }

// TxInitRbf requests a fee bump / replacement of a prior interactive-tx
// negotiation, restarting it from IDLE at a new feerate and locktime.
type TxInitRbf struct {
	ChannelID           ChannelID
	Locktime            uint32
	Feerate             uint32
	FundingContribution int64
}

var _ Message = (*TxInitRbf)(nil)

func (m *TxInitRbf) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.Locktime, &m.Feerate,
		&m.FundingContribution)
}

func (m *TxInitRbf) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.Locktime, m.Feerate,
		m.FundingContribution)
}

func (m *TxInitRbf) MsgType() MessageType { return MsgTxInitRbf }

func (m *TxInitRbf) MaxPayloadLength(uint32) uint32 { return 48 }

// TxAckRbf accepts a tx_init_rbf proposal and re-enters negotiation.
type TxAckRbf struct {
	ChannelID           ChannelID
	FundingContribution int64
}

var _ Message = (*TxAckRbf)(nil)

func (m *TxAckRbf) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.FundingContribution)
}

func (m *TxAckRbf) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.FundingContribution)
}

func (m *TxAckRbf) MsgType() MessageType { return MsgTxAckRbf }

func (m *TxAckRbf) MaxPayloadLength(uint32) uint32 { return 40 }

// TxAbort cooperatively terminates an interactive-tx negotiation, carrying
// a human-readable reason.
type TxAbort struct {
	ChannelID ChannelID
	Reason    WireBytes
}

var _ Message = (*TxAbort)(nil)

func (m *TxAbort) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.Reason)
}

func (m *TxAbort) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.Reason)
}

func (m *TxAbort) MsgType() MessageType { return MsgTxAbort }

func (m *TxAbort) MaxPayloadLength(uint32) uint32 { return 65535 }
