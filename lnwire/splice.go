package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// SpliceInit begins a splice negotiation. RelativeSatoshis is the signed
// change in channel capacity the initiator proposes: positive to splice in
// funds, negative to splice out.
type SpliceInit struct {
	ChannelID        ChannelID
	RelativeSatoshis int64
	Feerate          uint32
	Locktime         uint32
	FundingPubkey    *btcec.PublicKey
}

var _ Message = (*SpliceInit)(nil)

func (m *SpliceInit) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.RelativeSatoshis, &m.Feerate,
		&m.Locktime, &m.FundingPubkey)
}

func (m *SpliceInit) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.RelativeSatoshis, m.Feerate,
		m.Locktime, m.FundingPubkey)
}

func (m *SpliceInit) MsgType() MessageType { return MsgSpliceInit }

func (m *SpliceInit) MaxPayloadLength(uint32) uint32 { return 85 }

// SpliceAck accepts a splice_init, contributing the acceptor's own relative
// capacity change and new funding key.
type SpliceAck struct {
	ChannelID        ChannelID
	RelativeSatoshis int64
	FundingPubkey    *btcec.PublicKey
}

var _ Message = (*SpliceAck)(nil)

func (m *SpliceAck) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.RelativeSatoshis,
		&m.FundingPubkey)
}

func (m *SpliceAck) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.RelativeSatoshis,
		m.FundingPubkey)
}

func (m *SpliceAck) MsgType() MessageType { return MsgSpliceAck }

func (m *SpliceAck) MaxPayloadLength(uint32) uint32 { return 73 }

// SpliceLocked confirms that the sender has observed the splice transaction
// reach the required confirmation depth, and carries the next per-commitment
// point for the post-splice commitment chain.
type SpliceLocked struct {
	ChannelID               ChannelID
	NextPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*SpliceLocked)(nil)

func (m *SpliceLocked) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &m.ChannelID, &m.NextPerCommitmentPoint)
}

func (m *SpliceLocked) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.ChannelID, m.NextPerCommitmentPoint)
}

func (m *SpliceLocked) MsgType() MessageType { return MsgSpliceLocked }

func (m *SpliceLocked) MaxPayloadLength(uint32) uint32 { return 65 }
