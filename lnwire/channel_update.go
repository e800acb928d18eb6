package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChanUpdateFlag is a bitfield that describes various options for the
// announcement. Currently, the least-significant bit must be set by the
// node that isn't the owner of the "direction" the update is describing,
// i.e. it's the side that would forward a payment in that direction.
type ChanUpdateFlag uint16

const (
	// ChanUpdateDirection indicates the direction of a channel update:
	// 0 if the announcement originates from the first node, 1 otherwise.
	ChanUpdateDirection ChanUpdateFlag = 1
)

// ChannelUpdate is used after a channel has been initially announced.
// Each side independently announces the fees and minimum expiry it
// requires to forward HTLCs through its side of the channel, as well as
// the precise ShortChannelID that refers to the channel it's updating on
// behalf of.
type ChannelUpdate struct {
	// Signature authenticates the remaining fields, under the node
	// identity key of the node sending the update.
	Signature *ecdsa.Signature

	// ChainHash denotes the target chain this channel was opened within.
	ChainHash chainhash.Hash

	// ShortChannelID is the unique description of the funding
	// transaction.
	ShortChannelID ShortChannelID

	// Timestamp allows ordering in the case of multiple announcements.
	// Newer updates are considered the authoritative state, and stale
	// updates (outside the pruning horizon) are discarded by the
	// routing graph.
	Timestamp uint32

	// ChannelFlags holds the ChanUpdateDirection bit and is also used to
	// signal that this update disables the channel when
	// ChanUpdateDisabled is set.
	ChannelFlags ChanUpdateFlag

	// TimeLockDelta is the minimum number of blocks this node requires
	// to be added to the expiry of HTLCs forwarded over this channel.
	TimeLockDelta uint16

	// HtlcMinimumMsat is the minimum HTLC value this node will forward
	// over this channel.
	HtlcMinimumMsat MilliSatoshi

	// BaseFee is the base fee, expressed in millisatoshi, that must be
	// paid for any HTLC forwarded over this channel.
	BaseFee uint32

	// FeeRate is the fee rate, expressed in parts-per-million of the
	// forwarded HTLC amount, charged for forwarding over this channel.
	FeeRate uint32
}

const (
	// ChanUpdateDisabled is set within ChannelFlags to signal that the
	// channel is temporarily unavailable for routing.
	ChanUpdateDisabled ChanUpdateFlag = 1 << 1
)

var _ Message = (*ChannelUpdate)(nil)

// Decode deserializes a serialized ChannelUpdate stored in the passed
// io.Reader observing the specified protocol version.
func (c *ChannelUpdate) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.Signature,
		&c.ChainHash,
		&c.ShortChannelID,
		&c.Timestamp,
		&c.ChannelFlags,
		&c.TimeLockDelta,
		&c.HtlcMinimumMsat,
		&c.BaseFee,
		&c.FeeRate,
	)
}

// Encode serializes the target ChannelUpdate into the passed io.Writer.
func (c *ChannelUpdate) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.Signature,
		c.ChainHash,
		c.ShortChannelID,
		c.Timestamp,
		c.ChannelFlags,
		c.TimeLockDelta,
		c.HtlcMinimumMsat,
		c.BaseFee,
		c.FeeRate,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (c *ChannelUpdate) MsgType() MessageType {
	return MsgChannelUpdate
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (c *ChannelUpdate) MaxPayloadLength(uint32) uint32 {
	return 8192
}

// DataToSign returns the part of the message that the Signature field is
// expected to cover.
func (c *ChannelUpdate) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		c.ChainHash,
		c.ShortChannelID,
		c.Timestamp,
		c.ChannelFlags,
		c.TimeLockDelta,
		c.HtlcMinimumMsat,
		c.BaseFee,
		c.FeeRate,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// AnnounceSignatures is used to exchange the signatures necessary to
// construct a ChannelAnnouncement, once a channel has reached the
// requisite number of confirmations and both sides are ready to announce
// it to the rest of the network.
type AnnounceSignatures struct {
	// ChannelID is the ID of the channel being announced.
	ChannelID ChannelID

	// ShortChannelID is the unique description of the funding
	// transaction.
	ShortChannelID ShortChannelID

	// NodeSignature is the signature under the sender's node identity
	// key over the ChannelAnnouncement digest.
	NodeSignature *ecdsa.Signature

	// BitcoinSignature is the signature under the sender's bitcoin key
	// over the ChannelAnnouncement digest.
	BitcoinSignature *ecdsa.Signature
}

var _ Message = (*AnnounceSignatures)(nil)

// Decode deserializes a serialized AnnounceSignatures stored in the passed
// io.Reader observing the specified protocol version.
func (a *AnnounceSignatures) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&a.ChannelID,
		&a.ShortChannelID,
		&a.NodeSignature,
		&a.BitcoinSignature,
	)
}

// Encode serializes the target AnnounceSignatures into the passed
// io.Writer.
func (a *AnnounceSignatures) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		a.ChannelID,
		a.ShortChannelID,
		a.NodeSignature,
		a.BitcoinSignature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (a *AnnounceSignatures) MsgType() MessageType {
	return MsgAnnounceSignatures
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (a *AnnounceSignatures) MaxPayloadLength(uint32) uint32 {
	return 8192
}
