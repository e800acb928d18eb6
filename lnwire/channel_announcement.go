package lnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChannelAnnouncement message is used to announce the existence of a
// channel between two peers in the network. The chanID of the channel is
// encoded within the ShortChannelID field, which uses the information
// encoded in the funding transaction to uniquely identify the channel.
type ChannelAnnouncement struct {
	// NodeSig1 is a signature under the identity key of the first node
	// signing over the hash of the announcement.
	NodeSig1 *ecdsa.Signature

	// NodeSig2 is a signature under the identity key of the second node
	// signing over the hash of the announcement.
	NodeSig2 *ecdsa.Signature

	// BitcoinSig1 is a signature under the bitcoin key of the first node
	// signing over the hash of the announcement, attesting to ownership
	// of the first half of the funding output's multisig script.
	BitcoinSig1 *ecdsa.Signature

	// BitcoinSig2 is the counterpart to BitcoinSig1 for the second node.
	BitcoinSig2 *ecdsa.Signature

	// Features is the feature vector that encodes the features supported
	// by the target node. This field can be used to signal the type of
	// channel, or modifications to the fields that would normally follow
	// this vector.
	Features *FeatureVector

	// ChainHash denotes the target chain this channel was opened within.
	ChainHash chainhash.Hash

	// ShortChannelID is the unique description of the funding
	// transaction, or where exactly it's located within the target
	// blockchain.
	ShortChannelID ShortChannelID

	// NodeID1 is the identity public key of the first node who signed
	// this announcement.
	NodeID1 *btcec.PublicKey

	// NodeID2 is the identity public key of the second node who signed
	// this announcement.
	NodeID2 *btcec.PublicKey

	// BitcoinKey1 is the public key of the first node that was used to
	// generate the funding transaction's multi-sig output.
	BitcoinKey1 *btcec.PublicKey

	// BitcoinKey2 is the public key of the second node that was used to
	// generate the funding transaction's multi-sig output.
	BitcoinKey2 *btcec.PublicKey
}

var _ Message = (*ChannelAnnouncement)(nil)

// Decode deserializes a serialized ChannelAnnouncement stored in the passed
// io.Reader observing the specified protocol version.
func (a *ChannelAnnouncement) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&a.NodeSig1,
		&a.NodeSig2,
		&a.BitcoinSig1,
		&a.BitcoinSig2,
		&a.Features,
		&a.ChainHash,
		&a.ShortChannelID,
		&a.NodeID1,
		&a.NodeID2,
		&a.BitcoinKey1,
		&a.BitcoinKey2,
	)
}

// Encode serializes the target ChannelAnnouncement into the passed
// io.Writer.
func (a *ChannelAnnouncement) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		a.NodeSig1,
		a.NodeSig2,
		a.BitcoinSig1,
		a.BitcoinSig2,
		a.Features,
		a.ChainHash,
		a.ShortChannelID,
		a.NodeID1,
		a.NodeID2,
		a.BitcoinKey1,
		a.BitcoinKey2,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (a *ChannelAnnouncement) MsgType() MessageType {
	return MsgChannelAnnouncement
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (a *ChannelAnnouncement) MaxPayloadLength(uint32) uint32 {
	return 8192
}

// DataToSign returns the part of the message that each of the four
// signatures is expected to cover.
func (a *ChannelAnnouncement) DataToSign() ([]byte, error) {
	var w bytes.Buffer
	err := writeElements(&w,
		a.Features,
		a.ChainHash,
		a.ShortChannelID,
		a.NodeID1,
		a.NodeID2,
		a.BitcoinKey1,
		a.BitcoinKey2,
	)
	if err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}
