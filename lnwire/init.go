package lnwire

import "io"

// Init is the first message reveal the features supported or required
// by this node. Nodes wait for receipt of the other's Init message before
// sending any other messages.
type Init struct {
	// GlobalFeatures is a legacy feature vector used by nodes that predate
	// the Features field below. Kept around only so old peers decode.
	GlobalFeatures *FeatureVector

	// Features is the set of features this node supports.
	Features *FeatureVector
}

// NewInitMessage creates new instance of init message object.
func NewInitMessage(gf, f *FeatureVector) *Init {
	return &Init{
		GlobalFeatures: gf,
		Features:       f,
	}
}

var _ Message = (*Init)(nil)

// Decode deserializes a serialized Init message stored in the passed
// io.Reader observing the specified protocol version.
func (msg *Init) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&msg.GlobalFeatures,
		&msg.Features,
	)
}

// Encode serializes the target Init into the passed io.Writer.
func (msg *Init) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.GlobalFeatures,
		msg.Features,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (msg *Init) MsgType() MessageType {
	return MsgInit
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (msg *Init) MaxPayloadLength(uint32) uint32 {
	return 8192
}

// Ping is sent by peers periodically to determine if the connection is
// still alive, and to keep it from being closed due to inactivity.
type Ping struct {
	// NumPongBytes is the number of bytes the party responding to the ping
	// should include in their Pong response.
	NumPongBytes uint16

	// PaddingBytes is a set of padding bytes of NumPongBytes length.
	PaddingBytes []byte
}

var _ Message = (*Ping)(nil)

// Decode deserializes a serialized Ping stored in the passed io.Reader.
func (msg *Ping) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &msg.NumPongBytes); err != nil {
		return err
	}

	var padLen uint16
	if err := readElements(r, &padLen); err != nil {
		return err
	}
	msg.PaddingBytes = make([]byte, padLen)
	return readElements(r, msg.PaddingBytes)
}

// Encode serializes the target Ping into the passed io.Writer.
func (msg *Ping) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		msg.NumPongBytes,
		uint16(len(msg.PaddingBytes)),
		msg.PaddingBytes,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (msg *Ping) MsgType() MessageType {
	return MsgPing
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (msg *Ping) MaxPayloadLength(uint32) uint32 {
	return 65531
}

// Pong defines a message which is the direct response to a received Ping
// message. A Pong reply indicates that a connection is still active.
type Pong struct {
	// PongBytes is a set of padding bytes requested by the Ping sender.
	PongBytes []byte
}

var _ Message = (*Pong)(nil)

// Decode deserializes a serialized Pong stored in the passed io.Reader.
func (msg *Pong) Decode(r io.Reader, pver uint32) error {
	var padLen uint16
	if err := readElements(r, &padLen); err != nil {
		return err
	}
	msg.PongBytes = make([]byte, padLen)
	return readElements(r, msg.PongBytes)
}

// Encode serializes the target Pong into the passed io.Writer.
func (msg *Pong) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		uint16(len(msg.PongBytes)),
		msg.PongBytes,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
func (msg *Pong) MsgType() MessageType {
	return MsgPong
}

// MaxPayloadLength returns the maximum allowed payload size for this
// message observing the specified protocol version.
func (msg *Pong) MaxPayloadLength(uint32) uint32 {
	return 65531
}
