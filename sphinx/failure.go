package sphinx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lnmobile/lncore/lncrypto"
)

// FailureMessageSize is the fixed size of the padded failure message
// blob every hop wraps, chosen so a failure's length never leaks which
// hop on the route produced it.
const FailureMessageSize = 256

// failureWrapperOverhead is the per-hop HMAC (32) plus the two-byte
// big-endian length prefix carried ahead of the padded failure message.
const failureWrapperOverhead = HMACSize + 2

// ErrFailureTooLong is returned when a caller's failure payload does not
// fit inside FailureMessageSize once its own length prefix is added.
var ErrFailureTooLong = errors.New("failure message exceeds padded message size")

// ErrFailureHMACMismatch is returned by UnwrapFailure when one of the
// per-hop HMACs embedded in an onion error does not verify, meaning
// either the packet was tampered with or the reported failure did not
// actually originate on this route.
var ErrFailureHMACMismatch = errors.New("onion failure hmac mismatch")

// WrapFailure builds the obfuscated failure blob that an erring hop
// sends back towards the sender: the raw failure message, padded to
// FailureMessageSize and length-prefixed, then HMAC'd and stream
// XOR-cipthered under that hop's "um"/"ammag" keys derived from the
// shared secret it computed when the packet first passed through it.
func WrapFailure(sharedSecret [32]byte, failureMsg []byte) ([]byte, error) {
	if len(failureMsg)+2 > FailureMessageSize {
		return nil, ErrFailureTooLong
	}

	padded := make([]byte, FailureMessageSize)
	binary.BigEndian.PutUint16(padded[:2], uint16(len(failureMsg)))
	copy(padded[2:], failureMsg)

	um := deriveKey("um", sharedSecret)
	hmac := lncrypto.HMACSHA256(um[:], padded)

	blob := make([]byte, 0, HMACSize+FailureMessageSize)
	blob = append(blob, hmac[:]...)
	blob = append(blob, padded...)

	return obfuscate(sharedSecret, blob), nil
}

// obfuscate XORs blob with the "ammag" stream derived from sharedSecret.
// Encryption and decryption are the same operation since it's a stream
// cipher applied once per hop on the way back.
func obfuscate(sharedSecret [32]byte, blob []byte) []byte {
	ammag := deriveKey("ammag", sharedSecret)
	stream, err := lncrypto.ChaCha20Stream(ammag, len(blob))
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(blob))
	for i := range blob {
		out[i] = blob[i] ^ stream[i]
	}
	return out
}

// RelayFailure is applied by every intermediate hop as the failure blob
// travels back towards the sender: it XORs on one more layer of
// obfuscation under that hop's own shared secret, without touching the
// HMAC chain underneath.
func RelayFailure(sharedSecret [32]byte, blob []byte) []byte {
	return obfuscate(sharedSecret, blob)
}

// UnwrapFailure is run by the sender once a failure blob has traveled
// back through every hop it was obfuscated by. sharedSecrets must be in
// forward hop order (the order NewOnionPacket used to build the
// packet); UnwrapFailure reverses the chain of obfuscation hop by hop,
// testing the embedded HMAC against each hop's "um" key until one
// matches, which identifies which hop produced the original failure.
func UnwrapFailure(sharedSecrets [][32]byte, blob []byte) (originHop int, failureMsg []byte, err error) {
	current := append([]byte(nil), blob...)

	for i, secret := range sharedSecrets {
		current = obfuscate(secret, current)

		if len(current) != HMACSize+FailureMessageSize {
			return -1, nil, fmt.Errorf("malformed failure blob: %d bytes", len(current))
		}

		um := deriveKey("um", secret)
		expectedHMAC := current[:HMACSize]
		padded := current[HMACSize:]
		computed := lncrypto.HMACSHA256(um[:], padded)

		if lncrypto.ConstantTimeCompare(computed[:], expectedHMAC) {
			msgLen := binary.BigEndian.Uint16(padded[:2])
			if int(msgLen) > FailureMessageSize-2 {
				return -1, nil, fmt.Errorf("failure message length %d exceeds padded size", msgLen)
			}
			return i, padded[2 : 2+msgLen], nil
		}
	}

	return -1, nil, ErrFailureHMACMismatch
}

// Failure codes, per BOLT #4's onion error namespace. The high bits
// classify a failure: BADONION (0x8000) means the erring hop could not
// even decrypt the packet, PERM (0x4000) means retrying the same route
// is pointless, UPDATE (0x1000) means the attached channel_update may
// fix a retry, and NODE (0x2000) scopes a failure to a node rather than
// one of its channels.
const (
	codeBadOnion uint16 = 0x8000
	codePerm     uint16 = 0x4000
	codeNode     uint16 = 0x2000
	codeUpdate   uint16 = 0x1000

	CodeInvalidOnionVersion   uint16 = codeBadOnion | codePerm | 4
	CodeInvalidOnionHmac      uint16 = codeBadOnion | codePerm | 5
	CodeInvalidOnionKey       uint16 = codeBadOnion | codePerm | 6
	CodeTemporaryChannelFail  uint16 = codeUpdate | 7
	CodePermanentChannelFail  uint16 = codePerm | 8
	CodeUnknownNextPeer       uint16 = codePerm | 10
	CodeAmountBelowMinimum    uint16 = codeUpdate | 11
	CodeFeeInsufficient       uint16 = codeUpdate | 12
	CodeIncorrectCLTVExpiry   uint16 = codeUpdate | 13
	CodeExpiryTooSoon         uint16 = codeUpdate | 14
	CodeIncorrectPaymentDetails uint16 = codePerm | 15
	CodeChannelDisabled       uint16 = codeUpdate | 20
	CodeFinalIncorrectCLTV    uint16 = 18
	CodeFinalIncorrectAmount  uint16 = 19
	CodeExpiryTooFar          uint16 = 21
	CodeInvalidOnionPayload   uint16 = codePerm | 22
	CodeMPPTimeout            uint16 = 23
)

// FailureMessage is the decoded type||data pair a failure code
// carries, before the wrapping/padding machinery above is applied.
type FailureMessage struct {
	Code uint16
	Data []byte
}

// EncodeFailureMessage serializes a failure's 2-byte code followed by
// its type-specific data.
func EncodeFailureMessage(f FailureMessage) []byte {
	buf := make([]byte, 2+len(f.Data))
	binary.BigEndian.PutUint16(buf[:2], f.Code)
	copy(buf[2:], f.Data)
	return buf
}

// DecodeFailureMessage parses the output of EncodeFailureMessage.
func DecodeFailureMessage(raw []byte) (*FailureMessage, error) {
	if len(raw) < 2 {
		return nil, io.ErrUnexpectedEOF
	}
	return &FailureMessage{
		Code: binary.BigEndian.Uint16(raw[:2]),
		Data: append([]byte(nil), raw[2:]...),
	}, nil
}

// newChannelUpdateFailureData wraps a gossip channel_update message
// inside a failure's data field, as required by failures like
// temporary_channel_failure and fee_insufficient that let the sender
// retry once it has applied the updated policy.
func newChannelUpdateFailureData(channelUpdate []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(channelUpdate)))
	buf.Write(channelUpdate)
	return buf.Bytes()
}
