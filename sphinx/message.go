package sphinx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/tlv"
)

// OnionMessagePayload is a hop's TLV payload inside a BOLT-12 onion
// message. Unlike payment HTLC onions, an onion-message hop's payload
// carries only the encrypted routing/blinding data and an optional reply
// path (its own TLV record, type 2); application data (invoice_request,
// invoice) travels inside EncryptedData once the final hop unblinds it.
type OnionMessagePayload struct {
	EncryptedData []byte
	ReplyPath     *ReplyPath
}

// ReplyPath lets the final recipient of an onion message route a
// response back through a blinded path the original sender built,
// without ever learning the sender's real node ID.
type ReplyPath struct {
	FirstNodeID  *btcec.PublicKey
	FirstPathKey *btcec.PublicKey
	Hops         []BlindedHop
}

const (
	typeOMEncryptedData tlv.Type = 4
	typeOMReplyPath      tlv.Type = 2
)

func onionMessageKnownTypes(t tlv.Type) bool {
	switch t {
	case typeOMEncryptedData, typeOMReplyPath:
		return true
	default:
		return false
	}
}

// EncodeTLV satisfies HopPayloadEncoder, letting OnionMessagePayload be
// carried directly by NewOnionPacket.
func (m *OnionMessagePayload) EncodeTLV() ([]byte, error) {
	var records []tlv.Record

	if m.ReplyPath != nil {
		rpBytes, err := encodeReplyPath(m.ReplyPath)
		if err != nil {
			return nil, err
		}
		records = append(records, tlv.Record{Type: typeOMReplyPath, Value: rpBytes})
	}

	if len(m.EncryptedData) > 0 {
		records = append(records, tlv.Record{Type: typeOMEncryptedData, Value: m.EncryptedData})
	}

	var buf bytes.Buffer
	if err := tlv.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeOnionMessagePayload parses a hop's raw onion-message TLV
// payload as produced by Peel.
func DecodeOnionMessagePayload(raw []byte) (*OnionMessagePayload, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), onionMessageKnownTypes)
	if err != nil {
		return nil, fmt.Errorf("decoding onion message payload: %w", err)
	}

	m := &OnionMessagePayload{}

	if val, ok := stream.Get(typeOMEncryptedData); ok {
		m.EncryptedData = val
	}
	if val, ok := stream.Get(typeOMReplyPath); ok {
		rp, err := decodeReplyPath(val)
		if err != nil {
			return nil, fmt.Errorf("reply_path: %w", err)
		}
		m.ReplyPath = rp
	}

	return m, nil
}

// reply_path TLV sub-fields: first_node_id(33) || blinding(33) ||
// path, where path is a sequence of (node_id(33), enclen(u16),
// encrypted_data) entries. This mirrors the BOLT-12 reply_path
// encoding so a node building a response can replay the same blinded
// hops the original sender constructed via BuildBlindedPath.
func encodeReplyPath(rp *ReplyPath) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rp.FirstNodeID.SerializeCompressed())
	buf.Write(rp.FirstPathKey.SerializeCompressed())

	for _, hop := range rp.Hops {
		buf.Write(hop.NodeID.SerializeCompressed())
		if len(hop.EncryptedData) > 0xffff {
			return nil, fmt.Errorf("encrypted_data too long: %d bytes", len(hop.EncryptedData))
		}
		buf.WriteByte(byte(len(hop.EncryptedData) >> 8))
		buf.WriteByte(byte(len(hop.EncryptedData)))
		buf.Write(hop.EncryptedData)
	}

	return buf.Bytes(), nil
}

func decodeReplyPath(raw []byte) (*ReplyPath, error) {
	if len(raw) < 66 {
		return nil, fmt.Errorf("reply_path too short: %d bytes", len(raw))
	}

	firstNode, err := btcec.ParsePubKey(raw[:33])
	if err != nil {
		return nil, fmt.Errorf("first_node_id: %w", err)
	}
	firstPathKey, err := btcec.ParsePubKey(raw[33:66])
	if err != nil {
		return nil, fmt.Errorf("first_path_key: %w", err)
	}

	rp := &ReplyPath{FirstNodeID: firstNode, FirstPathKey: firstPathKey}

	rest := raw[66:]
	for len(rest) > 0 {
		if len(rest) < 35 {
			return nil, fmt.Errorf("truncated reply_path hop")
		}
		nodeID, err := btcec.ParsePubKey(rest[:33])
		if err != nil {
			return nil, fmt.Errorf("hop node_id: %w", err)
		}
		encLen := int(rest[33])<<8 | int(rest[34])
		rest = rest[35:]
		if len(rest) < encLen {
			return nil, fmt.Errorf("truncated hop encrypted_data")
		}
		rp.Hops = append(rp.Hops, BlindedHop{
			NodeID:        nodeID,
			EncryptedData: append([]byte(nil), rest[:encLen]...),
		})
		rest = rest[encLen:]
	}

	return rp, nil
}
