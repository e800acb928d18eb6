package sphinx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/tlv"
)

// TLV types carried inside a hop's onion payload, per BOLT #4's
// payload_onion namespace.
const (
	TypeAmtToForward     tlv.Type = 2
	TypeOutgoingCLTV     tlv.Type = 4
	TypeShortChannelID   tlv.Type = 6
	TypePaymentData      tlv.Type = 8
	TypeEncryptedData    tlv.Type = 10
	TypeBlindingPoint    tlv.Type = 12
	TypeCurrentPathKey   tlv.Type = 14
	TypePaymentMetadata  tlv.Type = 16
)

// PaymentData carries the MPP fields a final hop needs to reassemble a
// multi-part payment: the payment_secret proving knowledge of the
// invoice, and the total amount the sender intends to deliver across
// all parts.
type PaymentData struct {
	PaymentSecret [32]byte
	TotalMsat     uint64
}

// HopPayload is the decoded form of one hop's onion TLV payload. Which
// fields are populated depends on whether this is an intermediate hop
// (ShortChannelID set, PaymentData unset) or the final hop in the route
// (PaymentData set, ShortChannelID unset).
type HopPayload struct {
	AmtToForward    uint64
	OutgoingCLTV    uint32
	ShortChannelID  uint64
	HasSCID         bool
	PaymentData     *PaymentData
	PaymentMetadata []byte
	BlindingPoint   *btcec.PublicKey
	CurrentPathKey  *btcec.PublicKey
	EncryptedData   []byte

	// extra preserves any odd, unrecognized TLV records so re-forwarding
	// (e.g. in blinded-route scenarios) does not drop sender-supplied
	// data this hop doesn't understand.
	extra *tlv.Stream
}

var ErrMissingAmtToForward = errors.New("hop payload missing amt_to_forward")
var ErrMissingOutgoingCLTV = errors.New("hop payload missing outgoing_cltv_value")

// IsFinalHop reports whether this payload describes the final hop in a
// route: it carries payment_data (or, in the blinded-path case,
// encrypted_data with no short_channel_id) rather than a forwarding
// instruction.
func (h *HopPayload) IsFinalHop() bool {
	return !h.HasSCID && (h.PaymentData != nil || len(h.EncryptedData) > 0)
}

func hopKnownTypes(t tlv.Type) bool {
	switch t {
	case TypeAmtToForward, TypeOutgoingCLTV, TypeShortChannelID,
		TypePaymentData, TypePaymentMetadata, TypeBlindingPoint,
		TypeCurrentPathKey, TypeEncryptedData:
		return true
	default:
		return false
	}
}

// EncodeTLV serializes the payload as the TLV stream that goes inside
// one onion layer, satisfying HopPayloadEncoder.
func (h *HopPayload) EncodeTLV() ([]byte, error) {
	var records []tlv.Record

	var amtBuf bytes.Buffer
	if err := tlv.WriteTU64(&amtBuf, h.AmtToForward); err != nil {
		return nil, err
	}
	records = append(records, tlv.Record{Type: TypeAmtToForward, Value: amtBuf.Bytes()})

	var cltvBuf bytes.Buffer
	if err := tlv.WriteTU32(&cltvBuf, h.OutgoingCLTV); err != nil {
		return nil, err
	}
	records = append(records, tlv.Record{Type: TypeOutgoingCLTV, Value: cltvBuf.Bytes()})

	if h.HasSCID {
		scidBuf := make([]byte, 8)
		for i := 0; i < 8; i++ {
			scidBuf[7-i] = byte(h.ShortChannelID >> (8 * i))
		}
		records = append(records, tlv.Record{Type: TypeShortChannelID, Value: scidBuf})
	}

	if h.PaymentData != nil {
		var buf bytes.Buffer
		buf.Write(h.PaymentData.PaymentSecret[:])
		var totalBuf bytes.Buffer
		if err := tlv.WriteTU64(&totalBuf, h.PaymentData.TotalMsat); err != nil {
			return nil, err
		}
		// payment_data is secret(32) || total_msat(tu64), with
		// total_msat left truncated like every other tu64 field.
		buf.Write(totalBuf.Bytes())
		records = append(records, tlv.Record{Type: TypePaymentData, Value: buf.Bytes()})
	}

	if len(h.PaymentMetadata) > 0 {
		records = append(records, tlv.Record{Type: TypePaymentMetadata, Value: h.PaymentMetadata})
	}

	if h.BlindingPoint != nil {
		records = append(records, tlv.Record{
			Type:  TypeBlindingPoint,
			Value: h.BlindingPoint.SerializeCompressed(),
		})
	}

	if h.CurrentPathKey != nil {
		records = append(records, tlv.Record{
			Type:  TypeCurrentPathKey,
			Value: h.CurrentPathKey.SerializeCompressed(),
		})
	}

	if len(h.EncryptedData) > 0 {
		records = append(records, tlv.Record{Type: TypeEncryptedData, Value: h.EncryptedData})
	}

	if h.extra != nil {
		for _, r := range h.extra.Records {
			if !hopKnownTypes(r.Type) {
				records = append(records, r)
			}
		}
	}

	var out bytes.Buffer
	if err := tlv.EncodeStream(&out, records); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodeHopPayload parses a hop's raw onion TLV payload as produced by
// Peel.
func DecodeHopPayload(raw []byte) (*HopPayload, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), hopKnownTypes)
	if err != nil {
		return nil, fmt.Errorf("decoding hop payload: %w", err)
	}

	h := &HopPayload{extra: stream}

	amtVal, ok := stream.Get(TypeAmtToForward)
	if !ok {
		return nil, ErrMissingAmtToForward
	}
	amt, err := tlv.ReadTU64(bytes.NewReader(amtVal), len(amtVal))
	if err != nil {
		return nil, fmt.Errorf("amt_to_forward: %w", err)
	}
	h.AmtToForward = amt

	cltvVal, ok := stream.Get(TypeOutgoingCLTV)
	if !ok {
		return nil, ErrMissingOutgoingCLTV
	}
	cltv, err := tlv.ReadTU32(bytes.NewReader(cltvVal), len(cltvVal))
	if err != nil {
		return nil, fmt.Errorf("outgoing_cltv_value: %w", err)
	}
	h.OutgoingCLTV = cltv

	if val, ok := stream.Get(TypeShortChannelID); ok {
		if len(val) != 8 {
			return nil, fmt.Errorf("short_channel_id must be 8 bytes, got %d", len(val))
		}
		var scid uint64
		for _, b := range val {
			scid = (scid << 8) | uint64(b)
		}
		h.ShortChannelID = scid
		h.HasSCID = true
	}

	if val, ok := stream.Get(TypePaymentData); ok {
		if len(val) < 32 {
			return nil, fmt.Errorf("payment_data too short: %d bytes", len(val))
		}
		pd := &PaymentData{}
		copy(pd.PaymentSecret[:], val[:32])
		total, err := tlv.ReadTU64(bytes.NewReader(val[32:]), len(val)-32)
		if err != nil {
			return nil, fmt.Errorf("payment_data total_msat: %w", err)
		}
		pd.TotalMsat = total
		h.PaymentData = pd
	}

	if val, ok := stream.Get(TypePaymentMetadata); ok {
		h.PaymentMetadata = val
	}

	if val, ok := stream.Get(TypeBlindingPoint); ok {
		pub, err := btcec.ParsePubKey(val)
		if err != nil {
			return nil, fmt.Errorf("blinding_point: %w", err)
		}
		h.BlindingPoint = pub
	}

	if val, ok := stream.Get(TypeCurrentPathKey); ok {
		pub, err := btcec.ParsePubKey(val)
		if err != nil {
			return nil, fmt.Errorf("current_path_key: %w", err)
		}
		h.CurrentPathKey = pub
	}

	if val, ok := stream.Get(TypeEncryptedData); ok {
		h.EncryptedData = val
	}

	return h, nil
}
