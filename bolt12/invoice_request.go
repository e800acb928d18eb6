package bolt12

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lnmobile/lncore/tlv"
)

// InvoiceRequest is a decoded or to-be-encoded BOLT #12 invoice_request,
// sent by the payer in response to an offer (or to request a refund).
type InvoiceRequest struct {
	Metadata         []byte
	PayerID          *btcec.PublicKey
	AmountMsat       uint64
	Quantity         uint64
	OfferDescription string // required for refund (non-offer) requests

	// IsRefund marks a request that doesn't reference an offer's
	// issuer_id, per spec.md's USER_PAYS_MERCHANT/MERCHANT_PAYS_USER
	// split.
	IsRefund bool

	raw []tlv.Record
}

var (
	ErrInvreqMissingMetadata = fmt.Errorf("bolt12: invoice_request requires invreq_metadata")
	ErrInvreqMissingPayerID  = fmt.Errorf("bolt12: invoice_request requires invreq_payer_id")
	ErrInvreqRefundIncomplete = fmt.Errorf("bolt12: refund invoice_request requires offer_description and invreq_amount")
	ErrInvreqQuantityExceedsMax = fmt.Errorf("bolt12: invreq_quantity exceeds the offer's quantity_max")
)

// Validate checks req against spec.md's rules, given the offer it responds
// to (nil for a refund request that doesn't reference one).
func (req *InvoiceRequest) Validate(offer *Offer) error {
	if len(req.Metadata) == 0 {
		return ErrInvreqMissingMetadata
	}
	if req.PayerID == nil {
		return ErrInvreqMissingPayerID
	}
	if req.IsRefund {
		if req.OfferDescription == "" || req.AmountMsat == 0 {
			return ErrInvreqRefundIncomplete
		}
	}
	if offer != nil && offer.quantityMaxSet && offer.QuantityMax != 0 &&
		req.Quantity > offer.QuantityMax {
		return ErrInvreqQuantityExceedsMax
	}
	return nil
}

// Flow reports which payment direction this request implies.
func (req *InvoiceRequest) Flow() PaymentFlow {
	if req.IsRefund {
		return FlowMerchantPaysUser
	}
	return FlowUserPaysMerchant
}

// Encode serializes the request as its canonical TLV stream.
func (req *InvoiceRequest) Encode() ([]byte, error) {
	var records []tlv.Record

	records = append(records, tlv.Record{Type: TypeInvreqMetadata, Value: req.Metadata})
	if req.PayerID != nil {
		records = append(records, tlv.Record{Type: TypeInvreqPayerID, Value: req.PayerID.SerializeCompressed()})
	}
	if req.AmountMsat != 0 {
		records = append(records, tlv.Record{Type: TypeInvreqAmount, Value: encodeTU64(req.AmountMsat)})
	}
	if req.Quantity != 0 {
		records = append(records, tlv.Record{Type: TypeInvreqQuantity, Value: encodeTU64(req.Quantity)})
	}
	if req.OfferDescription != "" {
		records = append(records, tlv.Record{Type: TypeOfferDescription, Value: []byte(req.OfferDescription)})
	}
	records = append(records, req.raw...)

	var buf bytes.Buffer
	if err := tlv.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBech32 returns the request's bech32-without-checksum wire form
// under the "lnr" human-readable prefix.
func (req *InvoiceRequest) EncodeBech32() (string, error) {
	raw, err := req.Encode()
	if err != nil {
		return "", err
	}
	return EncodeNoChecksum("lnr", raw)
}

func invreqKnownTypes(t tlv.Type) bool {
	switch t {
	case TypeInvreqMetadata, TypeInvreqPayerID, TypeInvreqAmount,
		TypeInvreqQuantity, TypeOfferDescription:
		return true
	default:
		return false
	}
}

// DecodeInvoiceRequest parses a raw invoice_request TLV stream.
func DecodeInvoiceRequest(raw []byte) (*InvoiceRequest, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), invreqKnownTypes)
	if err != nil {
		return nil, err
	}

	req := &InvoiceRequest{}
	for _, rec := range stream.Records {
		switch rec.Type {
		case TypeInvreqMetadata:
			req.Metadata = rec.Value
		case TypeInvreqPayerID:
			pub, err := btcec.ParsePubKey(rec.Value)
			if err != nil {
				return nil, err
			}
			req.PayerID = pub
		case TypeInvreqAmount:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			req.AmountMsat = v
		case TypeInvreqQuantity:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			req.Quantity = v
		case TypeOfferDescription:
			req.OfferDescription = string(rec.Value)
			req.IsRefund = true
		default:
			req.raw = append(req.raw, rec)
		}
	}

	return req, nil
}

// DecodeInvoiceRequestBech32 decodes a request from its bech32-without-
// checksum wire form.
func DecodeInvoiceRequestBech32(encoded string) (*InvoiceRequest, error) {
	hrp, data, err := DecodeNoChecksum(unfold(encoded))
	if err != nil {
		return nil, err
	}
	if hrp != "lnr" {
		return nil, fmt.Errorf("bolt12: unexpected human-readable prefix %q for an invoice_request", hrp)
	}
	return DecodeInvoiceRequest(data)
}
