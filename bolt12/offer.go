package bolt12

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lnmobile/lncore/tlv"
)

// BlindedPath is one hop-count in an offer/invoice's route-blinding path.
// Only the hop count is needed at this layer; the per-hop blinded data
// itself is carried by sphinx.BuildBlindedPath.
type BlindedPath struct {
	NumHops int
}

// Offer is a decoded or to-be-encoded BOLT #12 offer.
type Offer struct {
	Chains         [][32]byte
	Currency       string // ISO 4217 code; empty means the amount (if any) is in msat
	AmountMsat     uint64
	Description    string
	IssuerID       *btcec.PublicKey
	Issuer         string
	Paths          []BlindedPath
	QuantityMax    uint64
	AbsoluteExpiry uint64

	// quantityMaxSet distinguishes "quantity_max absent" from
	// "quantity_max present and zero", since only the latter is invalid.
	quantityMaxSet bool

	raw []tlv.Record // unknown-odd records preserved for forwarding
}

// ErrOfferMissingDescription requires either a description or an issuer
// identity/paths per spec.
var ErrOfferMissingDescription = fmt.Errorf("bolt12: offer requires offer_description or issuer_id/paths")

// ErrOfferCurrencyNeedsAmount is returned when a non-Bitcoin currency is
// set without an amount.
var ErrOfferCurrencyNeedsAmount = fmt.Errorf("bolt12: offer currency requires an amount")

// ErrOfferZeroQuantityMax is returned when quantity_max is present but
// zero.
var ErrOfferZeroQuantityMax = fmt.Errorf("bolt12: offer quantity_max must not be zero")

// ErrOfferEmptyPath is returned when a blinded path has no hops.
var ErrOfferEmptyPath = fmt.Errorf("bolt12: offer blinded path has zero hops")

// Validate checks the semantic rules spec.md assigns to offers.
func (o *Offer) Validate() error {
	if o.Description == "" && o.IssuerID == nil && len(o.Paths) == 0 {
		return ErrOfferMissingDescription
	}
	if o.QuantityMax == 0 && o.quantityMaxSet {
		return ErrOfferZeroQuantityMax
	}
	if o.Currency != "" && o.AmountMsat == 0 {
		return ErrOfferCurrencyNeedsAmount
	}
	for _, p := range o.Paths {
		if p.NumHops < 1 {
			return ErrOfferEmptyPath
		}
	}
	return nil
}

// Encode serializes the offer as its canonical TLV stream.
func (o *Offer) Encode() ([]byte, error) {
	var records []tlv.Record

	if len(o.Chains) > 0 {
		var chains []byte
		for _, c := range o.Chains {
			chains = append(chains, c[:]...)
		}
		records = append(records, tlv.Record{Type: TypeOfferChains, Value: chains})
	}
	if o.AmountMsat != 0 {
		records = append(records, tlv.Record{Type: TypeOfferAmount, Value: encodeTU64(o.AmountMsat)})
	}
	if o.Currency != "" {
		records = append(records, tlv.Record{Type: TypeOfferCurrency, Value: []byte(o.Currency)})
	}
	if o.Description != "" {
		records = append(records, tlv.Record{Type: TypeOfferDescription, Value: []byte(o.Description)})
	}
	if o.IssuerID != nil {
		records = append(records, tlv.Record{Type: TypeOfferIssuerID, Value: o.IssuerID.SerializeCompressed()})
	}
	if o.Issuer != "" {
		records = append(records, tlv.Record{Type: TypeOfferIssuer, Value: []byte(o.Issuer)})
	}
	if o.QuantityMax != 0 {
		records = append(records, tlv.Record{Type: TypeOfferQuantityMax, Value: encodeTU64(o.QuantityMax)})
	}
	if o.AbsoluteExpiry != 0 {
		records = append(records, tlv.Record{Type: TypeOfferAbsoluteExpiry, Value: encodeTU64(o.AbsoluteExpiry)})
	}
	if len(o.Paths) > 0 {
		hopCounts := make([]byte, len(o.Paths))
		for i, p := range o.Paths {
			hopCounts[i] = byte(p.NumHops)
		}
		records = append(records, tlv.Record{Type: TypeOfferPaths, Value: hopCounts})
	}
	records = append(records, o.raw...)

	var buf bytes.Buffer
	if err := tlv.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBech32 returns the offer's bech32-without-checksum wire form under
// the "lno" human-readable prefix.
func (o *Offer) EncodeBech32() (string, error) {
	raw, err := o.Encode()
	if err != nil {
		return "", err
	}
	return EncodeNoChecksum("lno", raw)
}

func encodeTU64(v uint64) []byte {
	var buf bytes.Buffer
	_ = tlv.WriteTU64(&buf, v)
	return buf.Bytes()
}

func decodeTU64(raw []byte) (uint64, error) {
	return tlv.ReadTU64(bytes.NewReader(raw), len(raw))
}

// offerKnownTypes reports whether t is a field DecodeOffer understands.
func offerKnownTypes(t tlv.Type) bool {
	switch t {
	case TypeOfferChains, TypeOfferAmount, TypeOfferCurrency, TypeOfferDescription,
		TypeOfferIssuerID, TypeOfferIssuer, TypeOfferQuantityMax,
		TypeOfferAbsoluteExpiry, TypeOfferPaths:
		return true
	default:
		return false
	}
}

// DecodeOffer parses a raw offer TLV stream (already bech32-decoded).
func DecodeOffer(raw []byte) (*Offer, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), offerKnownTypes)
	if err != nil {
		return nil, err
	}

	o := &Offer{}
	for _, rec := range stream.Records {
		switch rec.Type {
		case TypeOfferChains:
			if len(rec.Value)%32 != 0 {
				return nil, fmt.Errorf("bolt12: offer_chains record has invalid length %d", len(rec.Value))
			}
			for i := 0; i < len(rec.Value); i += 32 {
				var chain [32]byte
				copy(chain[:], rec.Value[i:i+32])
				o.Chains = append(o.Chains, chain)
			}
		case TypeOfferAmount:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			o.AmountMsat = v
		case TypeOfferCurrency:
			o.Currency = string(rec.Value)
		case TypeOfferDescription:
			o.Description = string(rec.Value)
		case TypeOfferIssuerID:
			pub, err := btcec.ParsePubKey(rec.Value)
			if err != nil {
				return nil, err
			}
			o.IssuerID = pub
		case TypeOfferIssuer:
			o.Issuer = string(rec.Value)
		case TypeOfferQuantityMax:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			o.QuantityMax = v
			o.quantityMaxSet = true
		case TypeOfferAbsoluteExpiry:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			o.AbsoluteExpiry = v
		case TypeOfferPaths:
			for _, hopCount := range rec.Value {
				o.Paths = append(o.Paths, BlindedPath{NumHops: int(hopCount)})
			}
		default:
			o.raw = append(o.raw, rec)
		}
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

// DecodeOfferBech32 decodes an offer from its bech32-without-checksum
// wire form, unfolding any "+"-newline-space line wrapping first.
func DecodeOfferBech32(encoded string) (*Offer, error) {
	hrp, data, err := DecodeNoChecksum(unfold(encoded))
	if err != nil {
		return nil, err
	}
	if hrp != "lno" {
		return nil, fmt.Errorf("bolt12: unexpected human-readable prefix %q for an offer", hrp)
	}
	return DecodeOffer(data)
}
