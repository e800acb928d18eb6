package bolt12

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lnmobile/lncore/tlv"
)

// Invoice is a decoded or to-be-encoded BOLT #12 invoice.
type Invoice struct {
	AmountMsat     uint64
	CreatedAt      uint64
	PaymentHash    chainhash.Hash
	NodeID         *btcec.PublicKey
	RelativeExpiry uint64 // 0 means DefaultRelativeExpirySeconds

	Paths       []BlindedPath
	BlindedPays int // must equal len(Paths)

	FallbackAddressVersions []byte // each must be <= 16

	Signature *ecdsa.Signature

	raw []tlv.Record
}

var (
	ErrInvoiceMissingFields  = fmt.Errorf("bolt12: invoice requires amount, created_at, payment_hash, node_id, and signature")
	ErrInvoicePathsEmpty     = fmt.Errorf("bolt12: invoice requires at least one blinded path")
	ErrInvoicePayMismatch    = fmt.Errorf("bolt12: invoice must carry exactly one blindedpay per path")
	ErrInvoicePathEmptyHops  = fmt.Errorf("bolt12: invoice blinded path has zero hops")
	ErrInvoiceFallbackVersion = fmt.Errorf("bolt12: invoice fallback address version exceeds 16")
)

// EffectiveRelativeExpiry returns RelativeExpiry, or
// DefaultRelativeExpirySeconds if unset.
func (inv *Invoice) EffectiveRelativeExpiry() uint64 {
	if inv.RelativeExpiry == 0 {
		return DefaultRelativeExpirySeconds
	}
	return inv.RelativeExpiry
}

// Validate checks inv against spec.md's invoice rules.
func (inv *Invoice) Validate() error {
	var zeroHash chainhash.Hash
	if inv.AmountMsat == 0 || inv.CreatedAt == 0 || inv.PaymentHash == zeroHash ||
		inv.NodeID == nil || inv.Signature == nil {
		return ErrInvoiceMissingFields
	}
	if len(inv.Paths) == 0 {
		return ErrInvoicePathsEmpty
	}
	if inv.BlindedPays != len(inv.Paths) {
		return ErrInvoicePayMismatch
	}
	for _, p := range inv.Paths {
		if p.NumHops < 1 {
			return ErrInvoicePathEmptyHops
		}
	}
	for _, v := range inv.FallbackAddressVersions {
		if v > 16 {
			return ErrInvoiceFallbackVersion
		}
	}
	log.Debugf("bolt12: validated invoice payment_hash=%x amount_msat=%d",
		inv.PaymentHash, inv.AmountMsat)
	return nil
}

// Encode serializes the invoice as its canonical TLV stream, excluding the
// signature if Signature is nil (used to build the pre-signature digest).
func (inv *Invoice) Encode() ([]byte, error) {
	var records []tlv.Record

	records = append(records, tlv.Record{Type: TypeInvoiceAmount, Value: encodeTU64(inv.AmountMsat)})
	records = append(records, tlv.Record{Type: TypeInvoiceCreatedAt, Value: encodeTU64(inv.CreatedAt)})
	records = append(records, tlv.Record{Type: TypeInvoicePaymentHash, Value: append([]byte(nil), inv.PaymentHash[:]...)})
	if inv.RelativeExpiry != 0 {
		records = append(records, tlv.Record{Type: TypeInvoiceRelativeExpiry, Value: encodeTU64(inv.RelativeExpiry)})
	}
	if inv.NodeID != nil {
		records = append(records, tlv.Record{Type: TypeInvoiceNodeID, Value: inv.NodeID.SerializeCompressed()})
	}
	if len(inv.Paths) > 0 {
		hopCounts := make([]byte, len(inv.Paths))
		for i, p := range inv.Paths {
			hopCounts[i] = byte(p.NumHops)
		}
		records = append(records, tlv.Record{Type: TypeInvoicePaths, Value: hopCounts})
	}
	if inv.BlindedPays != 0 {
		records = append(records, tlv.Record{Type: TypeInvoiceBlindedPay, Value: []byte{byte(inv.BlindedPays)}})
	}
	records = append(records, inv.raw...)

	if inv.Signature != nil {
		records = append(records, tlv.Record{Type: TypeSignature, Value: inv.Signature.Serialize()})
	}

	var buf bytes.Buffer
	if err := tlv.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SigningDigest returns the Merkle root an invoice's signature commits to,
// computed over every record except the signature itself.
func (inv *Invoice) SigningDigest() ([32]byte, error) {
	raw, err := (&Invoice{
		AmountMsat: inv.AmountMsat, CreatedAt: inv.CreatedAt,
		PaymentHash: inv.PaymentHash, RelativeExpiry: inv.RelativeExpiry,
		NodeID: inv.NodeID, Paths: inv.Paths, BlindedPays: inv.BlindedPays,
		raw: inv.raw,
	}).Encode()
	if err != nil {
		return [32]byte{}, err
	}

	stream, err := tlv.DecodeStream(bytes.NewReader(raw), func(tlv.Type) bool { return true })
	if err != nil {
		return [32]byte{}, err
	}
	return MerkleRoot(stream.Records), nil
}

// EncodeBech32 returns the invoice's bech32-without-checksum wire form
// under the "lni" human-readable prefix.
func (inv *Invoice) EncodeBech32() (string, error) {
	raw, err := inv.Encode()
	if err != nil {
		return "", err
	}
	return EncodeNoChecksum("lni", raw)
}

func invoiceKnownTypes(t tlv.Type) bool {
	switch t {
	case TypeInvoiceAmount, TypeInvoiceCreatedAt, TypeInvoicePaymentHash,
		TypeInvoiceRelativeExpiry, TypeInvoiceNodeID, TypeInvoicePaths,
		TypeInvoiceBlindedPay, TypeSignature:
		return true
	default:
		return false
	}
}

// DecodeInvoice parses a raw invoice TLV stream.
func DecodeInvoice(raw []byte) (*Invoice, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), invoiceKnownTypes)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{}
	for _, rec := range stream.Records {
		switch rec.Type {
		case TypeInvoiceAmount:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			inv.AmountMsat = v
		case TypeInvoiceCreatedAt:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			inv.CreatedAt = v
		case TypeInvoicePaymentHash:
			if len(rec.Value) != 32 {
				return nil, fmt.Errorf("bolt12: invoice payment_hash has invalid length %d", len(rec.Value))
			}
			copy(inv.PaymentHash[:], rec.Value)
		case TypeInvoiceRelativeExpiry:
			v, err := decodeTU64(rec.Value)
			if err != nil {
				return nil, err
			}
			inv.RelativeExpiry = v
		case TypeInvoiceNodeID:
			pub, err := btcec.ParsePubKey(rec.Value)
			if err != nil {
				return nil, err
			}
			inv.NodeID = pub
		case TypeInvoicePaths:
			for _, hopCount := range rec.Value {
				inv.Paths = append(inv.Paths, BlindedPath{NumHops: int(hopCount)})
			}
		case TypeInvoiceBlindedPay:
			if len(rec.Value) != 1 {
				return nil, fmt.Errorf("bolt12: invoice blindedpay has invalid length %d", len(rec.Value))
			}
			inv.BlindedPays = int(rec.Value[0])
		case TypeSignature:
			sig, err := ecdsa.ParseDERSignature(rec.Value)
			if err != nil {
				return nil, err
			}
			inv.Signature = sig
		default:
			inv.raw = append(inv.raw, rec)
		}
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	return inv, nil
}

// DecodeInvoiceBech32 decodes an invoice from its bech32-without-checksum
// wire form.
func DecodeInvoiceBech32(encoded string) (*Invoice, error) {
	hrp, data, err := DecodeNoChecksum(unfold(encoded))
	if err != nil {
		return nil, err
	}
	if hrp != "lni" {
		return nil, fmt.Errorf("bolt12: unexpected human-readable prefix %q for an invoice", hrp)
	}
	return DecodeInvoice(data)
}
