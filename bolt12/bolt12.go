// Package bolt12 implements the Offer/InvoiceRequest/Invoice TLV streams
// BOLT #12 uses to negotiate a payment, their Merkle-root signing digest,
// and their bech32-without-checksum wire encoding.
package bolt12

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/lnmobile/lncore/tlv"
)

// TLV types shared across the three message kinds (BOLT #12 §"TLV Fields").
const (
	TypeOfferChains          tlv.Type = 2
	TypeOfferAmount          tlv.Type = 8
	TypeOfferDescription     tlv.Type = 10
	TypeOfferIssuerID        tlv.Type = 24
	TypeOfferPaths           tlv.Type = 16
	TypeOfferIssuer          tlv.Type = 20
	TypeOfferQuantityMax     tlv.Type = 22
	TypeOfferAbsoluteExpiry  tlv.Type = 6
	TypeOfferCurrency        tlv.Type = 4

	TypeInvreqMetadata tlv.Type = 0
	TypeInvreqPayerID  tlv.Type = 88
	TypeInvreqAmount   tlv.Type = 8
	TypeInvreqQuantity tlv.Type = 32

	TypeInvoicePaths          tlv.Type = 160
	TypeInvoiceBlindedPay     tlv.Type = 162
	TypeInvoicePaymentHash    tlv.Type = 168
	TypeInvoiceAmount         tlv.Type = 170
	TypeInvoiceCreatedAt      tlv.Type = 164
	TypeInvoiceRelativeExpiry tlv.Type = 166
	TypeInvoiceNodeID         tlv.Type = 176

	TypeSignature tlv.Type = 240
)

// DefaultRelativeExpirySeconds is the invoice's default relative_expiry
// when the field is absent.
const DefaultRelativeExpirySeconds = 7200

// PaymentFlow classifies which side initiates payment for a negotiation.
type PaymentFlow uint8

const (
	// FlowUserPaysMerchant is the ordinary purchase flow: the invoice
	// request carries an issuer_id.
	FlowUserPaysMerchant PaymentFlow = iota
	// FlowMerchantPaysUser is a refund: no issuer_id on the request.
	FlowMerchantPaysUser
)

// merkleLeaf hashes one TLV record the way BOLT #12 defines a Merkle leaf:
// SHA256(SHA256("LnLeaf") || SHA256("LnLeaf") || type_bigsize ||
// length_bigsize || value), the tagged-hash form with the tag hash written
// twice.
func merkleLeaf(rec tlv.Record) [32]byte {
	tagHash := sha256.Sum256([]byte("LnLeaf"))

	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])

	var buf []byte
	buf = appendBigSize(buf, uint64(rec.Type))
	buf = appendBigSize(buf, uint64(len(rec.Value)))
	buf = append(buf, rec.Value...)
	h.Write(buf)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func appendBigSize(dst []byte, v uint64) []byte {
	switch {
	case v < 0xfd:
		return append(dst, byte(v))
	case v <= 0xffff:
		return append(dst, 0xfd, byte(v>>8), byte(v))
	case v <= 0xffffffff:
		return append(dst, 0xfe, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(dst, 0xff,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// combineBranch implements the pair-combine step: SHA256(tag || tag ||
// lexicographically-smaller || lexicographically-larger).
func combineBranch(a, b [32]byte) [32]byte {
	tagHash := sha256.Sum256([]byte("LnBranch"))

	first, second := a, b
	if bytesGreater(first[:], second[:]) {
		first, second = second, first
	}

	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	h.Write(first[:])
	h.Write(second[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func bytesGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// MerkleRoot computes the BOLT #12 Merkle root over a TLV stream's
// records, used as the digest the signature field signs.
func MerkleRoot(records []tlv.Record) [32]byte {
	if len(records) == 0 {
		return sha256.Sum256(nil)
	}

	sorted := make([]tlv.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })

	level := make([][32]byte, len(sorted))
	for i, rec := range sorted {
		level[i] = merkleLeaf(rec)
	}

	for len(level) > 1 {
		var next [][32]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, combineBranch(level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}

// ErrInvalidBIP353Name is returned when a BIP-353 human-readable name
// contains a character outside the allowed whitelist.
var ErrInvalidBIP353Name = fmt.Errorf("bolt12: invalid BIP-353 name character")

// ValidateBIP353Name checks name against BIP-353's allowed character set:
// lowercase letters, digits, and hyphens, not starting or ending with a
// hyphen.
func ValidateBIP353Name(name string) error {
	if name == "" {
		return ErrInvalidBIP353Name
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return ErrInvalidBIP353Name
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return ErrInvalidBIP353Name
		}
	}
	return nil
}
