package bolt12

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lnmobile/lncore/tlv"
)

func TestMerkleRootDeterministicAndOrderIndependent(t *testing.T) {
	records := []tlv.Record{
		{Type: 2, Value: []byte{0x01}},
		{Type: 8, Value: []byte{0x02, 0x03}},
		{Type: 10, Value: []byte("a description")},
	}

	root1 := MerkleRoot(records)

	shuffled := []tlv.Record{records[2], records[0], records[1]}
	root2 := MerkleRoot(shuffled)

	require.Equal(t, root1, root2)
}

func TestMerkleRootChangesWithContent(t *testing.T) {
	a := MerkleRoot([]tlv.Record{{Type: 2, Value: []byte{0x01}}})
	b := MerkleRoot([]tlv.Record{{Type: 2, Value: []byte{0x02}}})
	require.NotEqual(t, a, b)
}

func TestBech32NoChecksumRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	encoded, err := EncodeNoChecksum("lno", payload)
	require.NoError(t, err)
	require.True(t, len(encoded) > len("lno1"))

	hrp, data, err := DecodeNoChecksum(encoded)
	require.NoError(t, err)
	require.Equal(t, "lno", hrp)
	require.Equal(t, payload, data)
}

func TestUnfoldStripsLineContinuations(t *testing.T) {
	folded := "lno1abc+\ndef+\n ghi"
	require.Equal(t, "lno1abcdefghi", unfold(folded))
}

func TestOfferEncodeDecodeRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offer := &Offer{
		Description: "a test offer",
		AmountMsat:  50_000,
		IssuerID:    priv.PubKey(),
		QuantityMax: 10,
	}

	raw, err := offer.Encode()
	require.NoError(t, err)

	decoded, err := DecodeOffer(raw)
	require.NoError(t, err)
	require.Equal(t, offer.Description, decoded.Description)
	require.Equal(t, offer.AmountMsat, decoded.AmountMsat)
	require.Equal(t, offer.QuantityMax, decoded.QuantityMax)
	require.True(t, offer.IssuerID.IsEqual(decoded.IssuerID))
}

func TestOfferValidateRejectsMissingDescriptionAndIssuer(t *testing.T) {
	offer := &Offer{AmountMsat: 1000}
	require.ErrorIs(t, offer.Validate(), ErrOfferMissingDescription)
}

func TestOfferValidateRejectsEmptyBlindedPath(t *testing.T) {
	offer := &Offer{Description: "x", Paths: []BlindedPath{{NumHops: 0}}}
	require.ErrorIs(t, offer.Validate(), ErrOfferEmptyPath)
}

func TestInvoiceRequestValidateRequiresMetadataAndPayerID(t *testing.T) {
	req := &InvoiceRequest{}
	require.ErrorIs(t, req.Validate(nil), ErrInvreqMissingMetadata)

	req.Metadata = []byte{0x01}
	require.ErrorIs(t, req.Validate(nil), ErrInvreqMissingPayerID)
}

func TestInvoiceRequestRefundRequiresDescriptionAndAmount(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	req := &InvoiceRequest{
		Metadata: []byte{0x01},
		PayerID:  priv.PubKey(),
		IsRefund: true,
	}
	require.ErrorIs(t, req.Validate(nil), ErrInvreqRefundIncomplete)

	req.OfferDescription = "refund for order 42"
	req.AmountMsat = 1000
	require.NoError(t, req.Validate(nil))
	require.Equal(t, FlowMerchantPaysUser, req.Flow())
}

func TestValidateBIP353Name(t *testing.T) {
	require.NoError(t, ValidateBIP353Name("alice-wallet"))
	require.Error(t, ValidateBIP353Name("-alice"))
	require.Error(t, ValidateBIP353Name("Alice"))
	require.Error(t, ValidateBIP353Name(""))
}

func TestInvoiceValidateRequiresCoreFields(t *testing.T) {
	inv := &Invoice{}
	require.ErrorIs(t, inv.Validate(), ErrInvoiceMissingFields)
}

func TestInvoiceSigningDigestNonZero(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	inv := &Invoice{
		AmountMsat:  100_000,
		CreatedAt:   1_700_000_000,
		NodeID:      priv.PubKey(),
		Paths:       []BlindedPath{{NumHops: 2}},
		BlindedPays: 1,
	}
	inv.PaymentHash[0] = 0xab

	digest, err := inv.SigningDigest()
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, digest)
}
