package sphinx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/lncrypto"
	"github.com/lnmobile/lncore/tlv"
)

// BlindedHop is one hop inside a route_blinding path: the real node
// the path introducer chose, and the opaque encrypted_data that hop
// will decrypt with a key derived from the path's blinding chain to
// learn its own forwarding instructions.
type BlindedHop struct {
	NodeID        *btcec.PublicKey
	EncryptedData []byte
}

// BlindedPath is the result of BuildBlindedPath: the first blinding
// point the path's sender hands to the introducing node, plus every
// hop's real pubkey and encrypted payload.
type BlindedPath struct {
	FirstPathKey *btcec.PublicKey
	Hops         []BlindedHop
}

// BuildBlindedPath constructs a route_blinding path hiding nodePubKeys
// behind a chain of blinded node IDs, per BOLT #4's route blinding
// extension. payloadData[i] is the plaintext that hop i should learn
// once it decrypts its layer (typically its forwarding
// short_channel_id, fee, and CLTV delta, or, for the final hop, the
// path's terminal metadata).
func BuildBlindedPath(
	sessionKey *btcec.PrivateKey,
	nodePubKeys []*btcec.PublicKey,
	payloadData [][]byte,
) (*BlindedPath, error) {

	if len(nodePubKeys) == 0 {
		return nil, fmt.Errorf("blinded path needs at least one hop")
	}
	if len(payloadData) != len(nodePubKeys) {
		return nil, fmt.Errorf("have %d payloads for %d hops", len(payloadData), len(nodePubKeys))
	}

	path := &BlindedPath{
		FirstPathKey: sessionKey.PubKey(),
		Hops:         make([]BlindedHop, len(nodePubKeys)),
	}

	e := sessionKey
	for i, nodePub := range nodePubKeys {
		ss := lncrypto.ECDH(e, nodePub)
		rho := deriveKey("rho", ss)

		stream, err := lncrypto.ChaCha20Stream(rho, len(payloadData[i]))
		if err != nil {
			return nil, err
		}
		encrypted := make([]byte, len(payloadData[i]))
		for j := range encrypted {
			encrypted[j] = payloadData[i][j] ^ stream[j]
		}

		path.Hops[i] = BlindedHop{
			NodeID:        blindNodeID(nodePub, ss),
			EncryptedData: encrypted,
		}

		if i == len(nodePubKeys)-1 {
			break
		}

		blinding := blindingFactor(e.PubKey(), ss)
		e = tweakPrivate(e, blinding)
	}

	return path, nil
}

// blindNodeID computes the blinded node ID a path's introducer and
// intermediate hops see in place of a hop's real public key:
// B_i = H(ss_i) * N_i.
func blindNodeID(nodePub *btcec.PublicKey, sharedSecret [32]byte) *btcec.PublicKey {
	factor := lncrypto.Hash256(append([]byte("blinded_node_id"), sharedSecret[:]...))
	return tweakPublic(nodePub, factor)
}

// UnblindHopData is run by a hop that received a route_blinding
// pathKey (either the path's FirstPathKey, or the next pathKey handed
// forward by the previous hop): it recovers the shared secret for this
// hop, derives the next hop's pathKey, and decrypts this hop's
// encrypted_data.
func UnblindHopData(priv *btcec.PrivateKey, pathKey *btcec.PublicKey, encryptedData []byte) (plaintext []byte, nextPathKey *btcec.PublicKey, err error) {
	ss := lncrypto.ECDH(priv, pathKey)
	rho := deriveKey("rho", ss)

	stream, err := lncrypto.ChaCha20Stream(rho, len(encryptedData))
	if err != nil {
		return nil, nil, err
	}
	plaintext = make([]byte, len(encryptedData))
	for i := range plaintext {
		plaintext[i] = encryptedData[i] ^ stream[i]
	}

	blinding := blindingFactor(pathKey, ss)
	nextPathKey = tweakPublic(pathKey, blinding)

	return plaintext, nextPathKey, nil
}

// EncryptedDataContents is the decoded form of a blinded hop's
// encrypted_data TLV payload: its forwarding instructions plus,
// optionally, padding the path builder adds so every hop's
// encrypted_data is the same length and cannot be used to infer
// position in the path.
type EncryptedDataContents struct {
	ShortChannelID uint64
	HasSCID        bool
	AmtToForward   uint64
	HasAmt         bool
	CLTVExpiryDelta uint32
	HasCLTV        bool
	PathID         []byte
	Padding        []byte
}

const (
	typeEncryptedDataPadding tlv.Type = 1
	typeEncryptedDataSCID    tlv.Type = 2
	typeEncryptedDataAmt     tlv.Type = 4
	typeEncryptedDataCLTV    tlv.Type = 6
	typeEncryptedDataPathID  tlv.Type = 6513 // odd, per-path-purpose private use
)

// EncodeEncryptedDataContents serializes the plaintext carried inside
// one hop's encrypted_data, before rho-stream encryption.
func EncodeEncryptedDataContents(c *EncryptedDataContents) ([]byte, error) {
	var records []tlv.Record

	if len(c.Padding) > 0 {
		records = append(records, tlv.Record{Type: typeEncryptedDataPadding, Value: c.Padding})
	}
	if c.HasSCID {
		scid := make([]byte, 8)
		for i := 0; i < 8; i++ {
			scid[7-i] = byte(c.ShortChannelID >> (8 * i))
		}
		records = append(records, tlv.Record{Type: typeEncryptedDataSCID, Value: scid})
	}
	if c.HasAmt {
		var amtBuf bytes.Buffer
		if err := tlv.WriteTU64(&amtBuf, c.AmtToForward); err != nil {
			return nil, err
		}
		records = append(records, tlv.Record{Type: typeEncryptedDataAmt, Value: amtBuf.Bytes()})
	}
	if c.HasCLTV {
		var cltvBuf bytes.Buffer
		if err := tlv.WriteTU32(&cltvBuf, c.CLTVExpiryDelta); err != nil {
			return nil, err
		}
		records = append(records, tlv.Record{Type: typeEncryptedDataCLTV, Value: cltvBuf.Bytes()})
	}
	if len(c.PathID) > 0 {
		records = append(records, tlv.Record{Type: typeEncryptedDataPathID, Value: c.PathID})
	}

	var buf bytes.Buffer
	if err := tlv.EncodeStream(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encryptedDataKnownTypes(t tlv.Type) bool {
	switch t {
	case typeEncryptedDataPadding, typeEncryptedDataSCID, typeEncryptedDataAmt, typeEncryptedDataCLTV:
		return true
	default:
		return false
	}
}

// DecodeEncryptedDataContents parses the plaintext UnblindHopData
// returns.
func DecodeEncryptedDataContents(raw []byte) (*EncryptedDataContents, error) {
	stream, err := tlv.DecodeStream(bytes.NewReader(raw), encryptedDataKnownTypes)
	if err != nil {
		return nil, fmt.Errorf("decoding encrypted_data: %w", err)
	}

	c := &EncryptedDataContents{}

	if val, ok := stream.Get(typeEncryptedDataPadding); ok {
		c.Padding = val
	}
	if val, ok := stream.Get(typeEncryptedDataSCID); ok {
		if len(val) != 8 {
			return nil, fmt.Errorf("short_channel_id must be 8 bytes, got %d", len(val))
		}
		var scid uint64
		for _, b := range val {
			scid = (scid << 8) | uint64(b)
		}
		c.ShortChannelID = scid
		c.HasSCID = true
	}
	if val, ok := stream.Get(typeEncryptedDataAmt); ok {
		amt, err := tlv.ReadTU64(bytes.NewReader(val), len(val))
		if err != nil {
			return nil, fmt.Errorf("amt_to_forward: %w", err)
		}
		c.AmtToForward = amt
		c.HasAmt = true
	}
	if val, ok := stream.Get(typeEncryptedDataCLTV); ok {
		cltv, err := tlv.ReadTU32(bytes.NewReader(val), len(val))
		if err != nil {
			return nil, fmt.Errorf("cltv_expiry_delta: %w", err)
		}
		c.CLTVExpiryDelta = cltv
		c.HasCLTV = true
	}
	if val, ok := stream.Get(typeEncryptedDataPathID); ok {
		c.PathID = val
	}

	return c, nil
}
