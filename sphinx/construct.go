package sphinx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/lncrypto"
	"github.com/lnmobile/lncore/tlv"
)

// HopPayloadEncoder is satisfied by any type that knows how to serialize
// itself as the per-hop TLV payload carried inside one onion layer.
type HopPayloadEncoder interface {
	EncodeTLV() ([]byte, error)
}

// NewOnionPacket builds a Sphinx packet that routes through hopPubKeys in
// order, carrying payloads[i] as the i-th hop's encrypted layer.
// sessionKey is the one-time 32-byte secret the sender generates per
// payment attempt; assocData is bound into every hop's HMAC (typically the
// payment hash) so the packet cannot be replayed against a different
// payment.
func NewOnionPacket(
	hopPubKeys []*btcec.PublicKey,
	sessionKey *btcec.PrivateKey,
	payloads []HopPayloadEncoder,
	assocData []byte,
) (*Packet, error) {

	numHops := len(hopPubKeys)
	if numHops == 0 {
		return nil, fmt.Errorf("route must have at least one hop")
	}
	if numHops > MaxHops {
		return nil, fmt.Errorf("route has %d hops, max is %d", numHops, MaxHops)
	}
	if len(payloads) != numHops {
		return nil, fmt.Errorf("have %d payloads for %d hops", len(payloads), numHops)
	}

	hopKeySet, err := generateHopKeys(sessionKey, hopPubKeys)
	if err != nil {
		return nil, err
	}

	rawPayloads := make([][]byte, numHops)
	hopDataLens := make([]int, numHops)
	for i, p := range payloads {
		raw, err := p.EncodeTLV()
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		rawPayloads[i] = raw
		hopDataLens[i] = tlv.BigSizeLen(uint64(len(raw))) + len(raw) + HMACSize
	}

	rhoKeys := make([][32]byte, numHops)
	for i := range hopKeySet {
		rhoKeys[i] = hopKeySet[i].rho
	}
	filler := generateFiller(hopDataLens, rhoKeys)

	// sessionSecret plays the role of the spec's "s": the pad stream is
	// keyed off the session key itself, not any per-hop secret, so that
	// pre-fill padding carries no information about the route.
	var sessionSecret [32]byte
	copy(sessionSecret[:], sessionKey.Serialize())
	padKey := deriveKey("pad", sessionSecret)

	buffer, err := lncrypto.ChaCha20Stream(padKey, HopPayloadsSize)
	if err != nil {
		return nil, err
	}

	var nextHMAC [HMACSize]byte

	for i := numHops - 1; i >= 0; i-- {
		hopData, err := encodeHopData(rawPayloads[i], nextHMAC)
		if err != nil {
			return nil, err
		}
		shift := len(hopData)
		if shift > HopPayloadsSize {
			return nil, fmt.Errorf("hop %d payload too large for packet", i)
		}

		newBuffer := make([]byte, HopPayloadsSize)
		copy(newBuffer[shift:], buffer[:HopPayloadsSize-shift])
		copy(newBuffer[:shift], hopData)
		buffer = newBuffer

		stream, err := lncrypto.ChaCha20Stream(rhoKeys[i], HopPayloadsSize)
		if err != nil {
			return nil, err
		}
		for j := range buffer {
			buffer[j] ^= stream[j]
		}

		if i == numHops-1 && len(filler) > 0 {
			copy(buffer[HopPayloadsSize-len(filler):], filler)
		}

		nextHMAC = lncrypto.HMACSHA256(hopKeySet[i].mu[:], append(buffer, assocData...))
	}

	pkt := &Packet{
		Version:      Version,
		EphemeralKey: hopKeySet[0].ephemeralPub,
		HMAC:         nextHMAC,
	}
	copy(pkt.HopPayloads[:], buffer)

	return pkt, nil
}

// encodeHopData serializes BigSize(length) || payload || hmac, the unit
// that gets spliced into the packet's hop-payloads buffer at each
// construction step.
func encodeHopData(payload []byte, hmac [HMACSize]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := tlv.WriteBigSize(&buf, uint64(len(payload))); err != nil {
		return nil, err
	}
	buf.Write(payload)
	buf.Write(hmac[:])
	return buf.Bytes(), nil
}
