package sphinx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/lncrypto"
	"github.com/lnmobile/lncore/tlv"
)

// PeelResult is what a hop learns from peeling one onion layer off a
// packet.
type PeelResult struct {
	// Payload is this hop's raw TLV payload bytes.
	Payload []byte

	// IsFinalHop is true when this hop's next-HMAC field was all-zero,
	// meaning there is no further packet to forward.
	IsFinalHop bool

	// NextPacket is the packet to forward to the next hop. Nil when
	// IsFinalHop is true.
	NextPacket *Packet

	// SharedSecret is exposed so the caller can wrap/unwrap onion
	// error messages (see failure.go) without recomputing ECDH.
	SharedSecret [32]byte
}

// Peel decrypts one layer of pkt using the recipient's private key,
// verifying its HMAC first so a corrupted or adversarial packet is
// rejected before any of its content is interpreted.
func Peel(pkt *Packet, priv *btcec.PrivateKey, assocData []byte) (*PeelResult, error) {
	sharedSecret := lncrypto.ECDH(priv, pkt.EphemeralKey)

	mu := deriveKey("mu", sharedSecret)
	rho := deriveKey("rho", sharedSecret)

	computed := lncrypto.HMACSHA256(mu[:], append(pkt.HopPayloads[:], assocData...))
	if !lncrypto.ConstantTimeCompare(computed[:], pkt.HMAC[:]) {
		return nil, ErrInvalidOnionHMAC
	}

	extended := make([]byte, fillerScratchSize)
	copy(extended, pkt.HopPayloads[:])

	stream, err := lncrypto.ChaCha20Stream(rho, fillerScratchSize)
	if err != nil {
		return nil, err
	}
	for i := range extended {
		extended[i] ^= stream[i]
	}

	r := bytes.NewReader(extended)
	length, lengthBytes, err := tlv.ReadBigSize(r)
	if err != nil {
		return nil, fmt.Errorf("malformed hop payload length: %w", err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("malformed hop payload: %w", err)
	}

	var nextHMAC [HMACSize]byte
	if _, err := io.ReadFull(r, nextHMAC[:]); err != nil {
		return nil, fmt.Errorf("malformed hop hmac: %w", err)
	}

	hopDataLen := lengthBytes + int(length) + HMACSize
	if hopDataLen > HopPayloadsSize {
		return nil, fmt.Errorf("hop payload exceeds packet size")
	}

	result := &PeelResult{
		Payload:      payload,
		SharedSecret: sharedSecret,
	}

	var zeroHMAC [HMACSize]byte
	if nextHMAC == zeroHMAC {
		result.IsFinalHop = true
		return result, nil
	}

	blinding := blindingFactor(pkt.EphemeralKey, sharedSecret)
	nextPkt := &Packet{
		Version:      Version,
		EphemeralKey: tweakPublic(pkt.EphemeralKey, blinding),
		HMAC:         nextHMAC,
	}
	copy(nextPkt.HopPayloads[:], extended[hopDataLen:hopDataLen+HopPayloadsSize])

	result.NextPacket = nextPkt
	return result, nil
}
