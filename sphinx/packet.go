// Package sphinx implements the fixed-size layered-encryption onion packet
// used to route both HTLC payment attempts and onion messages through
// intermediate hops that never learn the full route. It is grounded on the
// same per-hop key-derivation style the rest of this module's crypto uses
// (see lncrypto), adapted to the BOLT #4 "variable-length onion" format:
// each hop's payload is a TLV stream rather than a fixed-size record.
package sphinx

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/lncrypto"
)

const (
	// Version is the only onion packet version this module understands.
	Version = 0

	// HopPayloadsSize is the fixed size, in bytes, of the onion packet's
	// encrypted hop-payloads region.
	HopPayloadsSize = 1300

	// HMACSize is the size, in bytes, of the integrity HMAC carried by
	// the packet and by every per-hop layer inside it.
	HMACSize = 32

	// PacketSize is the total wire size of an onion packet: version (1)
	// + compressed ephemeral pubkey (33) + hop payloads (1300) + HMAC
	// (32).
	PacketSize = 1 + 33 + HopPayloadsSize + HMACSize

	// MaxHops is the maximum number of hops a route may carry.
	MaxHops = 20
)

// ErrInvalidOnionVersion is returned when a decoded packet's version byte
// is not Version.
var ErrInvalidOnionVersion = errors.New("invalid onion packet version")

// ErrInvalidOnionHMAC is returned by Peel when the packet's HMAC does not
// match what the peeling party recomputes.
var ErrInvalidOnionHMAC = errors.New("invalid onion packet hmac")

// Packet is a fully-formed, fixed-size Sphinx onion packet as it travels
// the wire between hops.
type Packet struct {
	// Version is always Version (0) for packets this module produces.
	Version byte

	// EphemeralKey is the per-hop ephemeral public key used to derive
	// this layer's shared secret via ECDH with the recipient's private
	// key.
	EphemeralKey *btcec.PublicKey

	// HopPayloads is the 1300-byte encrypted region containing this
	// hop's payload and every subsequent hop's, recursively encrypted.
	HopPayloads [HopPayloadsSize]byte

	// HMAC authenticates HopPayloads (concatenated with the
	// associated data) under this layer's "mu" key.
	HMAC [HMACSize]byte
}

// Encode serializes the packet to its canonical 1366-byte wire form.
func (p *Packet) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{p.Version}); err != nil {
		return err
	}
	if _, err := w.Write(p.EphemeralKey.SerializeCompressed()); err != nil {
		return err
	}
	if _, err := w.Write(p.HopPayloads[:]); err != nil {
		return err
	}
	if _, err := w.Write(p.HMAC[:]); err != nil {
		return err
	}
	return nil
}

// Bytes returns the packet's canonical 1366-byte wire encoding.
func (p *Packet) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	_ = p.Encode(&buf)
	return buf.Bytes()
}

// DecodePacket parses a 1366-byte onion packet.
func DecodePacket(r io.Reader) (*Packet, error) {
	var versionByte [1]byte
	if _, err := io.ReadFull(r, versionByte[:]); err != nil {
		return nil, err
	}
	if versionByte[0] != Version {
		return nil, ErrInvalidOnionVersion
	}

	var rawKey [33]byte
	if _, err := io.ReadFull(r, rawKey[:]); err != nil {
		return nil, err
	}
	ephemeralKey, err := btcec.ParsePubKey(rawKey[:])
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral key: %w", err)
	}

	pkt := &Packet{
		Version:      versionByte[0],
		EphemeralKey: ephemeralKey,
	}
	if _, err := io.ReadFull(r, pkt.HopPayloads[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, pkt.HMAC[:]); err != nil {
		return nil, err
	}

	return pkt, nil
}

// deriveKey implements the spec's hkdf_like(label, secret) =
// hmac_sha256(label_bytes, secret) construction used for every per-hop
// key: "rho" (stream cipher), "mu" (packet MAC), "um" (error MAC), and
// "pad" (pre-fill padding).
func deriveKey(label string, secret [32]byte) [32]byte {
	return lncrypto.HMACSHA256([]byte(label), secret[:])
}
