// Package lncrypto collects the small set of cryptographic primitives the
// Sphinx onion engine builds on: ECDH over
// secp256k1, HMAC-SHA256 key derivation, SHA-256, and the ChaCha20 stream
// cipher. Signing itself is left to an external Signer collaborator (the
// core never holds raw channel/node keys); this package only wraps the
// math the core is allowed to do itself.
package lncrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
)

// ECDH computes the shared secret sha256(serializeCompressed(priv * pub)),
// the convention used throughout BOLT #4 Sphinx key derivation.
func ECDH(priv *btcec.PrivateKey, pub *btcec.PublicKey) [32]byte {
	var point btcec.JacobianPoint
	pub.AsJacobian(&point)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()

	sharedPub := btcec.NewPublicKey(&result.X, &result.Y)
	return sha256.Sum256(sharedPub.SerializeCompressed())
}

// HMACSHA256 computes HMAC-SHA256(key, data). Used to derive the "rho",
// "mu", "um", and "pad" per-hop keys from a shared secret, and to compute
// the Sphinx packet's integrity HMAC.
func HMACSHA256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Hash256 computes plain SHA-256(data).
func Hash256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ChaCha20Stream returns length pseudorandom bytes produced by ChaCha20
// keyed by key with an all-zero nonce, the convention Sphinx uses for its
// "rho"/"mu"/"pad" stream ciphers (the key itself, being a one-time HMAC
// output, supplies all of the uniqueness).
func ChaCha20Stream(key [32]byte, length int) ([]byte, error) {
	var nonce [chacha20.NonceSize]byte

	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, length)
	cipher.XORKeyStream(out, out)
	return out, nil
}

// ConstantTimeCompare reports whether a and b are equal, in time
// independent of their contents, so that an attacker probing the Sphinx
// HMAC check cannot learn anything from response timing.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Signer is the external collaborator that holds channel and node private
// keys on the core's behalf. The core never sees raw key material: every
// signature and every ECDH against a key it doesn't itself generate goes
// through this interface.
type Signer interface {
	// Sign returns a signature over msg under the key identified by
	// keyID.
	Sign(msg []byte, keyID uint32) ([]byte, error)

	// ECDH returns sha256(serializeCompressed(priv(keyID) * point)).
	ECDH(point *btcec.PublicKey, keyID uint32) ([32]byte, error)
}
