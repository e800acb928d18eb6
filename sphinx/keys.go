package sphinx

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lnmobile/lncore/lncrypto"
)

// hopKeys collects the ephemeral key, shared secret, and derived stream
// keys used to build or peel one hop's onion layer.
type hopKeys struct {
	ephemeralPub *btcec.PublicKey
	sharedSecret [32]byte
	rho          [32]byte
	mu           [32]byte
	um           [32]byte
}

// generateHopKeys walks the blinding-factor chain described in spec.md
// §4.3: starting from the session key, each hop's shared secret is
// computed via ECDH against that hop's pubkey, and the next hop's
// ephemeral keypair is derived by multiplying the current one by a
// blinding factor that mixes in the shared secret just computed. This
// keeps every hop's ephemeral key independent so intermediate nodes
// cannot correlate packets for the same payment across hops.
func generateHopKeys(sessionKey *btcec.PrivateKey, hopPubKeys []*btcec.PublicKey) ([]hopKeys, error) {
	n := len(hopPubKeys)
	keys := make([]hopKeys, n)

	ephemeralPriv := sessionKey
	ephemeralPub := sessionKey.PubKey()

	for i := 0; i < n; i++ {
		sharedSecret := lncrypto.ECDH(ephemeralPriv, hopPubKeys[i])

		keys[i] = hopKeys{
			ephemeralPub: ephemeralPub,
			sharedSecret: sharedSecret,
			rho:          deriveKey("rho", sharedSecret),
			mu:           deriveKey("mu", sharedSecret),
			um:           deriveKey("um", sharedSecret),
		}

		if i == n-1 {
			break
		}

		blindingFactor := blindingFactor(ephemeralPub, sharedSecret)
		ephemeralPriv = tweakPrivate(ephemeralPriv, blindingFactor)
		ephemeralPub = tweakPublic(ephemeralPub, blindingFactor)
	}

	return keys, nil
}

// blindingFactor computes sha256(ephemeralPub || sharedSecret), the
// scalar used to advance the ephemeral keypair to the next hop.
func blindingFactor(ephemeralPub *btcec.PublicKey, sharedSecret [32]byte) [32]byte {
	data := make([]byte, 0, 33+32)
	data = append(data, ephemeralPub.SerializeCompressed()...)
	data = append(data, sharedSecret[:]...)
	return lncrypto.Hash256(data)
}

// tweakPrivate returns priv multiplied by the scalar factor, mod the
// curve order.
func tweakPrivate(priv *btcec.PrivateKey, factor [32]byte) *btcec.PrivateKey {
	var factorScalar btcec.ModNScalar
	factorScalar.SetBytes(&factor)

	newScalar := priv.Key
	newScalar.Mul(&factorScalar)

	return &btcec.PrivateKey{Key: newScalar}
}

// tweakPublic returns pub multiplied by the scalar factor, mod the curve
// order.
func tweakPublic(pub *btcec.PublicKey, factor [32]byte) *btcec.PublicKey {
	var factorScalar btcec.ModNScalar
	factorScalar.SetBytes(&factor)

	var point, result btcec.JacobianPoint
	pub.AsJacobian(&point)
	btcec.ScalarMultNonConst(&factorScalar, &point, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}
