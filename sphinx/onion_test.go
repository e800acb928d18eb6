package sphinx

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func buildRoute(t *testing.T, numHops int) ([]*btcec.PrivateKey, []*btcec.PublicKey, *btcec.PrivateKey) {
	t.Helper()

	hopPrivs := make([]*btcec.PrivateKey, numHops)
	hopPubs := make([]*btcec.PublicKey, numHops)
	for i := 0; i < numHops; i++ {
		hopPrivs[i] = genKey(t)
		hopPubs[i] = hopPrivs[i].PubKey()
	}

	return hopPrivs, hopPubs, genKey(t)
}

func testPayloads(numHops int) []HopPayloadEncoder {
	payloads := make([]HopPayloadEncoder, numHops)
	for i := 0; i < numHops; i++ {
		if i == numHops-1 {
			payloads[i] = &HopPayload{
				AmtToForward: 1000,
				OutgoingCLTV: 144,
				PaymentData: &PaymentData{
					TotalMsat: 1000,
				},
			}
			continue
		}
		payloads[i] = &HopPayload{
			AmtToForward: uint64(1000 + i),
			OutgoingCLTV: uint32(144 + i),
			ShortChannelID: uint64(100 + i),
			HasSCID:        true,
		}
	}
	return payloads
}

// TestPacketSize checks that every constructed onion packet is exactly
// the fixed wire size regardless of hop count, so no hop can learn
// anything about route length from packet size.
func TestPacketSize(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		_, hopPubs, sessionKey := buildRoute(t, n)
		pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(n), []byte("assoc"))
		require.NoError(t, err)
		require.Len(t, pkt.Bytes(), PacketSize)
	}
}

// TestRoundTripAllHopCounts builds a route of every length from 1 to
// MaxHops and peels it hop by hop, checking each hop recovers its own
// payload and that the final hop is correctly identified.
func TestRoundTripAllHopCounts(t *testing.T) {
	for n := 1; n <= MaxHops; n++ {
		hopPrivs, hopPubs, sessionKey := buildRoute(t, n)
		assocData := []byte("payment-hash-bytes-xx")

		pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(n), assocData)
		require.NoError(t, err, "n=%d", n)

		// round trip through the wire encoding too
		encoded := pkt.Bytes()
		decoded, err := DecodePacket(bytes.NewReader(encoded))
		require.NoError(t, err)

		current := decoded
		for i := 0; i < n; i++ {
			result, err := Peel(current, hopPrivs[i], assocData)
			require.NoError(t, err, "n=%d hop=%d", n, i)

			payload, err := DecodeHopPayload(result.Payload)
			require.NoError(t, err, "n=%d hop=%d", n, i)

			if i == n-1 {
				require.True(t, result.IsFinalHop, "n=%d hop=%d", n, i)
				require.True(t, payload.IsFinalHop())
				require.NotNil(t, payload.PaymentData)
			} else {
				require.False(t, result.IsFinalHop, "n=%d hop=%d", n, i)
				require.False(t, payload.IsFinalHop())
				require.True(t, payload.HasSCID)
				require.Equal(t, uint64(100+i), payload.ShortChannelID)
				current = result.NextPacket
			}
		}
	}
}

// TestSingleHopPayment exercises the simplest possible onion: a direct
// payment with one hop, matching the spec's single-hop scenario.
func TestSingleHopPayment(t *testing.T) {
	hopPrivs, hopPubs, sessionKey := buildRoute(t, 1)
	assocData := []byte("hash")

	pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(1), assocData)
	require.NoError(t, err)

	result, err := Peel(pkt, hopPrivs[0], assocData)
	require.NoError(t, err)
	require.True(t, result.IsFinalHop)
	require.Nil(t, result.NextPacket)
}

// TestWrongKeyFailsHMAC checks that peeling with the wrong private key
// is rejected at the HMAC check, before any payload bytes are
// interpreted.
func TestWrongKeyFailsHMAC(t *testing.T) {
	_, hopPubs, sessionKey := buildRoute(t, 3)
	assocData := []byte("hash")

	pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(3), assocData)
	require.NoError(t, err)

	wrongKey := genKey(t)
	_, err = Peel(pkt, wrongKey, assocData)
	require.ErrorIs(t, err, ErrInvalidOnionHMAC)
}

// TestWrongAssocDataFailsHMAC checks that associated data is bound into
// the packet's integrity check, so an onion built for one payment hash
// cannot be replayed against another.
func TestWrongAssocDataFailsHMAC(t *testing.T) {
	hopPrivs, hopPubs, sessionKey := buildRoute(t, 1)

	pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(1), []byte("hash-a"))
	require.NoError(t, err)

	_, err = Peel(pkt, hopPrivs[0], []byte("hash-b"))
	require.ErrorIs(t, err, ErrInvalidOnionHMAC)
}

// TestFillerEmptyOnlyForSingleHop checks the spec's invariant that
// filler generation produces no bytes (and is therefore a no-op) if
// and only if the route has exactly one hop.
func TestFillerEmptyOnlyForSingleHop(t *testing.T) {
	single := generateFiller([]int{40}, [][32]byte{{1}})
	require.Nil(t, single)

	multi := generateFiller([]int{40, 40}, [][32]byte{{1}, {2}})
	require.NotEmpty(t, multi)
}

// TestDecodePacketRejectsBadVersion ensures the version byte is
// checked before any other parsing happens.
func TestDecodePacketRejectsBadVersion(t *testing.T) {
	_, hopPubs, sessionKey := buildRoute(t, 1)
	pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(1), nil)
	require.NoError(t, err)

	raw := pkt.Bytes()
	raw[0] = 1

	_, err = DecodePacket(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrInvalidOnionVersion)
}

// TestFailureWrapUnwrapIdentifiesOrigin checks that an erring hop's
// failure message, wrapped then relayed back through every preceding
// hop's shared secret, is correctly attributed to the hop that
// produced it.
func TestFailureWrapUnwrapIdentifiesOrigin(t *testing.T) {
	numHops := 4
	hopPrivs, hopPubs, sessionKey := buildRoute(t, numHops)
	assocData := []byte("hash")

	pkt, err := NewOnionPacket(hopPubs, sessionKey, testPayloads(numHops), assocData)
	require.NoError(t, err)

	// Walk the packet forward collecting each hop's shared secret, the
	// same way a real forwarding node would derive it as the packet
	// passes through.
	sharedSecrets := make([][32]byte, numHops)
	current := pkt
	for i := 0; i < numHops; i++ {
		result, err := Peel(current, hopPrivs[i], assocData)
		require.NoError(t, err)
		sharedSecrets[i] = result.SharedSecret
		if !result.IsFinalHop {
			current = result.NextPacket
		}
	}

	erringHop := 2
	failureMsg := EncodeFailureMessage(FailureMessage{
		Code: CodeTemporaryChannelFail,
		Data: []byte{0x00, 0x02},
	})

	blob, err := WrapFailure(sharedSecrets[erringHop], failureMsg)
	require.NoError(t, err)

	// Each hop from erringHop-1 down to 0 relays with one more
	// obfuscation layer.
	for i := erringHop - 1; i >= 0; i-- {
		blob = RelayFailure(sharedSecrets[i], blob)
	}

	origin, decoded, err := UnwrapFailure(sharedSecrets, blob)
	require.NoError(t, err)
	require.Equal(t, erringHop, origin)
	require.Equal(t, failureMsg, decoded)
}

// TestFailureHMACMismatchOnGarbage checks that a blob which never
// passed through any of the sender's shared secrets is rejected
// outright instead of silently attributed to some hop.
func TestFailureHMACMismatchOnGarbage(t *testing.T) {
	garbage := make([]byte, HMACSize+FailureMessageSize)
	_, err := rand.Read(garbage)
	require.NoError(t, err)

	_, _, err = UnwrapFailure([][32]byte{{1}, {2}}, garbage)
	require.ErrorIs(t, err, ErrFailureHMACMismatch)
}

// TestBlindedPathRoundTrip checks that a blinded path's hops can each
// recover their own encrypted_data and advance the path key to the
// next hop, without ever learning a later hop's shared secret.
func TestBlindedPathRoundTrip(t *testing.T) {
	numHops := 3
	hopPrivs, hopPubs, sessionKey := buildRoute(t, numHops)

	payloads := make([][]byte, numHops)
	for i := range payloads {
		contents := &EncryptedDataContents{
			ShortChannelID: uint64(200 + i),
			HasSCID:        true,
			CLTVExpiryDelta: 40,
			HasCLTV:        true,
		}
		raw, err := EncodeEncryptedDataContents(contents)
		require.NoError(t, err)
		payloads[i] = raw
	}

	path, err := BuildBlindedPath(sessionKey, hopPubs, payloads)
	require.NoError(t, err)
	require.Len(t, path.Hops, numHops)

	pathKey := path.FirstPathKey
	for i := 0; i < numHops; i++ {
		plaintext, nextKey, err := UnblindHopData(hopPrivs[i], pathKey, path.Hops[i].EncryptedData)
		require.NoError(t, err)

		contents, err := DecodeEncryptedDataContents(plaintext)
		require.NoError(t, err)
		require.True(t, contents.HasSCID)
		require.Equal(t, uint64(200+i), contents.ShortChannelID)

		pathKey = nextKey
	}
}
