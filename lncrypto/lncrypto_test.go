package lncrypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestECDHSymmetric(t *testing.T) {
	privA, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	privB, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	ssA := ECDH(privA, privB.PubKey())
	ssB := ECDH(privB, privA.PubKey())
	require.Equal(t, ssA, ssB)
}

func TestConstantTimeCompare(t *testing.T) {
	require.True(t, ConstantTimeCompare([]byte("abc"), []byte("abc")))
	require.False(t, ConstantTimeCompare([]byte("abc"), []byte("abd")))
	require.False(t, ConstantTimeCompare([]byte("abc"), []byte("ab")))
}

func TestChaCha20StreamDeterministic(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	s1, err := ChaCha20Stream(key, 64)
	require.NoError(t, err)
	s2, err := ChaCha20Stream(key, 64)
	require.NoError(t, err)

	require.Equal(t, s1, s2)
	require.Len(t, s1, 64)
}

func TestHMACSHA256Deterministic(t *testing.T) {
	key := []byte("rho")
	data := []byte("shared-secret")

	m1 := HMACSHA256(key, data)
	m2 := HMACSHA256(key, data)
	require.Equal(t, m1, m2)
}
