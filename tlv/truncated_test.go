package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTU64ScenarioS2(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTU64(&buf, 0))
	require.Empty(t, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteTU64(&buf, 256))
	require.Equal(t, []byte{0x01, 0x00}, buf.Bytes())

	got, err := ReadTU64(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 4)
	require.NoError(t, err)
	require.EqualValues(t, 4294967295, got)
}

func TestTU64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xff, 0x100, 0xffffffffffffffff}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteTU64(&buf, v))

		got, err := ReadTU64(bytes.NewReader(buf.Bytes()), buf.Len())
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestTU64RejectsLeadingZero(t *testing.T) {
	_, err := ReadTU64(bytes.NewReader([]byte{0x00, 0x01}), 2)
	require.ErrorIs(t, err, ErrLeadingZero)
}
