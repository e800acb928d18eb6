package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigSizeCanonicalRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000,
	}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteBigSize(&buf, v))

		got, n, err := ReadBigSize(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, buf.Len(), n)
		require.Equal(t, BigSizeLen(v), n)
	}
}

func TestBigSizeScenarioS1(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{252, []byte{0xfc}},
		{253, []byte{0xfd, 0x00, 0xfd}},
		{65536, []byte{0xfe, 0x00, 0x01, 0x00, 0x00}},
	}

	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteBigSize(&buf, c.v))
		require.Equal(t, c.want, buf.Bytes())
	}
}

func TestBigSizeRejectsNonCanonical(t *testing.T) {
	// 0xfd 0x00 0xfc encodes 252 using the 3-byte form, which is not
	// canonical (252 fits in a single byte).
	nonCanonical := []byte{0xfd, 0x00, 0xfc}
	_, _, err := ReadBigSize(bytes.NewReader(nonCanonical))
	require.Error(t, err)

	var target *ErrNonCanonicalBigSize
	require.ErrorAs(t, err, &target)
}
