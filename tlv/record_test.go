package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamRoundTrip(t *testing.T) {
	records := []Record{
		{Type: 2, Value: []byte{0x01, 0x02}},
		{Type: 4, Value: []byte{0x03}},
		{Type: 7, Value: []byte{}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeStream(&buf, records))

	known := func(t Type) bool { return t == 2 || t == 4 }
	stream, err := DecodeStream(bytes.NewReader(buf.Bytes()), known)
	require.NoError(t, err)
	require.Len(t, stream.Records, 3)

	v, ok := stream.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestStreamRejectsUnknownEven(t *testing.T) {
	records := []Record{{Type: 6, Value: []byte{0xaa}}}

	var buf bytes.Buffer
	require.NoError(t, EncodeStream(&buf, records))

	known := func(t Type) bool { return false }
	_, err := DecodeStream(bytes.NewReader(buf.Bytes()), known)
	require.Error(t, err)

	var target *ErrUnknownEvenType
	require.ErrorAs(t, err, &target)
}

func TestStreamPreservesUnknownOdd(t *testing.T) {
	records := []Record{
		{Type: 2, Value: []byte{0x01}},
		{Type: 9, Value: []byte{0xbb}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeStream(&buf, records))

	known := func(t Type) bool { return t == 2 }
	stream, err := DecodeStream(bytes.NewReader(buf.Bytes()), known)
	require.NoError(t, err)

	extra := stream.ExtraData(map[Type]bool{2: true})
	require.Len(t, extra, 1)
	require.Equal(t, Type(9), extra[0].Type)
}

func TestStreamRejectsOutOfOrder(t *testing.T) {
	raw := new(bytes.Buffer)
	// Manually encode type 4 then type 2, which is out of order.
	require.NoError(t, WriteBigSize(raw, 4))
	require.NoError(t, WriteBigSize(raw, 1))
	raw.WriteByte(0xaa)
	require.NoError(t, WriteBigSize(raw, 2))
	require.NoError(t, WriteBigSize(raw, 1))
	raw.WriteByte(0xbb)

	known := func(t Type) bool { return true }
	_, err := DecodeStream(bytes.NewReader(raw.Bytes()), known)
	require.Error(t, err)

	var target *ErrTypeOutOfOrder
	require.ErrorAs(t, err, &target)
}

func TestEncodeStreamOrdersAscending(t *testing.T) {
	records := []Record{
		{Type: 8, Value: []byte{0x03}},
		{Type: 2, Value: []byte{0x01}},
		{Type: 4, Value: []byte{0x02}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeStream(&buf, records))

	known := func(t Type) bool { return true }
	stream, err := DecodeStream(bytes.NewReader(buf.Bytes()), known)
	require.NoError(t, err)

	require.Equal(t, Type(2), stream.Records[0].Type)
	require.Equal(t, Type(4), stream.Records[1].Type)
	require.Equal(t, Type(8), stream.Records[2].Type)
}
