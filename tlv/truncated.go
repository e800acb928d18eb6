package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ErrLeadingZero is returned when a truncated integer's minimal-bytes
// encoding carries a leading zero byte.
var ErrLeadingZero = fmt.Errorf("truncated integer has leading zero byte")

// WriteTU64 writes v as a minimal-bytes, big-endian truncated uint64.
// Zero encodes as the empty byte string.
func WriteTU64(w io.Writer, v uint64) error {
	if v == 0 {
		return nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	start := 0
	for start < 7 && buf[start] == 0 {
		start++
	}

	_, err := w.Write(buf[start:])
	return err
}

// ReadTU64 reads a minimal-bytes truncated uint64 of exactly n bytes
// (0 <= n <= 8). Empty input decodes to zero.
func ReadTU64(r io.Reader, n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if n > 8 {
		return 0, fmt.Errorf("tu64 field too long: %d bytes", n)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, err
	}
	if raw[0] == 0 {
		return 0, ErrLeadingZero
	}

	var buf [8]byte
	copy(buf[8-n:], raw)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteTU32 writes v as a minimal-bytes, big-endian truncated uint32.
func WriteTU32(w io.Writer, v uint32) error {
	return WriteTU64(w, uint64(v))
}

// ReadTU32 reads a minimal-bytes truncated uint32 of exactly n bytes
// (0 <= n <= 4).
func ReadTU32(r io.Reader, n int) (uint32, error) {
	if n > 4 {
		return 0, fmt.Errorf("tu32 field too long: %d bytes", n)
	}
	v, err := ReadTU64(r, n)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
