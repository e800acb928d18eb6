// Package tlv implements the BigSize varint encoding and the generic
// type-length-value stream format used to carry the "tail" of every BOLT
// wire message, plus the per-hop Sphinx payload and the BOLT-12 TLV
// streams.
package tlv

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// bigSize16 is the prefix byte for a 3-byte BigSize (1 prefix + 2
	// value bytes).
	bigSize16 = 0xfd

	// bigSize32 is the prefix byte for a 5-byte BigSize.
	bigSize32 = 0xfe

	// bigSize64 is the prefix byte for a 9-byte BigSize.
	bigSize64 = 0xff
)

// ErrNonCanonicalBigSize is returned when a decoded BigSize uses more bytes
// than the canonical minimal encoding for its value.
type ErrNonCanonicalBigSize struct {
	Value  uint64
	Prefix byte
}

func (e *ErrNonCanonicalBigSize) Error() string {
	return fmt.Sprintf("non-canonical BigSize encoding of %d with prefix "+
		"0x%x", e.Value, e.Prefix)
}

// WriteBigSize encodes v to w using the shortest canonical BigSize form.
func WriteBigSize(w io.Writer, v uint64) error {
	switch {
	case v < bigSize16:
		_, err := w.Write([]byte{byte(v)})
		return err

	case v <= 0xffff:
		var buf [3]byte
		buf[0] = bigSize16
		binary.BigEndian.PutUint16(buf[1:], uint16(v))
		_, err := w.Write(buf[:])
		return err

	case v <= 0xffffffff:
		var buf [5]byte
		buf[0] = bigSize32
		binary.BigEndian.PutUint32(buf[1:], uint32(v))
		_, err := w.Write(buf[:])
		return err

	default:
		var buf [9]byte
		buf[0] = bigSize64
		binary.BigEndian.PutUint64(buf[1:], v)
		_, err := w.Write(buf[:])
		return err
	}
}

// ReadBigSize decodes a canonical BigSize from r, returning the decoded
// value and the number of bytes consumed. Non-canonical (not-shortest)
// encodings are rejected.
func ReadBigSize(r io.Reader) (uint64, int, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, 0, err
	}

	switch prefix[0] {
	case bigSize16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(binary.BigEndian.Uint16(buf[:]))
		if v < bigSize16 {
			return 0, 0, &ErrNonCanonicalBigSize{v, prefix[0]}
		}
		return v, 3, nil

	case bigSize32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, 0, err
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v <= 0xffff {
			return 0, 0, &ErrNonCanonicalBigSize{v, prefix[0]}
		}
		return v, 5, nil

	case bigSize64:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, 0, err
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v <= 0xffffffff {
			return 0, 0, &ErrNonCanonicalBigSize{v, prefix[0]}
		}
		return v, 9, nil

	default:
		return uint64(prefix[0]), 1, nil
	}
}

// BigSizeLen returns the number of bytes the canonical encoding of v
// occupies, without performing the encoding.
func BigSizeLen(v uint64) int {
	switch {
	case v < bigSize16:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
