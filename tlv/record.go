package tlv

import (
	"bytes"
	"fmt"
	"io"
)

// Type is the BigSize-encoded type field of a TLV record.
type Type uint64

// isOdd reports whether t is an odd ("it's okay to be odd") TLV type,
// which unknown decoders must ignore rather than fail on.
func (t Type) isOdd() bool {
	return t%2 == 1
}

// Record is a single decoded type-length-value entry.
type Record struct {
	Type  Type
	Value []byte
}

// Stream is a decoded TLV stream: the records recognized by the caller,
// plus any unknown-odd records preserved for forwarding.
type Stream struct {
	// Records holds every record in the stream, in strictly ascending
	// type order, including unknown-odd ones.
	Records []Record
}

// ErrTypeOutOfOrder is returned when a stream's types are not strictly
// increasing.
type ErrTypeOutOfOrder struct {
	Prev, Cur Type
}

func (e *ErrTypeOutOfOrder) Error() string {
	return fmt.Sprintf("tlv type %d is not strictly greater than "+
		"previous type %d", e.Cur, e.Prev)
}

// ErrUnknownEvenType is returned when a stream carries an even type this
// decoder does not recognize.
type ErrUnknownEvenType struct {
	Type Type
}

func (e *ErrUnknownEvenType) Error() string {
	return fmt.Sprintf("unknown even tlv type %d", e.Type)
}

// KnownTypeSet reports whether a type is one a given caller recognizes.
// Decoders supply this to distinguish "unknown even -> fail" from
// "unknown odd -> preserve".
type KnownTypeSet func(t Type) bool

// DecodeStream parses the raw TLV tail of a message. knownTypes reports
// whether the caller has a concrete field for a given type; any even type
// for which knownTypes returns false fails decoding, any odd type for
// which it returns false is kept in the stream as an opaque record so it
// can be forwarded unmodified.
func DecodeStream(r io.Reader, knownTypes KnownTypeSet) (*Stream, error) {
	var (
		records []Record
		lastType Type
		haveLast bool
	)

	for {
		typeVal, _, err := ReadBigSize(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		curType := Type(typeVal)

		if haveLast && curType <= lastType {
			return nil, &ErrTypeOutOfOrder{lastType, curType}
		}

		length, _, err := ReadBigSize(r)
		if err != nil {
			return nil, err
		}

		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, err
		}

		if !curType.isOdd() && (knownTypes == nil || !knownTypes(curType)) {
			return nil, &ErrUnknownEvenType{curType}
		}

		records = append(records, Record{Type: curType, Value: value})
		lastType = curType
		haveLast = true
	}

	return &Stream{Records: records}, nil
}

// EncodeStream serializes records in strictly ascending type order. The
// caller is responsible for ensuring no two records share a type.
func EncodeStream(w io.Writer, records []Record) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)

	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Type > sorted[j].Type; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Type == sorted[i-1].Type {
			return fmt.Errorf("duplicate tlv type %d", sorted[i].Type)
		}
	}

	for _, rec := range sorted {
		if err := WriteBigSize(w, uint64(rec.Type)); err != nil {
			return err
		}
		if err := WriteBigSize(w, uint64(len(rec.Value))); err != nil {
			return err
		}
		if _, err := w.Write(rec.Value); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the value of the first record with the given type, and
// whether it was present.
func (s *Stream) Get(t Type) ([]byte, bool) {
	for _, rec := range s.Records {
		if rec.Type == t {
			return rec.Value, true
		}
	}
	return nil, false
}

// ExtraData returns the odd-typed records not in known, suitable for
// forwarding unmodified by a caller that only understood a subset of
// types.
func (s *Stream) ExtraData(known map[Type]bool) []Record {
	var extra []Record
	for _, rec := range s.Records {
		if rec.Type.isOdd() && !known[rec.Type] {
			extra = append(extra, rec)
		}
	}
	return extra
}

// Bytes serializes the stream back to its canonical wire form.
func (s *Stream) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeStream(&buf, s.Records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
