package lnwire

import (
	"encoding/binary"
	"io"
)

// featureFlag distinguishes a required feature bit (even) from an
// optional one (odd), per BOLT #9's "it's okay to be odd" convention.
type featureFlag int32

const (
	featureRequired featureFlag = 0
	featureOptional featureFlag = 1
)

// Feature is a single BOLT #9 feature bit entry within a FeatureVector.
type Feature struct {
	Flag featureFlag
}

// FeatureVector is the set of feature bits a node advertises in its
// init message or node_announcement, and that a gossip/routing
// consumer checks before relying on a peer understanding a given
// extension (MPP, route blinding, dual funding, and so on).
type FeatureVector struct {
	features []Feature

	// featuresMap is a lazily built index from bit position to flag,
	// used by HasFeature so repeated lookups don't rescan features.
	// It is a derived cache, not wire state, so callers that need
	// value equality with a freshly-decoded vector (e.g. round-trip
	// tests) should reset it to nil after populating features by hand.
	featuresMap map[int32]featureFlag
}

// NewFeatureVector constructs a FeatureVector from an explicit set of
// feature entries.
func NewFeatureVector(features []Feature) *FeatureVector {
	return &FeatureVector{features: features}
}

// HasFeature reports whether bit is present in the vector, building
// (and caching) the lookup index on first use.
func (fv *FeatureVector) HasFeature(bit int32) bool {
	if fv.featuresMap == nil {
		fv.featuresMap = make(map[int32]featureFlag, len(fv.features))
		for i, f := range fv.features {
			fv.featuresMap[int32(i)] = f.Flag
		}
	}
	_, ok := fv.featuresMap[bit]
	return ok
}

// sizeBytes returns how many bytes the bit vector needs, one bit per
// feature entry, encoded with bit index 0 at the vector's last byte's
// least-significant bit (BOLT #9 order).
func (fv *FeatureVector) sizeBytes() int {
	if len(fv.features) == 0 {
		return 0
	}
	return (len(fv.features) + 7) / 8
}

// Encode serializes the feature vector as a two-byte length prefix
// followed by its packed bits.
func (fv *FeatureVector) Encode(w io.Writer) error {
	length := fv.sizeBytes()

	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(length))
	if _, err := w.Write(l[:]); err != nil {
		return err
	}

	data := make([]byte, length)
	for i, f := range fv.features {
		if f.Flag == featureOptional || f.Flag == featureRequired {
			byteIdx := length - 1 - i/8
			bitIdx := uint(i % 8)
			data[byteIdx] |= 1 << bitIdx
		}
	}

	_, err := w.Write(data)
	return err
}

// DecodeFeatureVector parses the output of FeatureVector.Encode.
func DecodeFeatureVector(r io.Reader) (*FeatureVector, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(l[:]))

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	numBits := length * 8
	features := make([]Feature, numBits)
	for i := 0; i < numBits; i++ {
		byteIdx := length - 1 - i/8
		bitIdx := uint(i % 8)
		if (data[byteIdx]>>bitIdx)&1 == 1 {
			features[i] = Feature{Flag: featureRequired}
		} else {
			features[i] = Feature{Flag: featureOptional}
		}
	}

	return &FeatureVector{features: features}, nil
}
