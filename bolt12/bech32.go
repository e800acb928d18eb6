package bolt12

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// charset is the bech32 character set (BIP-173), reused here because BOLT
// #12's "bech32 without checksum" encoding shares everything but the
// trailing checksum digits.
const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// EncodeNoChecksum encodes data (8-bit bytes) under the given
// human-readable prefix as bech32 with the 6-character checksum omitted,
// per BOLT #12's rationale that the Merkle-root-backed signature already
// authenticates the payload.
func EncodeNoChecksum(hrp string, data []byte) (string, error) {
	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range converted {
		if int(b) >= len(charset) {
			return "", fmt.Errorf("bolt12: invalid 5-bit group %d", b)
		}
		sb.WriteByte(charset[b])
	}

	return sb.String(), nil
}

// DecodeNoChecksum reverses EncodeNoChecksum, splitting at the last '1'
// separator and mapping each character back through the bech32 charset.
// Unlike standard bech32, there is no checksum to validate.
func DecodeNoChecksum(encoded string) (hrp string, data []byte, err error) {
	encoded = strings.ToLower(encoded)

	sep := strings.LastIndexByte(encoded, '1')
	if sep < 1 || sep+1 >= len(encoded) {
		return "", nil, fmt.Errorf("bolt12: missing separator in %q", encoded)
	}

	hrp = encoded[:sep]
	body := encoded[sep+1:]

	fiveBit := make([]byte, len(body))
	for i, r := range body {
		idx := strings.IndexRune(charset, r)
		if idx < 0 {
			return "", nil, fmt.Errorf("bolt12: invalid character %q", r)
		}
		fiveBit[i] = byte(idx)
	}

	data, err = bech32.ConvertBits(fiveBit, 5, 8, false)
	if err != nil {
		return "", nil, err
	}

	return hrp, data, nil
}

// foldLine wraps a bech32-without-checksum string at width characters,
// joining continuation lines with "+\n" as BOLT #12 allows for
// QR-code-friendly or email-friendly transport; decoders strip the fold
// markers before decoding.
func foldLine(encoded string, width int) string {
	if width <= 0 || len(encoded) <= width {
		return encoded
	}

	var sb strings.Builder
	for len(encoded) > width {
		sb.WriteString(encoded[:width])
		sb.WriteString("+\n")
		encoded = encoded[width:]
	}
	sb.WriteString(encoded)
	return sb.String()
}

// unfold strips BOLT #12's "+"-newline-space folding, returning the
// original unbroken encoded string.
func unfold(folded string) string {
	folded = strings.ReplaceAll(folded, "+\n", "")
	folded = strings.ReplaceAll(folded, "+\r\n", "")
	folded = strings.ReplaceAll(folded, " ", "")
	folded = strings.ReplaceAll(folded, "\t", "")
	return strings.TrimSpace(folded)
}
