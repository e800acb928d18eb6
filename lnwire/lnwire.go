package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChannelID uniquely identifies a channel, derived from the funding
// outpoint's txid XORed with its output index in the low two bytes, per
// BOLT #2.
type ChannelID [32]byte

// NewChanIDFromOutPoint derives a ChannelID from a channel's funding
// outpoint.
func NewChanIDFromOutPoint(op *wire.OutPoint) ChannelID {
	var cid ChannelID
	copy(cid[:], op.Hash[:])
	cid[30] ^= byte(op.Index >> 8)
	cid[31] ^= byte(op.Index)
	return cid
}

// MilliSatoshi represents a thousandth of a satoshi, the unit HTLC
// amounts are expressed in on the wire so fee calculations never need
// sub-satoshi rounding.
type MilliSatoshi uint64

// ToSatoshis truncates down to the nearest whole satoshi.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / 1000)
}

// ShortChannelID encodes a channel's location in the chain as
// block_height || tx_index || output_index, packed into a single
// uint64 for compact gossip and routing-graph storage.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	TxPosition  uint16
}

// ToUint64 packs the ShortChannelID into BOLT #7's single-uint64 wire
// form.
func (c ShortChannelID) ToUint64() uint64 {
	return (uint64(c.BlockHeight) << 40) |
		(uint64(c.TxIndex&0xffffff) << 16) |
		uint64(c.TxPosition)
}

// NewShortChanIDFromInt unpacks a wire-format uint64 into its
// block/tx/output components.
func NewShortChanIDFromInt(id uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(id >> 40),
		TxIndex:     uint32(id>>16) & 0xffffff,
		TxPosition:  uint16(id),
	}
}

func (c ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", c.BlockHeight, c.TxIndex, c.TxPosition)
}

// WireBytes is a variable-length byte blob carried with a uint16 length
// prefix, used for fields too large or differently bounded than PkScript
// (previous-tx blobs, witness stack elements, abort reason strings).
type WireBytes []byte

// PkScript is a raw Bitcoin output script, bounded to the longest
// template this module accepts (P2WSH, at 34 bytes) when carried as a
// wire field.
type PkScript []byte

// maxPkScriptLen is the longest script template accepted on the wire:
// OP_0 <32-byte-hash> (P2WSH).
const maxPkScriptLen = 34

func isValidPkScript(script PkScript) bool {
	switch len(script) {
	case 22, 25, 23, 34:
		// P2WPKH, P2PKH, P2SH, P2WSH lengths respectively.
		return true
	default:
		return false
	}
}

// readElement decodes a single wire field from r into element, which must
// be a pointer to one of the types this function recognizes.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *int64:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = int64(v)

	case *WireBytes:
		var length uint16
		if err := readElement(r, &length); err != nil {
			return err
		}
		blob := make(WireBytes, length)
		if _, err := io.ReadFull(r, blob); err != nil {
			return err
		}
		*e = blob

	case *[]WireBytes:
		var count uint16
		if err := readElement(r, &count); err != nil {
			return err
		}
		blobs := make([]WireBytes, count)
		for i := range blobs {
			if err := readElement(r, &blobs[i]); err != nil {
				return err
			}
		}
		*e = blobs

	case *MilliSatoshi:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = MilliSatoshi(v)

	case *btcutil.Amount:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = btcutil.Amount(v)

	case *ChannelID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *chainhash.Hash:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *ShortChannelID:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = NewShortChanIDFromInt(v)

	case *ChanUpdateFlag:
		var v uint16
		if err := readElement(r, &v); err != nil {
			return err
		}
		*e = ChanUpdateFlag(v)

	case []byte:
		if _, err := io.ReadFull(r, e); err != nil {
			return err
		}

	case **btcec.PublicKey:
		var raw [33]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		pub, err := btcec.ParsePubKey(raw[:])
		if err != nil {
			return err
		}
		*e = pub

	case **ecdsa.Signature:
		var derLen uint16
		if err := readElement(r, &derLen); err != nil {
			return err
		}
		raw := make([]byte, derLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return err
		}
		sig, err := ecdsa.ParseDERSignature(raw)
		if err != nil {
			return fmt.Errorf("invalid signature encoding: %w", err)
		}
		*e = sig

	case *wire.OutPoint:
		var hash [32]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return err
		}
		var index uint32
		if err := readElement(r, &index); err != nil {
			return err
		}
		if index > math16Max {
			return fmt.Errorf("invalid output index %d, "+
				"outpoint index must fit in 16 bits", index)
		}
		copy(e.Hash[:], hash[:])
		e.Index = index

	case *PkScript:
		var length uint8
		if err := readElement(r, &length); err != nil {
			return err
		}
		script := make(PkScript, length)
		if _, err := io.ReadFull(r, script); err != nil {
			return err
		}
		*e = script

	case *RGB:
		var raw [3]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		e.red, e.green, e.blue = raw[0], raw[1], raw[2]

	case *Alias:
		var raw [32]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		alias, err := newAlias(raw[:])
		if err != nil {
			return err
		}
		*e = alias

	case *[]net.Addr:
		addrs, err := readNetAddrs(r)
		if err != nil {
			return err
		}
		*e = addrs

	case **FeatureVector:
		fv, err := DecodeFeatureVector(r)
		if err != nil {
			return err
		}
		*e = fv

	default:
		return fmt.Errorf("unknown type %T in readElement", e)
	}

	return nil
}

const math16Max = 1<<16 - 1

// readElements decodes a sequence of wire fields in order.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// writeElement encodes a single wire field to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		_, err := w.Write([]byte{e})
		return err

	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		_, err := w.Write(b[:])
		return err

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		_, err := w.Write(b[:])
		return err

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		_, err := w.Write(b[:])
		return err

	case int64:
		return writeElement(w, uint64(e))

	case WireBytes:
		if len(e) > math16Max {
			return fmt.Errorf("blob too long: %d bytes", len(e))
		}
		if err := writeElement(w, uint16(len(e))); err != nil {
			return err
		}
		_, err := w.Write(e)
		return err

	case []WireBytes:
		if err := writeElement(w, uint16(len(e))); err != nil {
			return err
		}
		for _, blob := range e {
			if err := writeElement(w, blob); err != nil {
				return err
			}
		}
		return nil

	case MilliSatoshi:
		return writeElement(w, uint64(e))

	case btcutil.Amount:
		return writeElement(w, uint64(e))

	case ChannelID:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case ShortChannelID:
		return writeElement(w, e.ToUint64())

	case ChanUpdateFlag:
		return writeElement(w, uint16(e))

	case []byte:
		_, err := w.Write(e)
		return err

	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("cannot write nil public key")
		}
		_, err := w.Write(e.SerializeCompressed())
		return err

	case *ecdsa.Signature:
		if e == nil {
			return fmt.Errorf("cannot write nil signature")
		}
		der := e.Serialize()
		if err := writeElement(w, uint16(len(der))); err != nil {
			return err
		}
		_, err := w.Write(der)
		return err

	case wire.OutPoint:
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
		if e.Index > math16Max {
			return fmt.Errorf("index %d exceeds 16-bit range", e.Index)
		}
		return writeElement(w, e.Index)

	case PkScript:
		if len(e) > maxPkScriptLen {
			return fmt.Errorf("pkScript too long: %d bytes", len(e))
		}
		if err := writeElement(w, uint8(len(e))); err != nil {
			return err
		}
		_, err := w.Write(e)
		return err

	case RGB:
		_, err := w.Write([]byte{e.red, e.green, e.blue})
		return err

	case Alias:
		_, err := w.Write(e.data[:])
		return err

	case []net.Addr:
		return writeNetAddrs(w, e)

	case *FeatureVector:
		if e == nil {
			e = NewFeatureVector(nil)
		}
		return e.Encode(w)

	default:
		return fmt.Errorf("unknown type %T in writeElement", e)
	}
}

// writeElements encodes a sequence of wire fields in order.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// Address type tags used ahead of each entry in a node_announcement's
// address list, per BOLT #7.
const (
	addrTypeIPv4 uint8 = 1
	addrTypeIPv6 uint8 = 2
)

func writeNetAddrs(w io.Writer, addrs []net.Addr) error {
	if err := writeElement(w, uint16(len(addrs))); err != nil {
		return err
	}

	for _, addr := range addrs {
		tcpAddr, ok := addr.(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("unsupported address type %T", addr)
		}

		ip4 := tcpAddr.IP.To4()
		if ip4 != nil {
			if err := writeElement(w, addrTypeIPv4); err != nil {
				return err
			}
			if _, err := w.Write(ip4); err != nil {
				return err
			}
		} else {
			if err := writeElement(w, addrTypeIPv6); err != nil {
				return err
			}
			if _, err := w.Write(tcpAddr.IP.To16()); err != nil {
				return err
			}
		}

		if err := writeElement(w, uint16(tcpAddr.Port)); err != nil {
			return err
		}
	}

	return nil
}

func readNetAddrs(r io.Reader) ([]net.Addr, error) {
	var numAddrs uint16
	if err := readElement(r, &numAddrs); err != nil {
		return nil, err
	}

	addrs := make([]net.Addr, 0, numAddrs)
	for i := uint16(0); i < numAddrs; i++ {
		var addrType uint8
		if err := readElement(r, &addrType); err != nil {
			return nil, err
		}

		var ip net.IP
		switch addrType {
		case addrTypeIPv4:
			raw := make([]byte, 4)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, err
			}
			ip = net.IP(raw)
		case addrTypeIPv6:
			raw := make([]byte, 16)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, err
			}
			ip = net.IP(raw)
		default:
			return nil, fmt.Errorf("unknown address type %d", addrType)
		}

		var port uint16
		if err := readElement(r, &port); err != nil {
			return nil, err
		}

		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: int(port)})
	}

	return addrs, nil
}
