// Package ber implements the small ASN.1 BER subset used by the SV and
// GOOSE wire formats: the length-octet encoding and a flat tag/length/value
// reader and writer. It does not attempt general ASN.1; only the tag set
// named in the two profiles is exposed as constants.
package ber

import (
	"fmt"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// Tag constants for the SV (9-2LE) profile.
const (
	TagSavPDU    byte = 0x60
	TagNoASDU    byte = 0x80
	TagSeqOfASDU byte = 0xA2
	TagASDU      byte = 0x30
	TagSvID      byte = 0x80
	TagDatSet    byte = 0x81
	TagSmpCnt    byte = 0x82
	TagConfRev   byte = 0x83
	TagRefrTm    byte = 0x84
	TagSmpSynch  byte = 0x85
	TagSmpRate   byte = 0x86
	TagSeqData   byte = 0x87
)

// Tag constants for the GOOSE profile.
const (
	TagGsePDU            byte = 0x61
	TagGocbRef           byte = 0x80
	TagTimeAllowedToLive byte = 0x81
	TagGooseDatSet       byte = 0x82
	TagGoID              byte = 0x83
	TagT                 byte = 0x84
	TagStNum             byte = 0x85
	TagSqNum             byte = 0x86
	TagTest              byte = 0x87
	TagGooseConfRev      byte = 0x88
	TagNdsCom            byte = 0x89
	TagNumDatSetEntries  byte = 0x8A
	TagAllData           byte = 0xAB
)

// Data-primitive tags inside allData.
const (
	TagBool      byte = 0x83
	TagInt       byte = 0x85
	TagUint      byte = 0x86
	TagFloat     byte = 0x87
	TagUTF8      byte = 0x8A
	TagBitstring byte = 0x84
)

// EncodeLength returns the BER length-octet encoding of n:
// n<=127 -> one byte; n in [128,255] -> 0x81 LL; n in [256,65535] -> 0x82 HH LL.
func EncodeLength(n int) ([]byte, error) {
	switch {
	case n < 0:
		return nil, errs.New(errs.KindParse, "ber.EncodeLength", fmt.Errorf("negative length %d", n))
	case n <= 127:
		return []byte{byte(n)}, nil
	case n <= 255:
		return []byte{0x81, byte(n)}, nil
	case n <= 65535:
		return []byte{0x82, byte(n >> 8), byte(n)}, nil
	default:
		return nil, errs.New(errs.KindParse, "ber.EncodeLength", fmt.Errorf("UNSUPPORTED_LENGTH: %d", n))
	}
}

// DecodeLength reads a BER length-octet group from the front of b and
// returns the decoded value and the number of octets it consumed.
func DecodeLength(b []byte) (n int, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, errs.New(errs.KindParse, "ber.DecodeLength", fmt.Errorf("empty input"))
	}
	lead := b[0]
	if lead&0x80 == 0 {
		return int(lead), 1, nil
	}
	numOctets := int(lead &^ 0x80)
	switch numOctets {
	case 1:
		if len(b) < 2 {
			return 0, 0, errs.New(errs.KindParse, "ber.DecodeLength", fmt.Errorf("truncated length"))
		}
		return int(b[1]), 2, nil
	case 2:
		if len(b) < 3 {
			return 0, 0, errs.New(errs.KindParse, "ber.DecodeLength", fmt.Errorf("truncated length"))
		}
		return int(b[1])<<8 | int(b[2]), 3, nil
	default:
		return 0, 0, errs.New(errs.KindParse, "ber.DecodeLength", fmt.Errorf("UNSUPPORTED_LENGTH: %d-octet form", numOctets))
	}
}

// AppendTLV appends tag, the BER length of value, and value itself to buf,
// returning the extended slice.
func AppendTLV(buf []byte, tag byte, value []byte) ([]byte, error) {
	lenOctets, err := EncodeLength(len(value))
	if err != nil {
		return nil, err
	}
	buf = append(buf, tag)
	buf = append(buf, lenOctets...)
	buf = append(buf, value...)
	return buf, nil
}

// TLV is one decoded tag/length/value element.
type TLV struct {
	Tag   byte
	Value []byte
}

// ParseTLV decodes one TLV element from the front of b and returns it along
// with the remaining bytes.
func ParseTLV(b []byte) (tlv TLV, rest []byte, err error) {
	if len(b) < 1 {
		return TLV{}, nil, errs.New(errs.KindParse, "ber.ParseTLV", fmt.Errorf("empty input"))
	}
	tag := b[0]
	length, consumed, err := DecodeLength(b[1:])
	if err != nil {
		return TLV{}, nil, err
	}
	start := 1 + consumed
	end := start + length
	if end > len(b) {
		return TLV{}, nil, errs.New(errs.KindParse, "ber.ParseTLV", fmt.Errorf("value runs past buffer end (tag 0x%02X)", tag))
	}
	return TLV{Tag: tag, Value: b[start:end]}, b[end:], nil
}

// ParseAll decodes a flat sequence of TLV elements that exactly fills b.
func ParseAll(b []byte) ([]TLV, error) {
	var out []TLV
	for len(b) > 0 {
		tlv, rest, err := ParseTLV(b)
		if err != nil {
			return nil, err
		}
		out = append(out, tlv)
		b = rest
	}
	return out, nil
}

// Find returns the first element in elems with the given tag.
func Find(elems []TLV, tag byte) (TLV, bool) {
	for _, e := range elems {
		if e.Tag == tag {
			return e, true
		}
	}
	return TLV{}, false
}
