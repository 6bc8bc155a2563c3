package goose

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/virtualtestset/vpac/pkg/ber"
	"github.com/virtualtestset/vpac/pkg/errs"
)

const (
	etherTypeGOOSE uint16 = 0x88B8
	tpid8021Q      uint16 = 0x8100
)

// EtherTypeGOOSE is exported so a packet-sink backend can install a
// kernel-side EtherType pre-filter ahead of this package's own check.
const EtherTypeGOOSE = etherTypeGOOSE

// Decode parses a complete Ethernet II frame (starting at the destination
// MAC, FCS excluded) and returns the GOOSE PDU it carries. It rejects, via
// KindParse, any frame whose EtherType (after skipping an optional 802.1Q
// tag) is not 0x88B8, and any frame whose BER body fails to parse.
func Decode(frame []byte) (*PDU, error) {
	const op = "goose.Decode"
	if len(frame) < 14 {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("frame too short: %d bytes", len(frame)))
	}

	off := 12 // past dst(6)+src(6)
	etherType := binary.BigEndian.Uint16(frame[off : off+2])
	off += 2
	if etherType == tpid8021Q {
		off += 2 // skip TCI
		if len(frame) < off+2 {
			return nil, errs.New(errs.KindParse, op, fmt.Errorf("truncated VLAN header"))
		}
		etherType = binary.BigEndian.Uint16(frame[off : off+2])
		off += 2
	}
	if etherType != etherTypeGOOSE {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("unexpected EtherType 0x%04X", etherType))
	}

	if len(frame) < off+8 {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("truncated GOOSE header"))
	}
	// appId(2) | length(2) | reserved1(2) | reserved2(2)
	appID := binary.BigEndian.Uint16(frame[off : off+2])
	off += 8

	if off >= len(frame) {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("no PDU body"))
	}

	tlv, _, err := ber.ParseTLV(frame[off:])
	if err != nil {
		return nil, errs.New(errs.KindParse, op, err)
	}
	if tlv.Tag != ber.TagGsePDU {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("unexpected PDU tag 0x%02X", tlv.Tag))
	}

	elems, err := ber.ParseAll(tlv.Value)
	if err != nil {
		return nil, errs.New(errs.KindParse, op, err)
	}

	pdu := &PDU{AppID: appID}
	for _, e := range elems {
		switch e.Tag {
		case ber.TagGocbRef:
			pdu.GocbRef = string(e.Value)
		case ber.TagTimeAllowedToLive:
			pdu.TimeAllowedToLive = decodeUint(e.Value)
		case ber.TagGooseDatSet:
			pdu.DatSet = string(e.Value)
		case ber.TagGoID:
			pdu.GoID = string(e.Value)
		case ber.TagT:
			pdu.T = decodeUint64(e.Value)
		case ber.TagStNum:
			pdu.StNum = decodeUint(e.Value)
		case ber.TagSqNum:
			pdu.SqNum = decodeUint(e.Value)
		case ber.TagTest:
			pdu.Test = len(e.Value) > 0 && e.Value[0] != 0
		case ber.TagGooseConfRev:
			pdu.ConfRev = decodeUint(e.Value)
		case ber.TagNdsCom:
			pdu.NdsCom = len(e.Value) > 0 && e.Value[0] != 0
		case ber.TagNumDatSetEntries:
			pdu.NumDatSetEntries = decodeUint(e.Value)
		case ber.TagAllData:
			items, err := ber.ParseAll(e.Value)
			if err != nil {
				return nil, errs.New(errs.KindParse, op, err)
			}
			for _, item := range items {
				v, err := decodeValue(item)
				if err != nil {
					return nil, errs.New(errs.KindParse, op, err)
				}
				pdu.AllData = append(pdu.AllData, v)
			}
		}
	}

	if pdu.GocbRef == "" {
		return nil, errs.New(errs.KindParse, op, fmt.Errorf("missing gocbRef"))
	}
	return pdu, nil
}

func decodeUint(b []byte) uint32 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return uint32(v)
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func decodeInt(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// decodeValue interprets one allData primitive by its tag.
func decodeValue(tlv ber.TLV) (Value, error) {
	switch tlv.Tag {
	case ber.TagBool:
		return Value{Kind: KindBool, Bool: len(tlv.Value) > 0 && tlv.Value[0] != 0}, nil
	case ber.TagInt:
		return Value{Kind: KindInt, Int: decodeInt(tlv.Value)}, nil
	case ber.TagUint:
		return Value{Kind: KindUint, Uint: uint64(decodeUint(tlv.Value))}, nil
	case ber.TagFloat:
		return Value{Kind: KindFloat, Float: decodeFloat(tlv.Value)}, nil
	case ber.TagUTF8:
		return Value{Kind: KindUTF8, Str: string(tlv.Value)}, nil
	case ber.TagBitstring:
		if len(tlv.Value) < 1 {
			return Value{Kind: KindBitstring}, nil
		}
		return Value{Kind: KindBitstring, Bits: tlv.Value[1:]}, nil
	default:
		return Value{}, fmt.Errorf("unrecognized data primitive tag 0x%02X", tlv.Tag)
	}
}

// decodeFloat handles the MMS FLOATING-POINT encoding (a leading exponent-
// width byte followed by IEEE-754 bytes) as well as a bare 4-byte IEEE-754
// big-endian encoding.
func decodeFloat(b []byte) float64 {
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case 5:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b[1:])))
	case 9:
		return math.Float64frombits(binary.BigEndian.Uint64(b[1:]))
	default:
		return 0
	}
}
